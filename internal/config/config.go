package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Asset backends.
const (
	BackendFilesystem = "filesystem"
	BackendMemory     = "memory"
	BackendS3         = "s3"
)

// Config holds application configuration.
type Config struct {
	// AllowedPaths is an allowlist of directories for import/backup/restore.
	// Paths outside ~/.layerdeck/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for file operations.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// FontDirs are scanned for .ttf/.otf files at startup.
	FontDirs []string `json:"font_dirs,omitempty"`

	// FontCacheSize is the number of resolved fonts kept in memory.
	FontCacheSize int `json:"font_cache_size,omitempty"`

	// FontTimeoutMS bounds a single font resolution during a render.
	FontTimeoutMS int `json:"font_timeout_ms,omitempty"`

	// AssetBackend selects where decoded rasters live: "filesystem" (default,
	// under ~/.layerdeck/assets), "memory" or "s3".
	AssetBackend string `json:"asset_backend,omitempty"`

	// S3Bucket and S3Prefix locate assets when AssetBackend is "s3".
	// Credentials and region come from the standard AWS SDK chain.
	S3Bucket string `json:"s3_bucket,omitempty"`
	S3Prefix string `json:"s3_prefix,omitempty"`

	// ScaleBudgets overrides the longest-edge pixel budget per display
	// context, e.g. {"grid-small": 200}.
	ScaleBudgets map[string]int `json:"scale_budgets,omitempty"`

	// MaxLayerPixels caps the pixel area of a single decoded layer.
	MaxLayerPixels int `json:"max_layer_pixels,omitempty"`

	// MaxRenderPixels caps the painted canvas area of one PNG render,
	// supersampling included.
	MaxRenderPixels int `json:"max_render_pixels,omitempty"`

	// LogLevel is a logrus level name.
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FontCacheSize:   256,
		FontTimeoutMS:   2000,
		AssetBackend:    BackendFilesystem,
		MaxLayerPixels:  1 << 27,
		MaxRenderPixels: 1 << 26,
		LogLevel:        "info",
	}
}

// FontTimeout returns FontTimeoutMS as a duration.
func (c *Config) FontTimeout() time.Duration {
	return time.Duration(c.FontTimeoutMS) * time.Millisecond
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.layerdeck.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.layerdeck) and repo (.layerdeck) directories.
// Repo config is found by walking upward from startDir to find the nearest .layerdeck/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .layerdeck/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".layerdeck", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// budget maps are merged key by key.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.FontCacheSize = pickInt(overlay.FontCacheSize, base.FontCacheSize)
	result.FontTimeoutMS = pickInt(overlay.FontTimeoutMS, base.FontTimeoutMS)
	result.MaxLayerPixels = pickInt(overlay.MaxLayerPixels, base.MaxLayerPixels)
	result.MaxRenderPixels = pickInt(overlay.MaxRenderPixels, base.MaxRenderPixels)
	result.AssetBackend = pickString(overlay.AssetBackend, base.AssetBackend)
	result.S3Bucket = pickString(overlay.S3Bucket, base.S3Bucket)
	result.S3Prefix = pickString(overlay.S3Prefix, base.S3Prefix)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.FontDirs = mergeStringSlice(base.FontDirs, overlay.FontDirs)

	if len(base.ScaleBudgets)+len(overlay.ScaleBudgets) > 0 {
		result.ScaleBudgets = make(map[string]int, len(base.ScaleBudgets)+len(overlay.ScaleBudgets))
		for k, v := range base.ScaleBudgets {
			result.ScaleBudgets[k] = v
		}
		for k, v := range overlay.ScaleBudgets {
			result.ScaleBudgets[k] = v
		}
	}

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// Environment variables read by ApplyEnv.
const (
	EnvAssetBackend    = "LAYERDECK_ASSET_BACKEND"
	EnvS3Bucket        = "LAYERDECK_S3_BUCKET"
	EnvS3Prefix        = "LAYERDECK_S3_PREFIX"
	EnvFontDirs        = "LAYERDECK_FONT_DIRS"
	EnvLogLevel        = "LAYERDECK_LOG_LEVEL"
	EnvMaxLayerPixels  = "LAYERDECK_MAX_LAYER_PIXELS"
	EnvMaxRenderPixels = "LAYERDECK_MAX_RENDER_PIXELS"
)

// LoadEnvFiles loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays LAYERDECK_* variables onto cfg. lookup is normally
// os.LookupEnv. Font dirs are split on the OS list separator and appended.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	overlay := &Config{}
	if v, ok := lookup(EnvAssetBackend); ok {
		overlay.AssetBackend = strings.ToLower(v)
	}
	if v, ok := lookup(EnvS3Bucket); ok {
		overlay.S3Bucket = v
	}
	if v, ok := lookup(EnvS3Prefix); ok {
		overlay.S3Prefix = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		overlay.LogLevel = v
	}
	if v, ok := lookup(EnvFontDirs); ok {
		overlay.FontDirs = filepath.SplitList(v)
	}
	for _, p := range []struct {
		key string
		dst *int
	}{
		{EnvMaxLayerPixels, &overlay.MaxLayerPixels},
		{EnvMaxRenderPixels, &overlay.MaxRenderPixels},
	} {
		v, ok := lookup(p.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return errors.New(p.key + " must be a positive integer")
		}
		*p.dst = n
	}
	*cfg = *Merge(cfg, overlay)
	return nil
}
