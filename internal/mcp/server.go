package mcp

import (
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"design_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"design_inspect": {
		def:     inspectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInspect },
	},
	"slide_render": {
		def:     renderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRender },
	},
	"template_fetch": {
		def:     fetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch },
	},
	"template_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"template_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"template_backup": {
		def:     backupToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBackup },
	},
	"template_restore": {
		def:     restoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRestore },
	},
}

// AllToolNames returns every registered tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns the entries of disabled that name no tool.
func ValidateDisabledTools(disabled []string) []string {
	var unknown []string
	for _, name := range disabled {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with every tool not disabled by cfg.
func NewServer(db *sql.DB, cfg *config.Config, store assets.Store, renderer *ops.Renderer, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"layerdeck",
		version,
		server.WithToolCapabilities(true),
	)

	for _, name := range ValidateDisabledTools(cfg.DisabledTools) {
		logrus.WithField("tool", name).Warn("unknown tool in disabled_tools")
	}
	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	h := NewHandlers(db, cfg, store, renderer)
	registered := 0
	for _, name := range AllToolNames() {
		if disabled[name] {
			continue
		}
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
		registered++
	}
	logrus.WithFields(logrus.Fields{
		"tools":    registered,
		"disabled": len(disabled),
	}).Debug("mcp tools registered")

	return s
}

// Run starts the MCP server over stdio.
func Run(db *sql.DB, cfg *config.Config, store assets.Store, renderer *ops.Renderer, version string) error {
	s := NewServer(db, cfg, store, renderer, version)
	logrus.WithField("version", version).Info("mcp server starting on stdio")
	return server.ServeStdio(s)
}
