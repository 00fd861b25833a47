package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/mcp"
	"github.com/hpungsan/layerdeck/internal/ops"
	"github.com/hpungsan/layerdeck/internal/web"
)

// deps are the long-lived handles every command shares. Help and version
// run without them.
type deps struct {
	db       *sql.DB
	cfg      *config.Config
	store    assets.Store
	renderer *ops.Renderer
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *deps) *cli.App {
	app := &cli.App{
		Name:    "layerdeck",
		Usage:   "Decode layered designs into slide templates and render them",
		Version: Version,
		Commands: []*cli.Command{
			importCmd(d),
			inspectCmd(d),
			renderCmd(d),
			fetchCmd(d),
			listCmd(d),
			deleteCmd(d),
			backupCmd(d),
			restoreCmd(d),
			webCmd(d),
			mcpCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// importCmd creates the import command.
func importCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Decode a design file and store it as a template (use - for stdin)",
		ArgsUsage: "<file.psd>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Template name (defaults to the file name)"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			data, err := readDesignArg(path)
			if err != nil {
				return outputError(err)
			}

			input := ops.ImportDesignInput{
				DesignSource: ops.DesignSource{Data: data},
				Name:         c.String("name"),
			}
			if path != "-" {
				input.SourceName = filepath.Base(path)
			}

			output, err := ops.ImportDesign(c.Context, d.db, d.store, d.cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// inspectCmd creates the inspect command.
func inspectCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a design file and print its layers without storing it",
		ArgsUsage: "<file.psd>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "report", Usage: "Print the decode report as Markdown instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			data, err := readDesignArg(path)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Inspect(d.cfg, ops.DesignSource{Data: data})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("report") {
				_, err := fmt.Fprint(os.Stdout, ops.DecodeReport(filepath.Base(path), output.Warnings))
				return err
			}
			return outputJSON(output)
		},
	}
}

// renderCmd creates the render command.
func renderCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a slide (or every slide of --template) as a JSON tree or PNG",
		ArgsUsage: "[slide-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "Render every slide of this template"},
			&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "Display context, e.g. grid-small (default interactive)"},
			&cli.Float64Flag{Name: "scale", Aliases: []string{"s"}, Usage: "Explicit scale factor"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatJSON, Usage: "Output format: json|png"},
			&cli.IntFlag{Name: "supersample", Usage: "PNG supersampling factor (1-4)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "PNG output file, or directory with --template"},
		},
		Action: func(c *cli.Context) error {
			format := strings.ToLower(c.String("format"))
			if templateID := c.String("template"); templateID != "" {
				return renderTemplate(c, d, templateID, format)
			}

			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("slide ID or --template is required"))
			}
			out := c.String("out")
			if format == ops.FormatPNG && out == "" {
				return outputError(errors.NewInvalidRequest("--out is required for png output"))
			}

			output, err := ops.RenderSlide(c.Context, d.db, d.renderer, ops.RenderInput{
				SlideID:     c.Args().First(),
				Context:     c.String("context"),
				Scale:       c.Float64("scale"),
				Format:      format,
				Supersample: c.Int("supersample"),
			})
			if err != nil {
				return outputError(err)
			}
			if output.Format == ops.FormatPNG {
				if err := writeOutputFile(out, output.PNG); err != nil {
					return outputError(err)
				}
				if out == "-" {
					return nil
				}
				return outputJSON(renderedFile{Path: out, RenderOutput: output})
			}
			return outputJSON(output)
		},
	}
}

// renderedFile is the CLI summary of a PNG written to disk.
type renderedFile struct {
	Path string `json:"path"`
	*ops.RenderOutput
}

func renderTemplate(c *cli.Context, d *deps, templateID, format string) error {
	dir := c.String("out")
	if format == ops.FormatPNG && dir == "" {
		return outputError(errors.NewInvalidRequest("--out directory is required for png output"))
	}

	output, err := ops.RenderTemplate(c.Context, d.db, d.renderer, ops.RenderTemplateInput{
		TemplateID:  templateID,
		Context:     c.String("context"),
		Scale:       c.Float64("scale"),
		Format:      format,
		Supersample: c.Int("supersample"),
	})
	if err != nil {
		return outputError(err)
	}
	if format != ops.FormatPNG {
		return outputJSON(output)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return outputError(errors.NewInternal(err))
	}
	files := make([]renderedFile, 0, len(output.Items))
	for _, item := range output.Items {
		path := filepath.Join(dir, ops.SanitizeForFilename(item.SlideID)+".png")
		if err := writeOutputFile(path, item.PNG); err != nil {
			return outputError(err)
		}
		files = append(files, renderedFile{Path: path, RenderOutput: item})
	}
	return outputJSON(map[string]any{
		"template_id": output.TemplateID,
		"files":       files,
		"errors":      output.Errors,
	})
}

// fetchCmd creates the fetch command.
func fetchCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a template with its slides",
		ArgsUsage: "<template-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-layers", Usage: "Omit per-slide layer summaries"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchInput{ID: c.Args().First()}
			if c.Bool("no-layers") {
				includeLayers := false
				input.IncludeLayers = &includeLayers
			}

			output, err := ops.FetchTemplate(c.Context, d.db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List templates, most recently updated first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items to return"},
			&cli.IntFlag{Name: "offset", Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListTemplates(c.Context, d.db, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a template with its slides and layers",
		ArgsUsage: "<template-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteTemplate(c.Context, d.db, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// backupCmd creates the backup command.
func backupCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write templates to a JSONL backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path (default: ~/.layerdeck/exports/)"},
			&cli.StringSliceFlag{Name: "id", Usage: "Template to include (repeatable, default: all)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Backup(c.Context, d.db, d.cfg, ops.BackupInput{
				Path:        c.String("path"),
				TemplateIDs: c.StringSlice("id"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "Restore templates from a JSONL backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Backup file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Restore(c.Context, d.db, d.cfg, ops.RestoreInput{
				Path: c.String("path"),
				Mode: ops.RestoreMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// webCmd creates the web command.
func webCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve the template browser UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8740, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(d.db, d.renderer, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command. Piped invocations without a command
// start the same server.
func mcpCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP tools over stdio",
		Action: func(c *cli.Context) error {
			if err := mcp.Run(d.db, d.cfg, d.store, d.renderer, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var dErr *errors.DeckError
	if stderrors.As(err, &dErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", dErr.Code, dErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readDesignArg reads a design file named on the command line, or stdin
// for "-".
func readDesignArg(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.NewInvalidRequest("design file argument is required")
	}
	if path == "-" {
		if !stdinHasData() {
			return nil, errors.NewInvalidRequest("design data must be piped via stdin")
		}
		return readStdin(ops.MaxDesignBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, errors.NewInternal(err)
	}
	defer f.Close()
	return readLimited(f, ops.MaxDesignBytes)
}

// writeOutputFile writes data to path, or to stdout for "-".
func writeOutputFile(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewInternal(fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all of stdin, failing past limit bytes.
func readStdin(limit int64) ([]byte, error) {
	return readLimited(os.Stdin, limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return data, nil
}
