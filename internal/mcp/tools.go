package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/layerdeck/internal/ops"
	"github.com/hpungsan/layerdeck/internal/scale"
)

func contextNames() []string {
	out := make([]string, len(scale.Contexts))
	for i, c := range scale.Contexts {
		out[i] = string(c)
	}
	return out
}

var importToolDef = mcp.NewTool("design_import",
	mcp.WithDescription("Decode a layered design file (.psd/.psb) and store it as a template. "+
		"Each slide is committed independently; slides that fail are reported in 'failed'."),
	mcp.WithString("path", mcp.Required(),
		mcp.Description("Path to the design file. Must be inside an allowed directory.")),
	mcp.WithString("name",
		mcp.Description("Template name. Defaults to the file name without extension.")),
)

var inspectToolDef = mcp.NewTool("design_inspect",
	mcp.WithDescription("Decode a design file without storing it. Returns the header, "+
		"a per-slide layer summary and decode warnings."),
	mcp.WithString("path", mcp.Required(),
		mcp.Description("Path to the design file.")),
)

var renderToolDef = mcp.NewTool("slide_render",
	mcp.WithDescription("Render a stored slide. 'json' returns the positioned render tree; "+
		"'png' returns an image. Give either a display context or an explicit scale."),
	mcp.WithString("slide_id", mcp.Required(),
		mcp.Description("Slide ID from template_fetch.")),
	mcp.WithString("context",
		mcp.Description("Display context ("+strings.Join(contextNames(), ", ")+"). Default: interactive."),
		mcp.Enum(contextNames()...)),
	mcp.WithNumber("scale",
		mcp.Description("Explicit scale factor in (0, 16]. Overrides context.")),
	mcp.WithString("format",
		mcp.Description("Output format. Default: json."),
		mcp.Enum(ops.FormatJSON, ops.FormatPNG)),
	mcp.WithNumber("supersample",
		mcp.Description("PNG only: paint at this multiple and downsample (1-4).")),
)

var fetchToolDef = mcp.NewTool("template_fetch",
	mcp.WithDescription("Fetch a template with its slides and decode warnings."),
	mcp.WithString("id", mcp.Required(),
		mcp.Description("Template ID.")),
	mcp.WithBoolean("include_layers",
		mcp.Description("Include per-slide layer summaries. Default: true.")),
)

var listToolDef = mcp.NewTool("template_list",
	mcp.WithDescription("List templates, most recently updated first."),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100).")),
	mcp.WithNumber("offset",
		mcp.Description("Rows to skip.")),
)

var deleteToolDef = mcp.NewTool("template_delete",
	mcp.WithDescription("Delete a template with its slides and layers. Stored assets are kept."),
	mcp.WithString("id", mcp.Required(),
		mcp.Description("Template ID.")),
)

var backupToolDef = mcp.NewTool("template_backup",
	mcp.WithDescription("Write templates to a JSONL backup file."),
	mcp.WithString("path",
		mcp.Description("Output .jsonl path. Default: ~/.layerdeck/exports/layerdeck-<timestamp>.jsonl")),
	mcp.WithArray("template_ids",
		mcp.Description("Templates to include. Default: all."),
		mcp.WithStringItems()),
)

var restoreToolDef = mcp.NewTool("template_restore",
	mcp.WithDescription("Restore templates from a JSONL backup file."),
	mcp.WithString("path", mcp.Required(),
		mcp.Description("Backup .jsonl path.")),
	mcp.WithString("mode",
		mcp.Description("Collision handling. Default: error."),
		mcp.Enum(string(ops.RestoreModeError), string(ops.RestoreModeReplace), string(ops.RestoreModeSkip))),
)
