package ops

import (
	"fmt"
	"strings"

	"github.com/hpungsan/layerdeck/internal/psd"
)

// DecodeReport renders decode warnings as Markdown, one table row per
// warning. The web detail page converts it to HTML.
func DecodeReport(name string, warnings []psd.Warning) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Decode report: %s\n\n", escapeMarkdown(name))
	if len(warnings) == 0 {
		b.WriteString("No warnings. Every layer decoded cleanly.\n")
		return b.String()
	}

	counts := map[psd.Severity]int{}
	for _, w := range warnings {
		counts[w.Severity]++
	}
	fmt.Fprintf(&b, "**%d warning(s)**, %d informational.\n\n", counts[psd.SeverityWarning], counts[psd.SeverityInfo])
	b.WriteString("| Severity | Code | Layer | Message |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, w := range warnings {
		layerRef := fmt.Sprintf("#%d", w.LayerIndex)
		if w.LayerName != "" {
			layerRef += " " + escapeMarkdown(w.LayerName)
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", w.Severity, w.Code, layerRef, escapeMarkdown(w.Message))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"<", "&lt;",
	">", "&gt;",
	"\n", " ",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
