package compose

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/gogpu/gg/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hpungsan/layerdeck/internal/fonts"
	"github.com/hpungsan/layerdeck/internal/layer"
)

// applyTransform applies a text-transform policy. Capitalize upper-cases the
// first letter of each word and leaves the rest alone.
func applyTransform(s string, t layer.TextTransform) string {
	switch t {
	case layer.TransformUppercase:
		return cases.Upper(language.Und).String(s)
	case layer.TransformLowercase:
		return cases.Lower(language.Und).String(s)
	case layer.TransformCapitalize:
		return cases.Title(language.Und, cases.NoLower).String(s)
	}
	return s
}

// layoutText wraps the text to the scaled box width and places each line.
// Breaks fall on word boundaries only; a word wider than the box overflows.
// A box without width keeps each paragraph on one line. Letter spacing
// widens measured lines but does not take part in wrapping.
func layoutText(t layer.Text, font *fonts.Handle, boxW, scale float64) *TextRun {
	size := t.FontSize * scale
	run := &TextRun{
		Content:        applyTransform(t.Content, t.Transform),
		FontFamily:     t.FontFamily,
		ResolvedFamily: font.Family,
		FontWeight:     t.FontWeight,
		FontStyle:      t.FontStyle,
		FontSize:       size,
		Color:          t.Color,
		Align:          t.Align,
		LineHeight:     t.FontSize * t.LineHeight * scale,
		LetterSpacing:  t.LetterSpacing * scale,
		Transform:      t.Transform,
		Font:           font,
	}
	if run.Content == "" || size <= 0 {
		run.Lines = []Line{}
		return run
	}

	face := font.Face(size)
	m := face.Metrics()
	pitch := run.LineHeight
	// Half-leading puts the extra line space evenly above and below glyphs.
	firstBaseline := (pitch-(m.Ascent+m.Descent))/2 + m.Ascent

	wrapW := boxW
	if wrapW <= 0 {
		wrapW = math.MaxFloat64
	}
	wrapped := text.WrapText(run.Content, face, wrapW, text.WrapWord)
	run.Lines = make([]Line, 0, len(wrapped))
	for i, wr := range wrapped {
		s := strings.TrimRight(wr.Text, " \t")
		width := face.Advance(s)
		if n := utf8.RuneCountInString(s); n > 1 {
			width += run.LetterSpacing * float64(n-1)
		}
		run.Lines = append(run.Lines, Line{
			Text:     s,
			X:        alignOffset(t.Align, boxW, width),
			Baseline: firstBaseline + float64(i)*pitch,
			Width:    width,
		})
	}
	return run
}

func alignOffset(a layer.Align, boxW, lineW float64) float64 {
	switch a {
	case layer.AlignCenter:
		return (boxW - lineW) / 2
	case layer.AlignRight:
		return boxW - lineW
	}
	return 0
}
