// Package layer holds the canonical slide and layer model shared by the
// decoder, the record store, and the compositor.
package layer

// Kind discriminates the payload a Layer carries.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindShape Kind = "shape"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindText || k == KindImage || k == KindShape
}

// Align is the horizontal alignment of a text block.
type Align string

const (
	AlignLeft    Align = "left"
	AlignCenter  Align = "center"
	AlignRight   Align = "right"
	AlignJustify Align = "justify"
)

// TextTransform is the case policy applied to text at render time.
type TextTransform string

const (
	TransformNone       TextTransform = "none"
	TransformUppercase  TextTransform = "uppercase"
	TransformLowercase  TextTransform = "lowercase"
	TransformCapitalize TextTransform = "capitalize"
)

// FontStyle is the slant requested from the font resolver.
type FontStyle string

const (
	StyleNormal FontStyle = "normal"
	StyleItalic FontStyle = "italic"
)

// Defaults applied when a source omits a field.
const (
	DefaultAlign         = AlignLeft
	DefaultLineHeight    = 1.2
	DefaultLetterSpacing = 0.0
	DefaultTransform     = TransformNone
	DefaultFontSize      = 12.0
	DefaultFontWeight    = 400
	DefaultFontStyle     = StyleNormal
	DefaultColor         = "#000000"
	DefaultPrimitive     = "rect"
)

// Text is the payload of a text layer.
type Text struct {
	Content       string        `json:"content"`
	FontFamily    string        `json:"fontFamily"`
	FontSize      float64       `json:"fontSize"`
	FontWeight    int           `json:"fontWeight"`
	FontStyle     FontStyle     `json:"fontStyle"`
	Color         string        `json:"color"`
	Align         Align         `json:"align"`
	LineHeight    float64       `json:"lineHeight"`
	LetterSpacing float64       `json:"letterSpacing"`
	Transform     TextTransform `json:"textTransform"`
}

// Image is the payload of an image layer. Locator is opaque to the model;
// the asset store resolves it.
type Image struct {
	Locator string `json:"locator"`
}

// Shape is the payload of a shape layer.
type Shape struct {
	Primitive   string            `json:"primitive"`
	Fill        string            `json:"fill,omitempty"`
	Stroke      string            `json:"stroke,omitempty"`
	StrokeWidth float64           `json:"strokeWidth,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Layer is one positioned visual element of a Slide.
// Exactly one of Text, Image, Shape is set, matching Kind.
type Layer struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	Opacity  float64 `json:"opacity"`
	Visible  bool    `json:"visible"`
	Locked   bool    `json:"locked"`
	ZIndex   int     `json:"zIndex"`

	Text  *Text  `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
	Shape *Shape `json:"shape,omitempty"`
}

// Slide is one canvas: fixed pixel dimensions and the layers it owns.
// Layers are kept in decode/storage order; paint order comes from ZIndex.
type Slide struct {
	ID     string  `json:"id"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Layers []Layer `json:"layers"`
}

// Layer returns the layer with the given ID.
func (s Slide) Layer(id string) (Layer, bool) {
	for _, l := range s.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}
