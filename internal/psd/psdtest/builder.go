// Package psdtest builds small PSD/PSB documents in memory for tests.
package psdtest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image/color"
	"math"
	"strings"
	"unicode/utf16"
)

// Compression selects how a channel's samples are written.
type Compression uint16

const (
	Raw        Compression = 0
	RLE        Compression = 1
	Zip        Compression = 2
	ZipPredict Compression = 3
)

// Channel is one channel of a layer. Encoded, when set, is written
// verbatim (compression tag included) instead of Samples. DeclaredLength,
// when positive, is written in the record in place of the real length.
type Channel struct {
	ID             int16
	Compression    Compression
	Samples        []byte
	Encoded        []byte
	DeclaredLength int
}

// Block is one additional layer info block.
type Block struct {
	Key  string
	Data []byte
}

// Layer is one layer record.
type Layer struct {
	Name                     string
	Top, Left, Bottom, Right int32
	Opacity                  uint8
	Hidden                   bool
	Channels                 []Channel
	Blocks                   []Block
}

// Builder assembles a document. The zero value is not usable; call New.
type Builder struct {
	Version   uint16
	Width     int
	Height    int
	Depth     int
	ColorMode uint16
	Channels  int
	Resources []Resource
	Layers    []Layer
	// NegativeCount writes the layer count negated.
	NegativeCount bool
}

// Resource is one image resource block.
type Resource struct {
	ID   uint16
	Name string
	Data []byte
}

// New returns an 8-bit RGB PSD builder.
func New(width, height int) *Builder {
	return &Builder{Version: 1, Width: width, Height: height, Depth: 8, ColorMode: 3, Channels: 3}
}

// Large switches the builder to PSB.
func (b *Builder) Large() *Builder {
	b.Version = 2
	return b
}

// Add appends layers, bottom first.
func (b *Builder) Add(layers ...Layer) *Builder {
	b.Layers = append(b.Layers, layers...)
	return b
}

// ImageLayer returns an opaque layer covering (left, top, right, bottom)
// filled with c, channels written with comp.
func (b *Builder) ImageLayer(name string, left, top, right, bottom int32, c color.NRGBA, comp Compression) Layer {
	l := Layer{Name: name, Left: left, Top: top, Right: right, Bottom: bottom, Opacity: 255}
	n := int(right-left) * int(bottom-top)
	if n < 0 {
		n = 0
	}
	values := []struct {
		id int16
		v  uint8
	}{{-1, c.A}, {0, c.R}, {1, c.G}, {2, c.B}}
	if b.ColorMode == 1 {
		values = values[:2]
	}
	for _, cv := range values {
		l.Channels = append(l.Channels, Channel{ID: cv.id, Compression: comp, Samples: b.fill(n, cv.v)})
	}
	return l
}

// TextLayer returns a text layer over the given rectangle.
func (b *Builder) TextLayer(name string, left, top, right, bottom int32, t Text) Layer {
	l := Layer{Name: name, Left: left, Top: top, Right: right, Bottom: bottom, Opacity: 255}
	l.Blocks = append(l.Blocks, TypeToolBlock(t))
	return l
}

// ShapeLayer returns a solid colour fill layer.
func (b *Builder) ShapeLayer(name string, left, top, right, bottom int32, r, g, bl float64) Layer {
	l := Layer{Name: name, Left: left, Top: top, Right: right, Bottom: bottom, Opacity: 255}
	l.Blocks = append(l.Blocks, SolidColorBlock(r, g, bl))
	return l
}

// Group wraps children in a folder: divider record first, folder record last.
func Group(name string, hidden bool, children ...Layer) []Layer {
	out := []Layer{{Name: "</Layer group>", Opacity: 255, Blocks: []Block{SectionBlock(3)}}}
	out = append(out, children...)
	return append(out, Layer{Name: name, Opacity: 255, Hidden: hidden, Blocks: []Block{SectionBlock(1)}})
}

func (b *Builder) fill(n int, v uint8) []byte {
	if b.Depth == 16 {
		out := make([]byte, 2*n)
		for i := 0; i < n; i++ {
			out[2*i], out[2*i+1] = v, v
		}
		return out
	}
	return bytes.Repeat([]byte{v}, n)
}

// Bytes encodes the document.
func (b *Builder) Bytes() []byte {
	w := &writer{}
	large := b.Version == 2

	// Header
	w.fourcc("8BPS")
	w.u16(b.Version)
	w.raw(make([]byte, 6))
	w.u16(uint16(b.Channels))
	w.u32(uint32(b.Height))
	w.u32(uint32(b.Width))
	w.u16(uint16(b.Depth))
	w.u16(b.ColorMode)

	// Color mode data
	w.u32(0)

	// Image resources
	res := &writer{}
	for _, r := range b.Resources {
		res.fourcc("8BIM")
		res.u16(r.ID)
		res.pascal(r.Name, 2)
		res.u32(uint32(len(r.Data)))
		res.raw(r.Data)
		if len(r.Data)%2 == 1 {
			res.u8(0)
		}
	}
	w.u32(uint32(res.Len()))
	w.raw(res.Bytes())

	// Layer and mask information
	info := &writer{}
	if len(b.Layers) > 0 {
		count := int16(len(b.Layers))
		if b.NegativeCount {
			count = -count
		}
		info.i16(count)
		encoded := make([][][]byte, len(b.Layers))
		for i, l := range b.Layers {
			encoded[i] = b.encodeChannels(l)
			b.writeRecord(info, l, encoded[i])
		}
		for _, chans := range encoded {
			for _, data := range chans {
				info.raw(data)
			}
		}
	}
	lm := &writer{}
	lm.length(info.Len(), large)
	lm.raw(info.Bytes())
	lm.u32(0) // global layer mask info
	w.length(lm.Len(), large)
	w.raw(lm.Bytes())

	// Image data: compression tag only; the decoder never reads the composite.
	w.u16(0)
	return w.Bytes()
}

func (b *Builder) writeRecord(w *writer, l Layer, chans [][]byte) {
	large := b.Version == 2
	w.i32(l.Top)
	w.i32(l.Left)
	w.i32(l.Bottom)
	w.i32(l.Right)
	w.u16(uint16(len(l.Channels)))
	for i, ch := range l.Channels {
		n := len(chans[i])
		if ch.DeclaredLength > 0 {
			n = ch.DeclaredLength
		}
		w.i16(ch.ID)
		w.length(n, large)
	}
	w.fourcc("8BIM")
	w.fourcc("norm")
	w.u8(l.Opacity)
	w.u8(0)
	var flags uint8
	if l.Hidden {
		flags |= 1 << 1
	}
	w.u8(flags)
	w.u8(0)

	extra := &writer{}
	extra.u32(0) // layer mask data
	extra.u32(0) // blending ranges
	extra.pascal(l.Name, 4)
	for _, blk := range l.Blocks {
		extra.fourcc("8BIM")
		extra.fourcc(blk.Key)
		extra.u32(uint32(len(blk.Data)))
		extra.raw(blk.Data)
	}
	w.u32(uint32(extra.Len()))
	w.raw(extra.Bytes())
}

func (b *Builder) encodeChannels(l Layer) [][]byte {
	width := int(l.Right - l.Left)
	height := int(l.Bottom - l.Top)
	out := make([][]byte, len(l.Channels))
	for i, ch := range l.Channels {
		if ch.Encoded != nil {
			out[i] = ch.Encoded
			continue
		}
		out[i] = EncodeChannel(ch.Compression, ch.Samples, width, height, b.Depth/8, b.Version == 2)
	}
	return out
}

// EncodeChannel writes the compression tag and samples in the given scheme.
func EncodeChannel(comp Compression, samples []byte, width, height, bps int, large bool) []byte {
	w := &writer{}
	w.u16(uint16(comp))
	if width <= 0 || height <= 0 {
		return w.Bytes()
	}
	rowBytes := width * bps
	switch comp {
	case RLE:
		rows := make([][]byte, height)
		for y := range rows {
			rows[y] = PackBits(samples[y*rowBytes : (y+1)*rowBytes])
			if large {
				w.u32(uint32(len(rows[y])))
			} else {
				w.u16(uint16(len(rows[y])))
			}
		}
		for _, r := range rows {
			w.raw(r)
		}
	case Zip, ZipPredict:
		data := samples
		if comp == ZipPredict {
			data = predict(samples, width, height, bps)
		}
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write(data)
		_ = zw.Close()
		w.raw(buf.Bytes())
	default:
		w.raw(samples)
	}
	return w.Bytes()
}

func predict(samples []byte, width, height, bps int) []byte {
	out := make([]byte, len(samples))
	copy(out, samples)
	rowBytes := width * bps
	for y := 0; y < height; y++ {
		row := out[y*rowBytes : (y+1)*rowBytes]
		src := samples[y*rowBytes : (y+1)*rowBytes]
		if bps == 2 {
			for x := width - 1; x > 0; x-- {
				cur := binary.BigEndian.Uint16(src[x*2:])
				prev := binary.BigEndian.Uint16(src[(x-1)*2:])
				binary.BigEndian.PutUint16(row[x*2:], cur-prev)
			}
			continue
		}
		for x := width - 1; x > 0; x-- {
			row[x] = src[x] - src[x-1]
		}
	}
	return out
}

// PackBits encodes one row.
func PackBits(row []byte) []byte {
	var out []byte
	i := 0
	for i < len(row) {
		j := i + 1
		for j < len(row) && j-i < 128 && row[j] == row[i] {
			j++
		}
		if j-i >= 2 {
			out = append(out, byte(int8(1-(j-i))), row[i])
			i = j
			continue
		}
		j = i + 1
		for j < len(row) && j-i < 128 && !(j+1 < len(row) && row[j] == row[j+1]) {
			j++
		}
		out = append(out, byte(j-i-1))
		out = append(out, row[i:j]...)
		i = j
	}
	return out
}

// UnicodeNameBlock returns a luni block.
func UnicodeNameBlock(name string) Block {
	w := &writer{}
	w.unicode(name)
	return Block{Key: "luni", Data: w.Bytes()}
}

// LayerIDBlock returns a lyid block.
func LayerIDBlock(id uint32) Block {
	w := &writer{}
	w.u32(id)
	return Block{Key: "lyid", Data: w.Bytes()}
}

// SectionBlock returns an lsct block of the given divider type.
func SectionBlock(kind uint32) Block {
	w := &writer{}
	w.u32(kind)
	return Block{Key: "lsct", Data: w.Bytes()}
}

// LockBlock returns an lspf block with the lock-all flag.
func LockBlock() Block {
	w := &writer{}
	w.u32(1 << 31)
	return Block{Key: "lspf", Data: w.Bytes()}
}

// SolidColorBlock returns a SoCo block; components are 0..255.
func SolidColorBlock(r, g, b float64) Block {
	w := &writer{}
	w.u32(16)
	w.descriptor("null", []item{
		{key: "Clr ", typ: "Objc", val: func(w *writer) {
			w.descriptor("RGBC", []item{
				{key: "Rd  ", typ: "doub", val: func(w *writer) { w.f64(r) }},
				{key: "Grn ", typ: "doub", val: func(w *writer) { w.f64(g) }},
				{key: "Bl  ", typ: "doub", val: func(w *writer) { w.f64(b) }},
			})
		}},
	})
	return Block{Key: "SoCo", Data: w.Bytes()}
}

// Text describes a type layer. Zero fields are left out of the engine data.
type Text struct {
	Content       string
	Font          string
	Size          float64
	Color         *[3]float64
	Justification int
	Tracking      float64
	Leading       float64
	FontCaps      int
	FauxBold      bool
	FauxItalic    bool
	// Transform is xx, xy, yx, yy, tx, ty; zero means identity.
	Transform [6]float64
	// EngineData, when set, replaces the generated engine data.
	EngineData []byte
}

// TypeToolBlock returns a TySh block.
func TypeToolBlock(t Text) Block {
	m := t.Transform
	if m == ([6]float64{}) {
		m = [6]float64{1, 0, 0, 1, 0, 0}
	}
	engine := t.EngineData
	if engine == nil {
		engine = EngineData(t)
	}

	w := &writer{}
	w.u16(1)
	for _, v := range m {
		w.f64(v)
	}
	w.u16(50)
	w.u32(16)
	w.descriptor("TxLr", []item{
		{key: "Txt ", typ: "TEXT", val: func(w *writer) { w.unicode(strings.ReplaceAll(t.Content, "\n", "\r")) }},
		{key: "textGridding", typ: "enum", val: func(w *writer) { w.id("textGridding"); w.id("None") }},
		{key: "Ornt", typ: "enum", val: func(w *writer) { w.id("Ornt"); w.id("Hrzn") }},
		{key: "AntA", typ: "enum", val: func(w *writer) { w.id("Annt"); w.id("antiAliasSharp") }},
		{key: "EngineData", typ: "tdta", val: func(w *writer) { w.u32(uint32(len(engine))); w.raw(engine) }},
	})
	// Warp settings and bounds follow; the decoder does not read them.
	w.u16(1)
	w.u32(16)
	w.descriptor("warp", nil)
	for i := 0; i < 4; i++ {
		w.f64(0)
	}
	return Block{Key: "TySh", Data: w.Bytes()}
}

// EngineData renders the PostScript-like dictionary for t.
func EngineData(t Text) []byte {
	var style []string
	if t.Font != "" {
		style = append(style, "/Font 0")
	}
	if t.Size > 0 {
		style = append(style, "/FontSize "+num(t.Size))
	}
	if t.Leading > 0 {
		style = append(style, "/AutoLeading false", "/Leading "+num(t.Leading))
	}
	if t.Tracking != 0 {
		style = append(style, "/Tracking "+num(t.Tracking))
	}
	if t.Color != nil {
		style = append(style, fmt.Sprintf("/FillColor << /Type 1 /Values [ 1.0 %s %s %s ] >>",
			num(t.Color[0]), num(t.Color[1]), num(t.Color[2])))
	}
	if t.FontCaps != 0 {
		style = append(style, fmt.Sprintf("/FontCaps %d", t.FontCaps))
	}
	if t.FauxBold {
		style = append(style, "/FauxBold true")
	}
	if t.FauxItalic {
		style = append(style, "/FauxItalic true")
	}

	var sb strings.Builder
	sb.WriteString("\n\n<<\n\t/EngineDict\n\t<<\n")
	sb.WriteString("\t\t/Editor << /Text " + engineString(strings.ReplaceAll(t.Content, "\n", "\r")+"\r") + " >>\n")
	fmt.Fprintf(&sb, "\t\t/ParagraphRun << /RunArray [ << /ParagraphSheet << /Properties << /Justification %d >> >> >> ] >>\n", t.Justification)
	sb.WriteString("\t\t/StyleRun << /RunArray [ << /StyleSheet << /StyleSheetData << " + strings.Join(style, " ") + " >> >> >> ] >>\n")
	sb.WriteString("\t>>\n")
	if t.Font != "" {
		sb.WriteString("\t/ResourceDict << /FontSet [ << /Name " + engineString(t.Font) + " /Type 0 >> ] >>\n")
	}
	sb.WriteString(">>")
	return []byte(sb.String())
}

func num(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%g", v)
}

// engineString encodes s as a BOM-prefixed UTF-16BE engine string.
func engineString(s string) string {
	var raw []byte
	raw = append(raw, 0xFE, 0xFF)
	for _, u := range utf16.Encode([]rune(s)) {
		raw = append(raw, byte(u>>8), byte(u))
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for _, c := range raw {
		if c == '(' || c == ')' || c == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte(')')
	return sb.String()
}

type item struct {
	key string
	typ string
	val func(*writer)
}

type writer struct {
	bytes.Buffer
}

func (w *writer) u8(v uint8) { w.WriteByte(v) }
func (w *writer) u16(v uint16) { _ = binary.Write(w, binary.BigEndian, v) }
func (w *writer) i16(v int16) { _ = binary.Write(w, binary.BigEndian, v) }
func (w *writer) u32(v uint32) { _ = binary.Write(w, binary.BigEndian, v) }
func (w *writer) i32(v int32) { _ = binary.Write(w, binary.BigEndian, v) }
func (w *writer) u64(v uint64) { _ = binary.Write(w, binary.BigEndian, v) }
func (w *writer) f64(v float64) {
	_ = binary.Write(w, binary.BigEndian, math.Float64bits(v))
}
func (w *writer) raw(b []byte) { w.Write(b) }
func (w *writer) fourcc(s string) { w.WriteString(s) }

func (w *writer) length(n int, wide bool) {
	if wide {
		w.u64(uint64(n))
		return
	}
	w.u32(uint32(n))
}

func (w *writer) pascal(s string, pad int) {
	w.u8(uint8(len(s)))
	w.WriteString(s)
	if rem := (len(s) + 1) % pad; rem != 0 {
		w.raw(make([]byte, pad-rem))
	}
}

func (w *writer) unicode(s string) {
	units := utf16.Encode([]rune(s))
	w.u32(uint32(len(units) + 1))
	for _, u := range units {
		w.u16(u)
	}
	w.u16(0)
}

func (w *writer) id(s string) {
	if len(s) == 4 {
		w.u32(0)
	} else {
		w.u32(uint32(len(s)))
	}
	w.WriteString(s)
}

func (w *writer) descriptor(class string, items []item) {
	w.unicode("")
	w.id(class)
	w.u32(uint32(len(items)))
	for _, it := range items {
		w.id(it.key)
		w.fourcc(it.typ)
		it.val(w)
	}
}
