package psd

import (
	"fmt"
	"image"

	"github.com/hpungsan/layerdeck/internal/binreader"
	"github.com/hpungsan/layerdeck/internal/errors"
)

// rect(16) + channel count(2) + blend sig(4) + blend key(4) +
// opacity, clipping, flags, filler(4) + extra length(4)
const minRecordSize = 34

// sectionKind is the lsct divider type.
type sectionKind uint32

const (
	sectionNone sectionKind = iota
	sectionOpenFolder
	sectionClosedFolder
	sectionDivider
)

const (
	flagHidden = 1 << 1

	lockTransparency = 1 << 0
	lockComposite    = 1 << 1
	lockPosition     = 1 << 2
	lockAll          = 1 << 31
)

type channelInfo struct {
	id     int16
	length int
}

// record is one layer record plus everything gathered for it while
// reading additional info and channel data.
type record struct {
	index                    int
	top, left, bottom, right int
	channels                 []channelInfo
	opacity                  uint8
	flags                    uint8
	name                     string

	layerID    uint32
	hasLayerID bool
	section    sectionKind
	text       *textStyle
	textErr    error
	fill       string
	hasFill    bool
	vectorMask bool
	locked     bool

	raster  *image.NRGBA
	dropErr error
}

func (rec *record) width() int  { return rec.right - rec.left }
func (rec *record) height() int { return rec.bottom - rec.top }

// wantsRaster reports whether the layer becomes an image layer.
func (rec *record) wantsRaster() bool {
	return rec.section == sectionNone && rec.text == nil && !rec.hasFill && !rec.vectorMask
}

// Additional layer info keys that carry nothing the layer model uses.
var ignoredKeys = map[string]bool{
	"lfx2": true, "lrFX": true, "fxrp": true, "shmd": true, "clbl": true,
	"infx": true, "knko": true, "lclr": true, "iOpa": true, "brst": true,
	"tsly": true, "cust": true, "artb": true, "lnsr": true, "pths": true,
	"anFX": true, "lmgm": true, "vstk": true, "vogk": true, "sn2P": true,
	"PlLd": true, "SoLd": true, "Patt": true, "Pat2": true, "Pat3": true,
	"Txt2": true, "FMsk": true, "LMsk": true, "Lr16": true, "Lr32": true,
	"Layr": true, "Mt16": true, "Mt32": true, "Mtrn": true, "Alph": true,
	"FEid": true, "FXid": true, "PxSD": true, "lnk2": true, "lnkD": true,
	"lnk3": true,
}

// Keys whose length is 64-bit in PSB files.
var wideKeys = map[string]bool{
	"LMsk": true, "Lr16": true, "Lr32": true, "Layr": true, "Mt16": true,
	"Mt32": true, "Mtrn": true, "Alph": true, "FMsk": true, "lnk2": true,
	"FEid": true, "FXid": true, "PxSD": true,
}

func (d *decoder) readRecord(r *binreader.Reader, index int) (*record, error) {
	start := r.Pos()
	truncated := func(err error) error {
		return errors.NewTruncatedInput(fmt.Sprintf("layer record %d", index), start, err)
	}

	if r.Len() < 18 {
		return nil, truncated(binreader.ErrShortRead)
	}
	rec := &record{index: index}
	top, _ := r.Int32()
	left, _ := r.Int32()
	bottom, _ := r.Int32()
	right, _ := r.Int32()
	rec.top, rec.left, rec.bottom, rec.right = int(top), int(left), int(bottom), int(right)

	count, _ := r.Uint16()
	entry := 6
	if d.hdr.Large() {
		entry = 10
	}
	if int(count)*entry > r.Len() {
		return nil, truncated(fmt.Errorf("%d channel entries need %d bytes, have %d", count, int(count)*entry, r.Len()))
	}
	rec.channels = make([]channelInfo, count)
	for i := range rec.channels {
		id, _ := r.Int16()
		n, err := r.Length(d.hdr.Large())
		if err != nil {
			return nil, truncated(err)
		}
		rec.channels[i] = channelInfo{id: id, length: n}
	}

	if r.Len() < 16 {
		return nil, truncated(binreader.ErrShortRead)
	}
	sig, _ := r.FourCC()
	if sig != "8BIM" {
		return nil, errors.NewFormat(fmt.Sprintf("layer record %d: bad blend mode signature %q", index, sig))
	}
	_, _ = r.FourCC() // blend key; only normal is composited
	rec.opacity, _ = r.Uint8()
	_, _ = r.Uint8() // clipping
	rec.flags, _ = r.Uint8()
	_, _ = r.Uint8() // filler

	extraLen, _ := r.Length(false)
	extra, err := r.Sub(extraLen)
	if err != nil {
		return nil, truncated(err)
	}
	if err := d.readExtra(extra, rec, truncated); err != nil {
		return nil, err
	}

	if rec.right < rec.left || rec.bottom < rec.top {
		rec.dropErr = errors.NewGeometry(fmt.Sprintf("layer %d: inverted rectangle (%d,%d)-(%d,%d)",
			index, rec.left, rec.top, rec.right, rec.bottom))
	}
	return rec, nil
}

func (d *decoder) readExtra(extra *binreader.Reader, rec *record, truncated func(error) error) error {
	if extra.Len() == 0 {
		return nil
	}

	// Layer mask data, then blending ranges; both skipped.
	for i := 0; i < 2; i++ {
		n, err := extra.Length(false)
		if err != nil {
			return truncated(err)
		}
		if err := extra.Skip(n); err != nil {
			return truncated(err)
		}
	}

	name, err := extra.PascalString(4)
	if err != nil {
		return truncated(err)
	}
	rec.name = name

	for extra.Len() >= 12 {
		blk, err := readTaggedBlock(extra, d.hdr.Large())
		if err != nil {
			return err
		}
		if blk == nil {
			d.warnErr(rec.index, rec.name, errors.NewUnknownRecord("additional info", extra.Len()))
			return nil
		}
		d.applyTaggedBlock(rec, blk)
	}
	return nil
}

type taggedBlock struct {
	key  string
	data *binreader.Reader
}

// readTaggedBlock reads one `8BIM`/`8B64` keyed block. It returns nil,
// nil when the next bytes do not start a block.
func readTaggedBlock(r *binreader.Reader, large bool) (*taggedBlock, error) {
	start := r.Pos()
	sig, err := r.FourCC()
	if err != nil {
		return nil, errors.NewTruncatedInput("tagged block", start, err)
	}
	if sig != "8BIM" && sig != "8B64" {
		return nil, nil
	}
	key, err := r.FourCC()
	if err != nil {
		return nil, errors.NewTruncatedInput("tagged block", start, err)
	}
	n, err := r.Length(large && wideKeys[key])
	if err != nil {
		return nil, errors.NewTruncatedInput("tagged block "+key, start, err)
	}
	data, err := r.Sub(n)
	if err != nil {
		return nil, errors.NewTruncatedInput("tagged block "+key, start, err)
	}
	return &taggedBlock{key: key, data: data}, nil
}

func (d *decoder) applyTaggedBlock(rec *record, blk *taggedBlock) {
	switch blk.key {
	case "luni":
		if s, err := blk.data.UnicodeString(); err == nil && s != "" {
			rec.name = s
		}
	case "lyid":
		if v, err := blk.data.Uint32(); err == nil {
			rec.layerID, rec.hasLayerID = v, true
		}
	case "lsct", "lsdk":
		if v, err := blk.data.Uint32(); err == nil && v <= uint32(sectionDivider) {
			rec.section = sectionKind(v)
		}
	case "TySh":
		rec.text, rec.textErr = parseTypeTool(blk.data)
		if rec.textErr != nil {
			rec.text = nil
			rec.textErr = errors.NewTextDecode(rec.textErr)
		}
	case "SoCo":
		rec.fill = parseSolidColor(blk.data)
		rec.hasFill = true
	case "vmsk", "vsms":
		rec.vectorMask = true
	case "lspf":
		if v, err := blk.data.Uint32(); err == nil {
			rec.locked = v&(lockAll|lockPosition|lockComposite|lockTransparency) != 0
		}
	default:
		if !ignoredKeys[blk.key] {
			d.warnErr(rec.index, rec.name, errors.NewUnknownRecord(blk.key, blk.data.Len()))
		}
	}
}
