package psd

import (
	"fmt"
	"image"

	"github.com/hpungsan/layerdeck/internal/binreader"
	"github.com/hpungsan/layerdeck/internal/errors"
	"github.com/hpungsan/layerdeck/internal/layer"
)

type decoder struct {
	r    *binreader.Reader
	opts options
	hdr  Header
	doc  *Document
}

func newDecoder(data []byte, o options) *decoder {
	return &decoder{
		r:    binreader.New(data),
		opts: o,
		doc:  &Document{Rasters: map[string]*image.NRGBA{}},
	}
}

func (d *decoder) run() error {
	hdr, err := readHeader(d.r)
	if err != nil {
		return err
	}
	d.hdr = hdr
	d.doc.Header = hdr

	// Color mode data
	if _, err := d.section("color mode data", false); err != nil {
		return err
	}

	// Image resources
	res, err := d.section("image resources", false)
	if err != nil {
		return err
	}
	if err := skipResources(res); err != nil {
		return err
	}

	records, err := d.readLayerAndMask()
	if err != nil {
		return err
	}

	layers := d.buildLayers(records)
	slide, err := layer.NewSlide(d.opts.slideID, hdr.Width, hdr.Height, layers)
	if err != nil {
		return err
	}
	d.doc.Slides = []layer.Slide{slide}
	return nil
}

// section reads a length prefix and returns a reader over the section body.
// A missing section at end of input is treated as empty.
func (d *decoder) section(name string, wide bool) (*binreader.Reader, error) {
	if d.r.Len() == 0 {
		return binreader.New(nil), nil
	}
	start := d.r.Pos()
	n, err := d.r.Length(wide)
	if err != nil {
		return nil, errors.NewTruncatedInput(name, start, err)
	}
	sub, err := d.r.Sub(n)
	if err != nil {
		return nil, errors.NewTruncatedInput(name, start, err)
	}
	return sub, nil
}

func (d *decoder) readLayerAndMask() ([]*record, error) {
	lm, err := d.section("layer and mask information", d.hdr.Large())
	if err != nil {
		return nil, err
	}
	if lm.Len() == 0 {
		return nil, nil
	}

	start := lm.Pos()
	n, err := lm.Length(d.hdr.Large())
	if err != nil {
		return nil, errors.NewTruncatedInput("layer info", start, err)
	}
	info, err := lm.Sub(n)
	if err != nil {
		return nil, errors.NewTruncatedInput("layer info", start, err)
	}
	if info.Len() > 0 {
		return d.readLayerInfo(info)
	}

	// 16-bit documents may carry their layer info in a trailing tagged block.
	return d.readTaggedLayerInfo(lm)
}

func (d *decoder) readTaggedLayerInfo(lm *binreader.Reader) ([]*record, error) {
	start := lm.Pos()
	maskLen, err := lm.Length(false)
	if err != nil {
		// No global mask info at all.
		return nil, nil
	}
	if err := lm.Skip(maskLen); err != nil {
		return nil, errors.NewTruncatedInput("global layer mask info", start, err)
	}

	for lm.Len() >= 12 {
		blk, err := readTaggedBlock(lm, d.hdr.Large())
		if err != nil {
			return nil, err
		}
		if blk == nil {
			return nil, nil
		}
		switch blk.key {
		case "Layr", "Lr16":
			return d.readLayerInfo(blk.data)
		}
	}
	return nil, nil
}

func (d *decoder) readLayerInfo(info *binreader.Reader) ([]*record, error) {
	start := info.Pos()
	rawCount, err := info.Int16()
	if err != nil {
		return nil, errors.NewTruncatedInput("layer count", start, err)
	}
	count := int(rawCount)
	if count < 0 {
		count = -count
	}
	if count*minRecordSize > info.Len() {
		return nil, errors.NewTruncatedInput("layer records", start,
			fmt.Errorf("%d layers need at least %d bytes, have %d", count, count*minRecordSize, info.Len()))
	}

	records := make([]*record, 0, count)
	for i := 0; i < count; i++ {
		rec, err := d.readRecord(info, i)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	for _, rec := range records {
		if err := d.readChannelData(info, rec); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (d *decoder) warn(code errors.ErrorCode, sev Severity, index int, name, msg string) {
	d.doc.Warnings = append(d.doc.Warnings, Warning{
		Code:       code,
		Severity:   sev,
		LayerIndex: index,
		LayerName:  name,
		Message:    msg,
	})
}

func (d *decoder) warnErr(index int, name string, err error) {
	sev := SeverityWarning
	if errors.Is(err, errors.ErrUnknownRecord) {
		sev = SeverityInfo
	}
	d.warn(errors.CodeOf(err), sev, index, name, err.Error())
}
