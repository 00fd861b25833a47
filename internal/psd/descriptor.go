package psd

import (
	"fmt"

	"github.com/hpungsan/layerdeck/internal/binreader"
)

const maxDescriptorDepth = 32

// descriptor is a decoded action descriptor: a class ID and ordered,
// typed items.
type descriptor struct {
	class string
	items []descItem
}

type descItem struct {
	key   string
	value any
}

func (d *descriptor) get(key string) (any, bool) {
	for _, it := range d.items {
		if it.key == key {
			return it.value, true
		}
	}
	return nil, false
}

type unitFloat struct {
	unit  string
	value float64
}

type enumValue struct {
	typ   string
	value string
}

// rawData is the payload of tdta, alis and Pth items.
type rawData []byte

func readDescriptor(r *binreader.Reader, depth int) (*descriptor, error) {
	if depth > maxDescriptorDepth {
		return nil, fmt.Errorf("descriptor nesting deeper than %d", maxDescriptorDepth)
	}
	if _, err := r.UnicodeString(); err != nil {
		return nil, fmt.Errorf("descriptor class name: %w", err)
	}
	class, err := readID(r)
	if err != nil {
		return nil, fmt.Errorf("descriptor class id: %w", err)
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("descriptor item count: %w", err)
	}
	// Each item is at least a key length, a one-byte key and a type.
	if uint64(count)*9 > uint64(r.Len()) {
		return nil, fmt.Errorf("descriptor claims %d items in %d bytes", count, r.Len())
	}

	desc := &descriptor{class: class, items: make([]descItem, 0, count)}
	for i := uint32(0); i < count; i++ {
		key, err := readID(r)
		if err != nil {
			return nil, fmt.Errorf("descriptor item %d key: %w", i, err)
		}
		typ, err := r.FourCC()
		if err != nil {
			return nil, fmt.Errorf("descriptor item %q type: %w", key, err)
		}
		v, err := readValue(r, typ, depth)
		if err != nil {
			return nil, fmt.Errorf("descriptor item %q: %w", key, err)
		}
		desc.items = append(desc.items, descItem{key: key, value: v})
	}
	return desc, nil
}

// readID reads a length-prefixed key; length zero means a 4-byte key follows.
func readID(r *binreader.Reader) (string, error) {
	n, err := r.Length(false)
	if err != nil {
		return "", err
	}
	if n == 0 {
		n = 4
	}
	b, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readValue(r *binreader.Reader, typ string, depth int) (any, error) {
	switch typ {
	case "obj ":
		return nil, skipReference(r)
	case "Objc", "GlbO":
		return readDescriptor(r, depth+1)
	case "VlLs":
		count, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		if uint64(count)*4 > uint64(r.Len()) {
			return nil, fmt.Errorf("list claims %d items in %d bytes", count, r.Len())
		}
		list := make([]any, 0, count)
		for i := uint32(0); i < count; i++ {
			t, err := r.FourCC()
			if err != nil {
				return nil, err
			}
			v, err := readValue(r, t, depth+1)
			if err != nil {
				return nil, fmt.Errorf("list item %d: %w", i, err)
			}
			list = append(list, v)
		}
		return list, nil
	case "doub":
		return r.Float64()
	case "UntF":
		unit, err := r.FourCC()
		if err != nil {
			return nil, err
		}
		v, err := r.Float64()
		return unitFloat{unit: unit, value: v}, err
	case "UnFl":
		if _, err := r.FourCC(); err != nil {
			return nil, err
		}
		count, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		if uint64(count)*8 > uint64(r.Len()) {
			return nil, fmt.Errorf("float list claims %d values in %d bytes", count, r.Len())
		}
		vals := make([]float64, count)
		for i := range vals {
			vals[i], _ = r.Float64()
		}
		return vals, nil
	case "TEXT":
		return r.UnicodeString()
	case "enum":
		t, err := readID(r)
		if err != nil {
			return nil, err
		}
		v, err := readID(r)
		return enumValue{typ: t, value: v}, err
	case "long":
		return r.Int32()
	case "comp":
		return r.Int64()
	case "bool":
		b, err := r.Uint8()
		return b != 0, err
	case "type", "GlbC":
		if _, err := r.UnicodeString(); err != nil {
			return nil, err
		}
		return readID(r)
	case "alis", "tdta", "Pth ":
		n, err := r.Length(false)
		if err != nil {
			return nil, err
		}
		b, err := r.Bytes(n)
		return rawData(b), err
	default:
		return nil, fmt.Errorf("unknown item type %q", typ)
	}
}

// skipReference consumes an "obj " reference, which the layer model never uses.
func skipReference(r *binreader.Reader) error {
	count, err := r.Uint32()
	if err != nil {
		return err
	}
	if uint64(count)*4 > uint64(r.Len()) {
		return fmt.Errorf("reference claims %d items in %d bytes", count, r.Len())
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.FourCC()
		if err != nil {
			return err
		}
		if err := skipReferenceItem(r, form); err != nil {
			return fmt.Errorf("reference item %q: %w", form, err)
		}
	}
	return nil
}

func skipReferenceItem(r *binreader.Reader, form string) error {
	switch form {
	case "Idnt", "indx":
		_, err := r.Uint32()
		return err
	case "Clss", "prop", "Enmr", "rele", "name":
	default:
		return fmt.Errorf("unknown reference form")
	}

	if _, err := r.UnicodeString(); err != nil {
		return err
	}
	if _, err := readID(r); err != nil {
		return err
	}
	switch form {
	case "Clss":
		return nil
	case "prop":
		_, err := readID(r)
		return err
	case "Enmr":
		if _, err := readID(r); err != nil {
			return err
		}
		_, err := readID(r)
		return err
	case "rele":
		_, err := r.Uint32()
		return err
	default: // name
		_, err := r.UnicodeString()
		return err
	}
}

// number widens the numeric item types.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case unitFloat:
		return n.value, true
	}
	return 0, false
}
