package value

import (
	"encoding/binary"
	"fmt"

	"github.com/narategithub/sos/pkg/attr"
	"github.com/narategithub/sos/pkg/ods"
	"github.com/narategithub/sos/pkg/schema"
	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
)

// arrayHeaderSize is the array payload's own header ahead of its
// elements: the record header plus a 4-byte element count.
const arrayHeaderSize = recordHeaderSize + 4

// View is a short-lived binding between one attribute and its raw
// bytes, object-backed or memory-only.
type View struct {
	attr *attr.Attr

	obj   *ods.Handle // backing record, nil for memory-only views
	child *ods.Handle // resolved out-of-line object, set only for ref attrs once bound

	mem []byte // private buffer, set only for memory-only views
}

// Bind resolves attribute a's value on obj. For non-array, non-OBJ
// attributes the view's data is the in-record bytes directly. For
// reference-typed attributes (OBJ and every array kind) the in-record
// bytes hold a child Ref: UNSET (Ref == 0) leaves the view without
// data until ArrayNew binds it; BOUND resolves the child object and
// the view's data is its payload.
func Bind(obj *ods.Handle, a *attr.Attr) (*View, error) {
	v := &View{attr: a, obj: obj}
	if !a.IsRef() {
		return v, nil
	}
	ref := readChildRef(obj, a)
	if ref == ods.Null {
		return v, nil // UNSET
	}
	child, err := obj.ODS().RefAsObject(ref)
	if err != nil {
		return nil, fmt.Errorf("value: bind %q: %w", a.Name(), err)
	}
	v.child = child
	return v, nil
}

// NewMemoryView returns a view over a private buffer sized for a's
// footprint, with no backing object. Invalid for reference-typed
// attributes, which must always resolve to a persistent child object.
func NewMemoryView(a *attr.Attr) (*View, error) {
	if a.IsRef() {
		return nil, fmt.Errorf("value: memory view for %q: reference-typed attributes require a backing object: %w", a.Name(), sos.EINVAL)
	}
	return &View{attr: a, mem: make([]byte, stype.Footprint(a.Type()))}, nil
}

// Bound reports whether a reference-typed view currently resolves to a
// child object (state BOUND rather than UNSET).
func (v *View) Bound() bool { return v.attr.IsRef() && v.child != nil }

// Bytes returns the view's current data slice: the record's in-place
// attribute bytes for scalars, the resolved child's payload for
// reference types (nil while UNSET), or the private buffer for
// memory-only views.
func (v *View) Bytes() []byte {
	switch {
	case v.mem != nil:
		return v.mem
	case v.attr.IsArray():
		if v.child == nil {
			return nil
		}
		return v.child.Bytes()[arrayHeaderSize:]
	case v.attr.Type() == stype.OBJ:
		if v.child == nil {
			return nil
		}
		return v.child.Bytes()
	default:
		return attrSlice(v.obj, v.attr)
	}
}

// ArrayCount returns the element count of a bound array view. Invalid
// on non-array or UNSET views.
func (v *View) ArrayCount() (uint32, error) {
	if !v.attr.IsArray() || v.child == nil {
		return 0, fmt.Errorf("value: array_count %q: %w", v.attr.Name(), sos.EINVAL)
	}
	return binary.LittleEndian.Uint32(v.child.Bytes()[recordHeaderSize : recordHeaderSize+4]), nil
}

func readChildRef(obj *ods.Handle, a *attr.Attr) ods.Ref {
	b := attrSlice(obj, a)
	return ods.Ref(binary.LittleEndian.Uint64(b))
}

func writeChildRef(obj *ods.Handle, a *attr.Attr, ref ods.Ref) {
	b := attrSlice(obj, a)
	binary.LittleEndian.PutUint64(b, uint64(ref))
}

// ArrayNew allocates a new array payload for attribute a on parent,
// sized for count elements, binds parent's attribute Ref to it, and
// returns a view over the new payload. Forces the attribute's state
// from UNSET to BOUND. ENOMEM on allocator exhaustion (surfaced
// unchanged from the underlying AllocObject).
func ArrayNew(parent *ods.Handle, a *attr.Attr, count uint32) (*View, error) {
	if !a.IsArray() {
		return nil, fmt.Errorf("value: array_new %q: not an array attribute: %w", a.Name(), sos.EINVAL)
	}
	size := arrayHeaderSize + count*stype.ElementSize(a.Type())
	child, err := parent.ODS().AllocObject(size)
	if err != nil {
		return nil, err
	}
	data := child.Bytes()
	if is := schema.InternalSchema(a.Type()); is != nil {
		setSchemaIDAt(data, is.ID())
	}
	binary.LittleEndian.PutUint32(data[recordHeaderSize:recordHeaderSize+4], count)
	for i := range data[arrayHeaderSize:] {
		data[arrayHeaderSize+i] = 0
	}

	writeChildRef(parent, a, child.Ref())
	return &View{attr: a, obj: parent, child: child}, nil
}

// DeleteChild frees a bound reference-typed view's child object and
// forces the parent attribute's state back to UNSET.
func (v *View) DeleteChild() error {
	if v.child == nil {
		return fmt.Errorf("value: delete_child %q: not bound: %w", v.attr.Name(), sos.EINVAL)
	}
	if err := v.child.Delete(); err != nil {
		return err
	}
	writeChildRef(v.obj, v.attr, ods.Null)
	v.child = nil
	return nil
}

// FromStr parses text into the view per the attribute's from-string
// function. For BYTE_ARRAY, an existing array shorter than the
// encoded text's length (including its trailing NUL) is deleted and
// reallocated at the required size first.
func (v *View) FromStr(text string) error {
	funcs := stype.FuncsFor(v.attr.Type())
	if v.attr.Type() == stype.BYTEARRAY {
		needed := uint32(len(text)) + 1
		if v.child == nil || v.child.Size()-arrayHeaderSize < needed {
			if v.child != nil {
				if err := v.DeleteChild(); err != nil {
					return err
				}
			}
			nv, err := ArrayNew(v.obj, v.attr, needed)
			if err != nil {
				return err
			}
			v.child = nv.child
		}
	} else if v.attr.IsArray() {
		return fmt.Errorf("value: from_str %q: array attributes must be allocated explicitly via ArrayNew: %w", v.attr.Name(), sos.EINVAL)
	}
	dst := v.Bytes()
	_, err := funcs.FromStr(dst, text)
	return err
}

// ToStr renders the view's current bytes as text per the attribute's
// to-string function.
func (v *View) ToStr() (string, error) {
	funcs := stype.FuncsFor(v.attr.Type())
	return funcs.ToStr(v.Bytes())
}

// AsKey returns the view's bytes in the canonical order-preserving
// encoding the index layer expects, per the attribute's key-value
// function.
func (v *View) AsKey() []byte {
	funcs := stype.FuncsFor(v.attr.Type())
	return funcs.KeyValue(v.Bytes())
}
