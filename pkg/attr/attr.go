// Package attr implements the attribute model schemas are built from:
// a named, typed, ordinal-numbered column with an accumulated byte
// offset and an optional index.
package attr

import (
	"fmt"

	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
)

// defaultIdxKind is the index implementation every attribute's index
// binds to unless overridden by IndexModify.
const defaultIdxKind = "BXTREE"

// Attr is a single schema attribute.
type Attr struct {
	name    string
	id      uint32
	typ     stype.Type
	offset  uint32
	indexed bool
	idxKind string
	keyType string
	rawSize uint32 // overrides stype.Footprint(typ) when non-zero
}

func newAttr(name string, typ stype.Type) (*Attr, error) {
	if name == "" {
		return nil, fmt.Errorf("attr: empty name: %w", sos.EINVAL)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("attr: invalid type %d: %w", typ, sos.EINVAL)
	}
	return &Attr{name: name, typ: typ, idxKind: defaultIdxKind}, nil
}

func (a *Attr) Name() string     { return a.name }
func (a *Attr) ID() uint32       { return a.id }
func (a *Attr) Type() stype.Type { return a.typ }
func (a *Attr) Offset() uint32   { return a.offset }
func (a *Attr) Size() uint32 {
	if a.rawSize != 0 {
		return a.rawSize
	}
	return stype.Footprint(a.typ)
}
func (a *Attr) Indexed() bool   { return a.indexed }
func (a *Attr) IdxKind() string { return a.idxKind }
func (a *Attr) KeyType() string { return a.keyType }

// IsRef reports whether this attribute's value is stored out-of-line
// via a Ref (true for OBJ and every array type).
func (a *Attr) IsRef() bool { return a.typ.IsRef() }

// IsArray reports whether this attribute is array-valued.
func (a *Attr) IsArray() bool { return a.typ.IsArray() }

// List is the ordered collection of attributes belonging to one
// schema, assigning ordinal ids and accumulated offsets as attributes
// are added.
type List struct {
	byName map[string]*Attr
	byID   []*Attr
}

// NewList returns an empty attribute list.
func NewList() *List {
	return &List{byName: make(map[string]*Attr)}
}

// Add creates and appends a new attribute named name of type typ,
// assigning it the next ordinal id and an offset accumulated from the
// previous attribute's offset and footprint.
func (l *List) Add(name string, typ stype.Type) (*Attr, error) {
	if _, exists := l.byName[name]; exists {
		return nil, fmt.Errorf("attr: %q: %w", name, sos.EEXIST)
	}
	a, err := newAttr(name, typ)
	if err != nil {
		return nil, err
	}
	a.id = uint32(len(l.byID))
	if len(l.byID) > 0 {
		prev := l.byID[len(l.byID)-1]
		a.offset = prev.offset + prev.Size()
	}
	l.byID = append(l.byID, a)
	l.byName[name] = a
	return a, nil
}

// AddSized is Add with an explicit in-record footprint overriding typ's
// default one. Used for synthetic element attributes — such as an
// array's out-of-line element storage — whose byte size does not match
// any whole attribute type's footprint.
func (l *List) AddSized(name string, typ stype.Type, size uint32) (*Attr, error) {
	a, err := l.Add(name, typ)
	if err != nil {
		return nil, err
	}
	a.rawSize = size
	return a, nil
}

// IndexAdd marks the named attribute indexed, binding it to its
// type's default index key encoding.
func (l *List) IndexAdd(name string) error {
	a, ok := l.byName[name]
	if !ok {
		return fmt.Errorf("attr: %q: %w", name, sos.ENOENT)
	}
	if a.indexed {
		return fmt.Errorf("attr: %q already indexed: %w", name, sos.EEXIST)
	}
	kt := stype.DefaultKeyType(a.typ)
	if kt == "NONE" {
		return fmt.Errorf("attr: %q (%s) has no default key encoding: %w", name, a.typ, sos.EINVAL)
	}
	a.indexed = true
	a.idxKind = defaultIdxKind
	a.keyType = kt
	return nil
}

// IndexModify overrides both the index implementation (idxKind, e.g.
// "BXTREE") and the key-type encoding of an already-indexed attribute.
func (l *List) IndexModify(name, idxKind, keyType string) error {
	a, ok := l.byName[name]
	if !ok {
		return fmt.Errorf("attr: %q: %w", name, sos.ENOENT)
	}
	if !a.indexed {
		return fmt.Errorf("attr: %q is not indexed: %w", name, sos.EINVAL)
	}
	a.idxKind = idxKind
	a.keyType = keyType
	return nil
}

// ByName looks up an attribute by name.
func (l *List) ByName(name string) (*Attr, bool) {
	a, ok := l.byName[name]
	return a, ok
}

// ByID looks up an attribute by ordinal id.
func (l *List) ByID(id uint32) (*Attr, bool) {
	if int(id) >= len(l.byID) {
		return nil, false
	}
	return l.byID[id], true
}

// Len returns the number of attributes in the list.
func (l *List) Len() int { return len(l.byID) }

// All returns the attributes in ordinal order. The caller must not
// mutate the returned slice.
func (l *List) All() []*Attr { return l.byID }

// RecordSize returns the total byte footprint of one record built from
// this attribute list (the last attribute's offset plus its size).
func (l *List) RecordSize() uint32 {
	if len(l.byID) == 0 {
		return 0
	}
	last := l.byID[len(l.byID)-1]
	return last.offset + last.Size()
}
