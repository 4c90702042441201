// Package schema implements the schema registry: named, versioned
// descriptions of a record's attributes, persisted once added and
// bound into a container's name/id lookup trees.
package schema

import (
	"fmt"

	"github.com/narategithub/sos/pkg/attr"
	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
)

// Schema describes one record layout: a name, an id (assigned when
// registered), and its ordered attribute list.
type Schema struct {
	name      string
	id        uint32
	attrs     *attr.List
	persisted bool
}

// New creates an empty, not-yet-registered schema named name.
func New(name string) *Schema {
	return &Schema{name: name, attrs: attr.NewList()}
}

// TemplateAttr describes one attribute for FromTemplate.
type TemplateAttr struct {
	Name    string
	Type    stype.Type
	Indexed bool
}

// FromTemplate builds a schema from a flat attribute template, letting
// a caller declare a whole schema at once instead of calling
// AttrAdd/IndexAdd attribute by attribute.
func FromTemplate(name string, template []TemplateAttr) (*Schema, error) {
	s := New(name)
	for _, t := range template {
		if _, err := s.AttrAdd(t.Name, t.Type); err != nil {
			return nil, err
		}
		if t.Indexed {
			if err := s.IndexAdd(t.Name); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// Name returns the schema's name.
func (s *Schema) Name() string { return s.name }

// ID returns the schema's registry id, valid only once persisted.
func (s *Schema) ID() uint32 { return s.id }

// Persisted reports whether the schema has been added to a registry.
func (s *Schema) Persisted() bool { return s.persisted }

// AttrAdd appends a new attribute, rejecting the call once the schema
// is persisted: a live schema's layout is immutable.
func (s *Schema) AttrAdd(name string, typ stype.Type) (*attr.Attr, error) {
	if s.persisted {
		return nil, fmt.Errorf("schema: %q: %w", s.name, sos.EBUSY)
	}
	return s.attrs.Add(name, typ)
}

// IndexAdd marks name indexed, same EBUSY guard as AttrAdd.
func (s *Schema) IndexAdd(name string) error {
	if s.persisted {
		return fmt.Errorf("schema: %q: %w", s.name, sos.EBUSY)
	}
	return s.attrs.IndexAdd(name)
}

// IndexModify overrides an already-indexed attribute's index kind
// (e.g. "BXTREE") and key-type encoding.
func (s *Schema) IndexModify(name, idxKind, keyType string) error {
	if s.persisted {
		return fmt.Errorf("schema: %q: %w", s.name, sos.EBUSY)
	}
	return s.attrs.IndexModify(name, idxKind, keyType)
}

// AttrByName looks up an attribute by name.
func (s *Schema) AttrByName(name string) (*attr.Attr, error) {
	a, ok := s.attrs.ByName(name)
	if !ok {
		return nil, fmt.Errorf("schema: %q: attr %q: %w", s.name, name, sos.ENOENT)
	}
	return a, nil
}

// AttrByID looks up an attribute by ordinal id.
func (s *Schema) AttrByID(id uint32) (*attr.Attr, error) {
	a, ok := s.attrs.ByID(id)
	if !ok {
		return nil, fmt.Errorf("schema: %q: attr id %d: %w", s.name, id, sos.ENOENT)
	}
	return a, nil
}

// AttrCount returns the number of attributes in the schema.
func (s *Schema) AttrCount() int { return s.attrs.Len() }

// Attrs returns the schema's attributes in ordinal order. The caller
// must not mutate the returned slice.
func (s *Schema) Attrs() []*attr.Attr { return s.attrs.All() }

// RecordSize returns the byte footprint of one record built from this
// schema.
func (s *Schema) RecordSize() uint32 { return s.attrs.RecordSize() }

// Dup returns an unregistered copy of s with a fresh, independent
// attribute list, letting a caller start a new schema from an existing
// one's shape without reaching back into the registry.
func (s *Schema) Dup() *Schema {
	cp := New(s.name)
	for _, a := range s.attrs.All() {
		cp.attrs.Add(a.Name(), a.Type())
		if a.Indexed() {
			cp.attrs.IndexAdd(a.Name())
			if a.IdxKind() != defaultIdxKindFor(a) || a.KeyType() != stype.DefaultKeyType(a.Type()) {
				cp.attrs.IndexModify(a.Name(), a.IdxKind(), a.KeyType())
			}
		}
	}
	return cp
}

func defaultIdxKindFor(a *attr.Attr) string { return "BXTREE" }
