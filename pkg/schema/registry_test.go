package schema

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/narategithub/sos/pkg/index"
	"github.com/narategithub/sos/pkg/ods"
	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
)

func tempRegistry(t *testing.T) (*Registry, []*index.Index) {
	t.Helper()
	dir := t.TempDir()
	store, err := ods.Create(filepath.Join(dir, "schema.ods"), ods.Options{PageSize: 4096, InitialSize: 4096 * 4})
	if err != nil {
		t.Fatalf("ods.Create: %v", err)
	}
	t.Cleanup(func() { store.Close(ods.CommitAsync) })

	nameIndex, err := index.Create(filepath.Join(dir, "schema.idx"))
	if err != nil {
		t.Fatalf("index.Create: %v", err)
	}
	t.Cleanup(func() { nameIndex.Close() })

	var opened []*index.Index
	opener := func(schemaName, attrName, idxKind, keyType string) (*index.Index, error) {
		idx, err := index.Create(filepath.Join(dir, schemaName+"_"+attrName+".idx"))
		if err != nil {
			return nil, err
		}
		opened = append(opened, idx)
		return idx, nil
	}
	return NewRegistry(store, nameIndex, opener, nil, nil), opened
}

func TestNewRegistryPrepopulatesInternalSchemas(t *testing.T) {
	r, _ := tempRegistry(t)

	s, err := r.ByName("__obj_ischema")
	if err != nil {
		t.Fatalf("ByName(__obj_ischema): %v", err)
	}
	if s.ID() == 0 {
		t.Fatalf("internal schema has id 0")
	}

	first, err := r.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if first.ID() != 1 {
		t.Fatalf("First id = %d, want 1", first.ID())
	}
}

func TestAddAssignsIDAboveInternalSchemas(t *testing.T) {
	r, _ := tempRegistry(t)

	s, err := FromTemplate("sample", []TemplateAttr{
		{Name: "x", Type: stype.INT32},
		{Name: "name", Type: stype.BYTEARRAY, Indexed: true},
	})
	if err != nil {
		t.Fatalf("FromTemplate: %v", err)
	}
	if err := r.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s.ID() < firstUserSchemaID {
		t.Fatalf("user schema id %d below firstUserSchemaID %d", s.ID(), firstUserSchemaID)
	}
	if !s.Persisted() {
		t.Fatalf("schema not marked persisted after Add")
	}

	got, err := r.ByName("sample")
	if err != nil || got != s {
		t.Fatalf("ByName(sample) = %v, %v, want original schema", got, err)
	}
}

func TestAddDuplicateNameFails(t *testing.T) {
	r, _ := tempRegistry(t)

	s1, _ := FromTemplate("dup", []TemplateAttr{{Name: "a", Type: stype.INT32}})
	if err := r.Add(s1); err != nil {
		t.Fatalf("Add s1: %v", err)
	}
	s2, _ := FromTemplate("dup", []TemplateAttr{{Name: "b", Type: stype.INT32}})
	err := r.Add(s2)
	if !errors.Is(err, sos.EEXIST) {
		t.Fatalf("Add duplicate name err = %v, want EEXIST", err)
	}
	if s2.Persisted() {
		t.Fatalf("s2 left persisted after failed Add")
	}
}

func TestAddWithNoAttributesFails(t *testing.T) {
	r, _ := tempRegistry(t)

	s := New("empty")
	err := r.Add(s)
	if !errors.Is(err, sos.EINVAL) {
		t.Fatalf("Add empty schema err = %v, want EINVAL", err)
	}
}

func TestAddRollsBackOnIndexFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := ods.Create(filepath.Join(dir, "schema.ods"), ods.Options{PageSize: 4096, InitialSize: 4096 * 4})
	if err != nil {
		t.Fatalf("ods.Create: %v", err)
	}
	t.Cleanup(func() { store.Close(ods.CommitAsync) })

	nameIndex, err := index.Create(filepath.Join(dir, "schema.idx"))
	if err != nil {
		t.Fatalf("index.Create: %v", err)
	}
	t.Cleanup(func() { nameIndex.Close() })

	boom := errors.New("index open failed")
	r := NewRegistry(store, nameIndex, func(schemaName, attrName, idxKind, keyType string) (*index.Index, error) {
		return nil, boom
	}, nil, nil)

	s, _ := FromTemplate("withindex", []TemplateAttr{
		{Name: "k", Type: stype.BYTEARRAY, Indexed: true},
	})
	if err := r.Add(s); !errors.Is(err, boom) {
		t.Fatalf("Add err = %v, want %v", err, boom)
	}
	if s.Persisted() {
		t.Fatalf("schema persisted despite index failure")
	}
	if _, err := r.ByName("withindex"); !errors.Is(err, sos.ENOENT) {
		t.Fatalf("ByName found rolled-back schema: %v", err)
	}
	if _, err := r.ByID(firstUserSchemaID); !errors.Is(err, sos.ENOENT) {
		t.Fatalf("ByID found rolled-back schema id: %v", err)
	}
}

func TestByIDAndNextWalkInIDOrder(t *testing.T) {
	r, _ := tempRegistry(t)

	a, _ := FromTemplate("alpha", []TemplateAttr{{Name: "x", Type: stype.INT32}})
	b, _ := FromTemplate("beta", []TemplateAttr{{Name: "x", Type: stype.INT32}})
	if err := r.Add(a); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := r.Add(b); err != nil {
		t.Fatalf("Add b: %v", err)
	}

	got, err := r.ByID(a.ID())
	if err != nil || got != a {
		t.Fatalf("ByID(a.ID()) = %v, %v", got, err)
	}

	next, err := r.Next(a)
	if err != nil || next != b {
		t.Fatalf("Next(a) = %v, %v, want b", next, err)
	}

	if _, err := r.Next(b); !errors.Is(err, sos.ENOENT) {
		t.Fatalf("Next(b) err = %v, want ENOENT", err)
	}
}

func TestDeleteReturnsENOSYS(t *testing.T) {
	r, _ := tempRegistry(t)
	if err := r.Delete("anything"); !errors.Is(err, sos.ENOSYS) {
		t.Fatalf("Delete err = %v, want ENOSYS", err)
	}
}

func TestEncodeDecodeSchemaRoundTrip(t *testing.T) {
	s, err := FromTemplate("roundtrip", []TemplateAttr{
		{Name: "a", Type: stype.INT32},
		{Name: "b", Type: stype.BYTEARRAY, Indexed: true},
	})
	if err != nil {
		t.Fatalf("FromTemplate: %v", err)
	}
	rec := encodeSchema(s, 42)
	got, err := decodeSchema(rec)
	if err != nil {
		t.Fatalf("decodeSchema: %v", err)
	}
	if got.Name() != s.Name() || got.ID() != 42 {
		t.Fatalf("decodeSchema name/id = %q/%d, want %q/42", got.Name(), got.ID(), s.Name())
	}
	if got.AttrCount() != s.AttrCount() {
		t.Fatalf("decodeSchema attr count = %d, want %d", got.AttrCount(), s.AttrCount())
	}
	bAttr, err := got.AttrByName("b")
	if err != nil {
		t.Fatalf("AttrByName(b): %v", err)
	}
	if !bAttr.Indexed() {
		t.Fatalf("decoded attr b lost its indexed flag")
	}
}
