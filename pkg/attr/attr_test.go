package attr

import (
	"errors"
	"testing"

	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
)

func TestOffsetsAccumulate(t *testing.T) {
	l := NewList()
	a, err := l.Add("a", stype.INT32)
	if err != nil {
		t.Fatalf("Add a: %v", err)
	}
	b, err := l.Add("b", stype.INT64)
	if err != nil {
		t.Fatalf("Add b: %v", err)
	}
	c, err := l.Add("c", stype.BYTEARRAY)
	if err != nil {
		t.Fatalf("Add c: %v", err)
	}

	if a.Offset() != 0 {
		t.Errorf("a.Offset() = %d, want 0", a.Offset())
	}
	if b.Offset() != 4 {
		t.Errorf("b.Offset() = %d, want 4 (after a's INT32 footprint)", b.Offset())
	}
	if c.Offset() != 12 {
		t.Errorf("c.Offset() = %d, want 12 (after b's INT64 footprint)", c.Offset())
	}
	if got := l.RecordSize(); got != 20 {
		t.Errorf("RecordSize() = %d, want 20", got)
	}
}

func TestDuplicateNameIsEEXIST(t *testing.T) {
	l := NewList()
	if _, err := l.Add("x", stype.INT32); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := l.Add("x", stype.INT64)
	if !errors.Is(err, sos.EEXIST) {
		t.Fatalf("expected EEXIST, got %v", err)
	}
}

func TestIndexAddDefaultsKeyType(t *testing.T) {
	l := NewList()
	l.Add("n", stype.UINT32)
	if err := l.IndexAdd("n"); err != nil {
		t.Fatalf("IndexAdd: %v", err)
	}
	a, _ := l.ByName("n")
	if !a.Indexed() {
		t.Fatal("expected attribute to be marked indexed")
	}
	if a.KeyType() != "UINT32" {
		t.Errorf("KeyType() = %q, want UINT32", a.KeyType())
	}
}

func TestIndexAddOnRefTypeFails(t *testing.T) {
	l := NewList()
	l.Add("blob", stype.BYTEARRAY)
	// BYTE_ARRAY has a default STRING key type and should index fine...
	if err := l.IndexAdd("blob"); err != nil {
		t.Fatalf("IndexAdd(blob): %v", err)
	}
	l.Add("obj", stype.OBJ)
	// ...but OBJ has no default key encoding (NONE) and must fail.
	if err := l.IndexAdd("obj"); !errors.Is(err, sos.EINVAL) {
		t.Fatalf("expected EINVAL indexing a bare OBJ attribute, got %v", err)
	}
}

func TestIndexModifyRequiresExistingIndex(t *testing.T) {
	l := NewList()
	l.Add("n", stype.INT32)
	if err := l.IndexModify("n", "BXTREE", "INT32"); !errors.Is(err, sos.EINVAL) {
		t.Fatalf("expected EINVAL modifying a non-indexed attribute, got %v", err)
	}
	l.IndexAdd("n")
	if err := l.IndexModify("n", "BTREE", "STRING"); err != nil {
		t.Fatalf("IndexModify: %v", err)
	}
	a, _ := l.ByName("n")
	if a.KeyType() != "STRING" {
		t.Errorf("KeyType() = %q, want STRING", a.KeyType())
	}
	if a.IdxKind() != "BTREE" {
		t.Errorf("IdxKind() = %q, want BTREE", a.IdxKind())
	}
}

func TestIndexAddDefaultsIdxKind(t *testing.T) {
	l := NewList()
	l.Add("n", stype.UINT32)
	l.IndexAdd("n")
	a, _ := l.ByName("n")
	if a.IdxKind() != "BXTREE" {
		t.Errorf("IdxKind() = %q, want BXTREE", a.IdxKind())
	}
}

func TestByNameAndByID(t *testing.T) {
	l := NewList()
	a, _ := l.Add("first", stype.INT32)
	b, _ := l.Add("second", stype.INT64)

	if got, ok := l.ByName("first"); !ok || got != a {
		t.Fatalf("ByName(first) = %v, %v", got, ok)
	}
	if got, ok := l.ByID(1); !ok || got != b {
		t.Fatalf("ByID(1) = %v, %v", got, ok)
	}
	if _, ok := l.ByID(99); ok {
		t.Fatal("expected ByID(99) to miss")
	}
}

func TestRefAndArrayClassification(t *testing.T) {
	l := NewList()
	scalar, _ := l.Add("s", stype.INT32)
	obj, _ := l.Add("o", stype.OBJ)
	arr, _ := l.Add("a", stype.INT32ARRAY)

	if scalar.IsRef() || scalar.IsArray() {
		t.Error("INT32 should be neither ref nor array")
	}
	if !obj.IsRef() || obj.IsArray() {
		t.Error("OBJ should be ref but not array")
	}
	if !arr.IsRef() || !arr.IsArray() {
		t.Error("INT32_ARRAY should be both ref and array")
	}
}
