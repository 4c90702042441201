package index

import (
	"fmt"
	"path/filepath"
	"testing"
)

func TestInsertAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attr.idx")
	ix, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ix.Close()

	if err := ix.Insert([]byte("key1"), Entry{ODSID: 1, Ref: 100}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	e, ok := ix.Get([]byte("key1"))
	if !ok {
		t.Fatal("key1 not found")
	}
	if e.ODSID != 1 || e.Ref != 100 {
		t.Fatalf("Get = %+v, want {1 100}", e)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.idx")

	ix, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%03d", i))
		if err := ix.Insert(key, Entry{ODSID: 1, Ref: uint64(i)}); err != nil {
			t.Fatalf("Insert %s: %v", key, err)
		}
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix2.Close()

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%03d", i))
		e, ok := ix2.Get(key)
		if !ok {
			t.Fatalf("%s missing after reopen", key)
		}
		if e.Ref != uint64(i) {
			t.Fatalf("%s: Ref = %d, want %d", key, e.Ref, i)
		}
	}
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "del.idx")
	ix, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ix.Close()

	ix.Insert([]byte("a"), Entry{ODSID: 1, Ref: 1})
	deleted, err := ix.Delete([]byte("a"))
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if _, ok := ix.Get([]byte("a")); ok {
		t.Fatal("expected a to be gone")
	}
}

func TestScanInKeyOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.idx")
	ix, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ix.Close()

	for _, k := range []string{"c", "a", "b"} {
		ix.Insert([]byte(k), Entry{ODSID: 1, Ref: 1})
	}

	var order []string
	ix.Scan([]byte(""), func(k []byte, e Entry) bool {
		order = append(order, string(k))
		return true
	})
	want := []string{"a", "b", "c"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("Scan order = %v, want %v", order, want)
		}
	}
}
