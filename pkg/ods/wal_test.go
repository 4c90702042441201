package ods

import (
	"path/filepath"
	"testing"

	"github.com/narategithub/sos/pkg/wal"
)

func tempWALODS(t *testing.T) *ODS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ods")
	o, err := Create(path, Options{PageSize: 4096, InitialSize: 4096 * 4, WALEnabled: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { o.Close(CommitAsync) })
	return o
}

func TestAllocLogsWALEntryWhenEnabled(t *testing.T) {
	o := tempWALODS(t)

	h, err := o.AllocObject(32)
	if err != nil {
		t.Fatalf("AllocObject: %v", err)
	}

	entries, err := wal.ReadAll([]string{o.path + ".wal.000"})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 logged entries (alloc+commit), got %d", len(entries))
	}
	if entries[0].OpType != wal.OpAlloc {
		t.Fatalf("expected OpAlloc, got %v", entries[0].OpType)
	}
	if Ref(leUint64(entries[0].Key)) != h.Ref() {
		t.Fatalf("logged key %d does not match allocated ref %d", leUint64(entries[0].Key), h.Ref())
	}
}

func TestFreeLogsWALEntryWhenEnabled(t *testing.T) {
	o := tempWALODS(t)

	h, err := o.AllocObject(32)
	if err != nil {
		t.Fatalf("AllocObject: %v", err)
	}
	ref := h.Ref()
	if err := h.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	entries, err := wal.ReadAll([]string{o.path + ".wal.000"})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 logged entries (alloc+commit, free+commit), got %d", len(entries))
	}
	if entries[2].OpType != wal.OpFree {
		t.Fatalf("expected third entry to be OpFree, got %v", entries[2].OpType)
	}
	if Ref(leUint64(entries[2].Key)) != ref {
		t.Fatalf("logged free key %d does not match freed ref %d", leUint64(entries[2].Key), ref)
	}
}

func TestCommitSyncDrainsWAL(t *testing.T) {
	o := tempWALODS(t)
	if _, err := o.AllocObject(16); err != nil {
		t.Fatalf("AllocObject: %v", err)
	}
	if err := o.Commit(CommitSync); err != nil {
		t.Fatalf("Commit(CommitSync): %v", err)
	}
}

func TestNoWALWhenDisabled(t *testing.T) {
	o := tempODS(t)
	if o.wal != nil {
		t.Fatal("expected no WAL attached when WALEnabled is false")
	}
	if _, err := o.AllocObject(16); err != nil {
		t.Fatalf("AllocObject: %v", err)
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
