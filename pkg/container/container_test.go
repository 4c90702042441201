package container

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/narategithub/sos/pkg/ods"
	"github.com/narategithub/sos/pkg/schema"
	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
	"github.com/narategithub/sos/pkg/value"
)

func tempContainer(t *testing.T) *Container {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cstore")
	c, err := Create(dir, Options{PageSize: 4096, InitialSize: 4096 * 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { c.Close(ods.CommitAsync) })
	return c
}

func TestCreateMakesDirAndSchemaStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "newcontainer")
	c, err := Create(dir, Options{PageSize: 4096, InitialSize: 4096 * 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Close(ods.CommitAsync)

	if _, err := c.Registry().First(); err != nil {
		t.Fatalf("Registry().First(): %v", err)
	}
}

func TestCreateODSAndAddIndexedSchema(t *testing.T) {
	c := tempContainer(t)

	dataODS, err := c.CreateODS("events")
	if err != nil {
		t.Fatalf("CreateODS: %v", err)
	}

	s, err := schema.FromTemplate("event", []schema.TemplateAttr{
		{Name: "ts", Type: stype.TIMESTAMP, Indexed: true},
		{Name: "name", Type: stype.BYTEARRAY, Indexed: true},
	})
	if err != nil {
		t.Fatalf("FromTemplate: %v", err)
	}
	if err := c.Registry().Add(s); err != nil {
		t.Fatalf("Registry().Add: %v", err)
	}

	rec, err := value.NewRecord(dataODS, s)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if value.RecordSchemaID(rec) != s.ID() {
		t.Fatalf("record schema id mismatch")
	}
}

func TestCreateODSDuplicateNameFails(t *testing.T) {
	c := tempContainer(t)
	if _, err := c.CreateODS("dup"); err != nil {
		t.Fatalf("CreateODS: %v", err)
	}
	if _, err := c.CreateODS("dup"); !errors.Is(err, sos.EEXIST) {
		t.Fatalf("CreateODS duplicate err = %v, want EEXIST", err)
	}
}

func TestOpenODSReusesMapping(t *testing.T) {
	c := tempContainer(t)
	if _, err := c.CreateODS("reopen"); err != nil {
		t.Fatalf("CreateODS: %v", err)
	}
	a, err := c.OpenODS("reopen")
	if err != nil {
		t.Fatalf("OpenODS: %v", err)
	}
	b, err := c.OpenODS("reopen")
	if err != nil {
		t.Fatalf("OpenODS second call: %v", err)
	}
	if a != b {
		t.Fatalf("OpenODS returned distinct *ODS for the same name")
	}
}

func TestReopenContainerPreservesSchemas(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "persist")
	opts := Options{PageSize: 4096, InitialSize: 4096 * 4}

	c1, err := Create(dir, opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s, err := schema.FromTemplate("widget", []schema.TemplateAttr{
		{Name: "id", Type: stype.UINT64},
	})
	if err != nil {
		t.Fatalf("FromTemplate: %v", err)
	}
	if err := c1.Registry().Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c1.Close(ods.CommitSync); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c2.Close(ods.CommitAsync)

	if _, err := c2.Registry().ByName("widget"); err != nil {
		t.Fatalf("reopened registry missing schema: %v", err)
	}
}
