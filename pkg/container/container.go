// Package container implements the directory-of-ODSes unit a schema
// registry is exercised against: a schema-bearing ODS plus its durable
// name index, plus zero or more user-named data ODSes, each mapped
// independently and sharing no mapping between them.
package container

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/narategithub/sos/internal/metrics"
	"github.com/narategithub/sos/internal/obslog"
	"github.com/narategithub/sos/pkg/index"
	"github.com/narategithub/sos/pkg/ods"
	"github.com/narategithub/sos/pkg/schema"
	"github.com/narategithub/sos/pkg/sos"
)

// Options configures a Container.
type Options struct {
	PageSize    uint32
	InitialSize uint64
	Debug       bool
	WALEnabled  bool
	Log         *obslog.Logger
	Metrics     *metrics.Metrics
}

func (o Options) odsOptions() ods.Options {
	return ods.Options{
		PageSize:    o.PageSize,
		InitialSize: o.InitialSize,
		Debug:       o.Debug,
		WALEnabled:  o.WALEnabled,
		Log:         o.Log,
	}
}

// Container is the unit a caller opens or creates: a directory holding
// a schema.ods (the schema registry's backing ODS), its sibling
// schema.idx (the registry's durable name index), and any number of
// named data ODSes, opened on demand and kept in a name table for
// reuse.
type Container struct {
	mu   sync.Mutex
	dir  string
	opts Options

	schemaStore *ods.ODS
	schemaIndex *index.Index
	registry    *schema.Registry
	odses       map[string]*ods.ODS
	indexes     map[string]*index.Index

	sessionID string
	log       *obslog.Logger
	metrics   *metrics.Metrics
}

const schemaFileName = "schema.ods"
const schemaIndexName = "schema.idx"

// Create makes a new container directory at dir (it must not already
// exist) and opens it.
func Create(dir string, opts Options) (*Container, error) {
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("container: create %q: %w", dir, err)
	}
	return open(dir, opts, true)
}

// Open opens an existing container directory at dir.
func Open(dir string, opts Options) (*Container, error) {
	return open(dir, opts, false)
}

func open(dir string, opts Options, creating bool) (*Container, error) {
	schemaPath := filepath.Join(dir, schemaFileName)
	indexPath := filepath.Join(dir, schemaIndexName)

	var store *ods.ODS
	var nameIndex *index.Index
	var err error
	if creating {
		store, err = ods.Create(schemaPath, opts.odsOptions())
		if err != nil {
			return nil, fmt.Errorf("container: schema store: %w", err)
		}
		nameIndex, err = index.Create(indexPath)
	} else {
		store, err = ods.Open(schemaPath, opts.odsOptions())
		if err != nil {
			return nil, fmt.Errorf("container: schema store: %w", err)
		}
		nameIndex, err = index.Open(indexPath)
	}
	if err != nil {
		store.Close(ods.CommitAsync)
		return nil, fmt.Errorf("container: schema name index: %w", err)
	}

	c := &Container{
		dir:     dir,
		opts:    opts,
		odses:   make(map[string]*ods.ODS),
		indexes: make(map[string]*index.Index),
		log:     opts.Log,
		metrics: opts.Metrics,
	}
	if opts.Debug {
		c.sessionID = uuid.NewString()
	}
	c.schemaStore = store
	c.schemaIndex = nameIndex
	c.registry = schema.NewRegistry(store, nameIndex, c.openAttrIndex, opts.Log, opts.Metrics)

	if c.log != nil {
		c.log.LogContainerOpen(dir, creating)
	}
	if c.metrics != nil {
		c.metrics.RecordContainerOpen()
	}
	return c, nil
}

// openAttrIndex implements schema.IndexOpener: one physical index file
// per indexed attribute, named <schemaName>.attr.<attrName>.idx.
func (c *Container) openAttrIndex(schemaName, attrName, idxKind, keyType string) (*index.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := schemaName + "." + attrName
	if ix, ok := c.indexes[key]; ok {
		return ix, nil
	}
	path := filepath.Join(c.dir, fmt.Sprintf("%s.attr.%s.idx", schemaName, attrName))
	var ix *index.Index
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		ix, err = index.Create(path)
	} else {
		ix, err = index.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("container: index %s.%s (%s): %w", schemaName, attrName, idxKind, err)
	}
	c.indexes[key] = ix
	return ix, nil
}

// Registry returns the container's schema registry.
func (c *Container) Registry() *schema.Registry { return c.registry }

// CreateODS creates a new named data ODS inside the container.
func (c *Container) CreateODS(name string) (*ods.ODS, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.odses[name]; exists {
		return nil, fmt.Errorf("container: ods %q: %w", name, sos.EEXIST)
	}
	path := filepath.Join(c.dir, name+".ods")
	o, err := ods.Create(path, c.opts.odsOptions())
	if err != nil {
		return nil, err
	}
	c.odses[name] = o
	return o, nil
}

// OpenODS opens a previously created named data ODS, mapping it once
// and reusing the mapping for subsequent calls with the same name.
func (c *Container) OpenODS(name string) (*ods.ODS, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o, ok := c.odses[name]; ok {
		return o, nil
	}
	path := filepath.Join(c.dir, name+".ods")
	o, err := ods.Open(path, c.opts.odsOptions())
	if err != nil {
		return nil, fmt.Errorf("container: ods %q: %w", name, err)
	}
	c.odses[name] = o
	return o, nil
}

// Close commits and closes every ODS and index the container opened.
// Every collaborator gets a Close call regardless of earlier failures;
// the first error encountered is the one returned.
func (c *Container) Close(mode ods.CommitMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	for _, ix := range c.indexes {
		record(ix.Close())
	}
	for _, o := range c.odses {
		record(o.Close(mode))
	}
	record(c.schemaIndex.Close())
	record(c.schemaStore.Close(mode))
	return first
}

// Dir returns the container's directory path.
func (c *Container) Dir() string { return c.dir }
