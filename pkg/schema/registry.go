package schema

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/narategithub/sos/internal/metrics"
	"github.com/narategithub/sos/internal/obslog"
	"github.com/narategithub/sos/pkg/index"
	"github.com/narategithub/sos/pkg/ods"
	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/stype"
)

// IndexOpener opens (creating if needed) the index collaborator
// backing one attribute's index, keyed by schema and attribute name.
// pkg/container supplies the concrete implementation: one pkg/index
// file per indexed attribute.
type IndexOpener func(schemaName, attrName, idxKind, keyType string) (*index.Index, error)

// idDictEntrySize is the encoded size of one (schema id, record Ref)
// pair in the id dictionary kept in the schema store's user-data
// region: a 4-byte id and an 8-byte Ref.
const idDictEntrySize = 12

// Registry is the persistent schema table plus the in-memory name/id
// lookup trees kept alongside it. Durability has two collaborators
// beyond the schema records themselves: nameIndex, a B+Tree-backed
// name → record Ref map, and the schema store's user-data region,
// which holds a flat id → record Ref dictionary so the registry can
// repopulate byID on reopen without a full scan of the store. Adding a
// schema allocates an id, persists the schema record, creates each
// indexed attribute's index, links the schema into both durable
// collaborators and both in-memory lookup trees, and commits —
// unwinding in strict reverse order if any step fails.
type Registry struct {
	mu sync.Mutex

	store     *ods.ODS
	nameIndex *index.Index
	openIndex IndexOpener

	byName map[string]*Schema
	byID   []*Schema // kept sorted by id, for First/Next

	nextID uint32

	log     *obslog.Logger
	metrics *metrics.Metrics
}

// NewRegistry opens a schema registry backed by store and its sibling
// name index, pre-populated with the ten static internal schemas, then
// loads any user schemas already persisted (the reopen-an-existing-
// container path, driven by the id dictionary in store's user-data
// region rather than a scan of the store).
func NewRegistry(store *ods.ODS, nameIndex *index.Index, opener IndexOpener, log *obslog.Logger, m *metrics.Metrics) *Registry {
	r := &Registry{
		store:     store,
		nameIndex: nameIndex,
		openIndex: opener,
		byName:    make(map[string]*Schema),
		nextID:    firstUserSchemaID,
		log:       log,
		metrics:   m,
	}
	for _, s := range internalSchemas {
		r.byName[s.name] = s
		r.byID = append(r.byID, s)
	}
	r.loadPersisted()
	return r
}

// loadPersisted reads the id dictionary out of the schema store's
// user-data region, resolves each entry's Ref directly (no scan), and
// re-registers the user schema it decodes to, re-opening its indexed
// attributes' index files rather than recreating them.
func (r *Registry) loadPersisted() {
	entries := readIDDict(r.store.UserData())
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	for _, e := range entries {
		h, err := r.store.RefAsObject(ods.Ref(e.ref))
		if err != nil {
			continue
		}
		s, err := decodeSchema(h.Bytes())
		h.Put()
		if err != nil {
			continue
		}
		for _, a := range s.attrs.All() {
			if a.Indexed() {
				if _, err := r.openIndex(s.name, a.Name(), a.IdxKind(), a.KeyType()); err != nil {
					continue
				}
			}
		}
		r.byName[s.name] = s
		r.byID = append(r.byID, s)
		if s.id >= r.nextID {
			r.nextID = s.id + 1
		}
	}
}

type idDictEntry struct {
	id  uint32
	ref uint64
}

// readIDDict decodes the id dictionary: a 4-byte count followed by
// that many (id, ref) pairs.
func readIDDict(ud []byte) []idDictEntry {
	if len(ud) < 4 {
		return nil
	}
	count := binary.LittleEndian.Uint32(ud[0:4])
	entries := make([]idDictEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*idDictEntrySize
		if off+idDictEntrySize > len(ud) {
			break
		}
		entries = append(entries, idDictEntry{
			id:  binary.LittleEndian.Uint32(ud[off:]),
			ref: binary.LittleEndian.Uint64(ud[off+4:]),
		})
	}
	return entries
}

// appendIDDict records a new (id, ref) pair in the dictionary and
// returns a function that undoes the append, for Add's rollback path.
func appendIDDict(ud []byte, id uint32, ref uint64) (func(), error) {
	if len(ud) < 4 {
		return nil, fmt.Errorf("schema: user-data region too small for an id dictionary: %w", sos.ENOMEM)
	}
	count := binary.LittleEndian.Uint32(ud[0:4])
	off := 4 + int(count)*idDictEntrySize
	if off+idDictEntrySize > len(ud) {
		return nil, fmt.Errorf("schema: id dictionary full at %d entries: %w", count, sos.ENOMEM)
	}
	binary.LittleEndian.PutUint32(ud[off:], id)
	binary.LittleEndian.PutUint64(ud[off+4:], ref)
	binary.LittleEndian.PutUint32(ud[0:4], count+1)
	return func() { binary.LittleEndian.PutUint32(ud[0:4], count) }, nil
}

// Add registers s, persisting its definition and creating any indexes
// its attributes require. On any failure every effect is rolled back
// in strict reverse order and s is left unregistered.
func (r *Registry) Add(s *Schema) error {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	// step 1: name must be non-empty and unique
	if s.name == "" {
		return r.fail(s.name, start, fmt.Errorf("schema: empty name: %w", sos.EINVAL))
	}
	if _, exists := r.byName[s.name]; exists {
		return r.fail(s.name, start, fmt.Errorf("schema: %q: %w", s.name, sos.EEXIST))
	}
	// step 2: must have at least one attribute
	if s.attrs.Len() == 0 {
		return r.fail(s.name, start, fmt.Errorf("schema: %q has no attributes: %w", s.name, sos.EINVAL))
	}
	if s.persisted {
		return r.fail(s.name, start, fmt.Errorf("schema: %q: %w", s.name, sos.EBUSY))
	}

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	// step 3: assign id
	id := r.nextID
	r.nextID++
	undo = append(undo, func() { r.nextID-- })

	// step 4: persist the schema definition record
	rec := encodeSchema(s, id)
	h, err := r.store.AllocObject(uint32(len(rec)))
	if err != nil {
		rollback()
		return r.fail(s.name, start, err)
	}
	copy(h.Bytes(), rec)
	undo = append(undo, func() { h.Delete() })

	// step 5: create an index for every indexed attribute
	var opened []*index.Index
	for _, a := range s.attrs.All() {
		if !a.Indexed() {
			continue
		}
		idx, err := r.openIndex(s.name, a.Name(), a.IdxKind(), a.KeyType())
		if err != nil {
			rollback()
			return r.fail(s.name, start, err)
		}
		opened = append(opened, idx)
	}
	undo = append(undo, func() {
		for _, idx := range opened {
			idx.Close()
		}
	})

	// step 5b: link the schema's name into the durable name index
	if err := r.nameIndex.Insert([]byte(s.name), index.Entry{Ref: uint64(h.Ref())}); err != nil {
		rollback()
		return r.fail(s.name, start, err)
	}
	undo = append(undo, func() { r.nameIndex.Delete([]byte(s.name)) })

	// step 5c: record the schema's id in the id dictionary
	undoDict, err := appendIDDict(r.store.UserData(), id, uint64(h.Ref()))
	if err != nil {
		rollback()
		return r.fail(s.name, start, err)
	}
	undo = append(undo, undoDict)

	// step 6: mark persisted and assign the id
	s.id = id
	s.persisted = true
	undo = append(undo, func() { s.persisted = false; s.id = 0 })

	// step 7: link into the name tree
	r.byName[s.name] = s
	undo = append(undo, func() { delete(r.byName, s.name) })

	// step 8: link into the id-ordered tree
	pos := sort.Search(len(r.byID), func(i int) bool { return r.byID[i].id >= id })
	r.byID = append(r.byID, nil)
	copy(r.byID[pos+1:], r.byID[pos:])
	r.byID[pos] = s
	undo = append(undo, func() {
		r.byID = append(r.byID[:pos], r.byID[pos+1:]...)
	})

	// step 9: commit the registry ODS for durability
	if err := r.store.Commit(ods.CommitSync); err != nil {
		rollback()
		return r.fail(s.name, start, err)
	}

	// step 10: success
	if r.log != nil {
		r.log.LogSchemaAdd(s.name, time.Since(start), nil)
	}
	if r.metrics != nil {
		r.metrics.RecordSchemaAdd("ok", time.Since(start))
	}
	return nil
}

func (r *Registry) fail(name string, start time.Time, err error) error {
	if r.log != nil {
		r.log.LogSchemaAdd(name, time.Since(start), err)
	}
	if r.metrics != nil {
		r.metrics.RecordSchemaAdd("error", time.Since(start))
	}
	return err
}

// ByName returns the registered schema named name.
func (r *Registry) ByName(name string) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("schema: %q: %w", name, sos.ENOENT)
	}
	return s, nil
}

// ByID returns the registered schema with the given id.
func (r *Registry) ByID(id uint32) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.byID), func(i int) bool { return r.byID[i].id >= id })
	if i >= len(r.byID) || r.byID[i].id != id {
		return nil, fmt.Errorf("schema: id %d: %w", id, sos.ENOENT)
	}
	return r.byID[i], nil
}

// First returns the lowest-id registered schema, for iteration.
func (r *Registry) First() (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byID) == 0 {
		return nil, fmt.Errorf("schema: registry is empty: %w", sos.ENOENT)
	}
	return r.byID[0], nil
}

// Next returns the schema with the next-highest id after s, walking
// the in-memory id-ordered tree.
func (r *Registry) Next(s *Schema) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.byID), func(i int) bool { return r.byID[i].id >= s.id })
	if i >= len(r.byID) || r.byID[i].id != s.id || i+1 >= len(r.byID) {
		return nil, fmt.Errorf("schema: %q: no next schema: %w", s.name, sos.ENOENT)
	}
	return r.byID[i+1], nil
}

// Delete is declared but not implemented: schemas in active use by a
// live data ODS cannot be safely removed without invalidating that
// ODS's records, and no caller needs it yet.
func (r *Registry) Delete(name string) error {
	return fmt.Errorf("schema: delete %q: %w", name, sos.ENOSYS)
}

// encodeSchema serializes a schema's name, id, and attribute list into
// its persisted registry-record form: a flat, self-describing byte
// layout of length-prefixed strings and fixed-width numerics.
func encodeSchema(s *Schema, id uint32) []byte {
	buf := make([]byte, 0, 64+32*s.attrs.Len())
	buf = appendString(buf, s.name)
	buf = appendUint32(buf, id)
	buf = appendUint32(buf, uint32(s.attrs.Len()))
	for _, a := range s.attrs.All() {
		buf = appendString(buf, a.Name())
		buf = appendUint32(buf, uint32(a.Type()))
		if a.Indexed() {
			buf = append(buf, 1)
			buf = appendString(buf, a.IdxKind())
			buf = appendString(buf, a.KeyType())
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

// decodeSchema parses a schema registry record back into a Schema.
func decodeSchema(data []byte) (*Schema, error) {
	pos := 0
	name, n := readString(data[pos:])
	pos += n
	id := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	count := binary.LittleEndian.Uint32(data[pos:])
	pos += 4

	s := New(name)
	for i := uint32(0); i < count; i++ {
		attrName, n := readString(data[pos:])
		pos += n
		typ := stype.Type(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if _, err := s.attrs.Add(attrName, typ); err != nil {
			return nil, err
		}
		indexed := data[pos] == 1
		pos++
		if indexed {
			idxKind, n := readString(data[pos:])
			pos += n
			keyType, n := readString(data[pos:])
			pos += n
			if err := s.attrs.IndexAdd(attrName); err != nil {
				return nil, err
			}
			if idxKind != "BXTREE" || keyType != stype.DefaultKeyType(typ) {
				if err := s.attrs.IndexModify(attrName, idxKind, keyType); err != nil {
					return nil, err
				}
			}
		}
	}
	s.id = id
	s.persisted = true
	return s, nil
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func readString(data []byte) (string, int) {
	n := binary.LittleEndian.Uint32(data)
	return string(data[4 : 4+n]), 4 + int(n)
}
