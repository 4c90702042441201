// Package index is a durable key_bytes → {ods_id, record_ref} map
// backed by a B+Tree file, exposed through a small surface (Create,
// Open, Insert, Delete, Get, Scan, Close) that schema-level attribute
// indexes and the schema name index are built on.
package index

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/narategithub/sos/pkg/index/btree"
)

const (
	indexSig      = "SOSIDX01\x00\x00\x00\x00\x00\x00\x00\x00" // 16 bytes
	btreePageSize = 4096
	metaPageSize  = 80

	// valueSize is the encoded size of an Entry: ods_id (8B) + ref (8B).
	valueSize = 16
)

// Entry is the value an Index maps a key to: which ODS the record
// lives in, and its Ref within that ODS.
type Entry struct {
	ODSID uint64
	Ref   uint64
}

func encodeEntry(e Entry) []byte {
	buf := make([]byte, valueSize)
	binary.LittleEndian.PutUint64(buf[0:], e.ODSID)
	binary.LittleEndian.PutUint64(buf[8:], e.Ref)
	return buf
}

func decodeEntry(b []byte) Entry {
	return Entry{
		ODSID: binary.LittleEndian.Uint64(b[0:]),
		Ref:   binary.LittleEndian.Uint64(b[8:]),
	}
}

// Index is a durable B+Tree-backed key/Entry map: a fixed meta-page
// signature, two-phase fsync commit discipline (write pages, fsync,
// write meta, fsync), and free-list page recycling.
type Index struct {
	path string
	fd   *os.File
	tree btree.BTree
	free freeList

	mmapTotal  int
	mmapChunks [][]byte

	flushed uint64
	temp    [][]byte
	updates map[uint64][]byte

	failed bool
}

// Create creates a new index file at path.
func Create(path string) (*Index, error) {
	return open(path, true)
}

// Open opens an existing index file at path.
func Open(path string) (*Index, error) {
	return open(path, false)
}

func open(path string, create bool) (*Index, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	fd, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	ix := &Index{path: path, fd: fd, updates: make(map[uint64][]byte)}

	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("index: stat: %w", err)
	}
	if st.Size() == 0 {
		ix.flushed = 1 // reserve the meta page
	} else {
		mmapSize := 64 << 20
		if int(st.Size()) > mmapSize {
			mmapSize = int(st.Size())
		}
		chunk, err := unix.Mmap(int(fd.Fd()), 0, mmapSize, unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			fd.Close()
			return nil, fmt.Errorf("index: mmap: %w", err)
		}
		ix.mmapTotal = mmapSize
		ix.mmapChunks = append(ix.mmapChunks, chunk)
		if err := ix.readMeta(); err != nil {
			fd.Close()
			return nil, err
		}
	}

	ix.free.get = ix.pageRead
	ix.free.new = ix.pageAppend
	ix.free.set = ix.pageWrite
	if ix.free.tailSeq > 0 {
		ix.free.maxSeq = ix.free.tailSeq
	}

	ix.tree.SetCallbacks(ix.pageRead, ix.pageAlloc, ix.pageFree)
	return ix, nil
}

// Close unmaps and closes the index file. It writes nothing: each
// Insert and Delete has already been persisted when it returns.
func (ix *Index) Close() error {
	for _, chunk := range ix.mmapChunks {
		if err := unix.Munmap(chunk); err != nil {
			return err
		}
	}
	return ix.fd.Close()
}

// Get looks up key, returning its Entry and whether it was found.
func (ix *Index) Get(key []byte) (Entry, bool) {
	v, ok := ix.tree.Get(key)
	if !ok {
		return Entry{}, false
	}
	return decodeEntry(v), true
}

// Insert adds or replaces the Entry stored at key.
func (ix *Index) Insert(key []byte, e Entry) error {
	meta := ix.saveMeta()
	ix.tree.Insert(key, encodeEntry(e))
	return ix.updateOrRevert(meta)
}

// Delete removes key, reporting whether it was present.
func (ix *Index) Delete(key []byte) (bool, error) {
	meta := ix.saveMeta()
	deleted := ix.tree.Delete(key)
	if !deleted {
		return false, nil
	}
	return true, ix.updateOrRevert(meta)
}

// Scan visits entries in key order starting at start, until cb returns
// false.
func (ix *Index) Scan(start []byte, cb func(key []byte, e Entry) bool) {
	ix.tree.Scan(start, func(k, v []byte) bool {
		if len(v) != valueSize {
			// The B+Tree's empty sentinel key carries no Entry.
			return true
		}
		return cb(k, decodeEntry(v))
	})
}

func (ix *Index) pageRead(ptr uint64) []byte {
	if page, ok := ix.updates[ptr]; ok {
		return page
	}
	if ptr >= ix.flushed {
		idx := ptr - ix.flushed
		if idx < uint64(len(ix.temp)) {
			return ix.temp[idx]
		}
	}
	start := uint64(0)
	for _, chunk := range ix.mmapChunks {
		end := start + uint64(len(chunk))/btreePageSize
		if ptr < end {
			off := btreePageSize * (ptr - start)
			return chunk[off : off+btreePageSize]
		}
		start = end
	}
	panic(fmt.Sprintf("index: bad page pointer %d", ptr))
}

func (ix *Index) pageAlloc(node []byte) uint64 {
	if ptr := ix.free.popHead(); ptr != 0 {
		ix.updates[ptr] = node
		return ptr
	}
	return ix.pageAppend(node)
}

func (ix *Index) pageAppend(node []byte) uint64 {
	ptr := ix.flushed + uint64(len(ix.temp))
	ix.temp = append(ix.temp, node)
	return ptr
}

func (ix *Index) pageWrite(ptr uint64, node []byte) { ix.updates[ptr] = node }

func (ix *Index) pageFree(ptr uint64) {
	if ptr < ix.flushed {
		ix.free.pushTail(ptr)
	}
}

func (ix *Index) saveMeta() []byte {
	var data [metaPageSize]byte
	copy(data[:16], []byte(indexSig))
	binary.LittleEndian.PutUint64(data[16:], ix.tree.GetRoot())
	binary.LittleEndian.PutUint64(data[24:], ix.flushed)
	copy(data[32:], ix.free.serialize())
	return data[:]
}

func (ix *Index) loadMeta(data []byte) {
	ix.tree.SetRoot(binary.LittleEndian.Uint64(data[16:]))
	ix.flushed = binary.LittleEndian.Uint64(data[24:])
	ix.free.deserialize(data[32:72])
}

func (ix *Index) readMeta() error {
	data := ix.mmapChunks[0][:metaPageSize]
	if string(data[:16]) != indexSig {
		return fmt.Errorf("index: %s: bad signature", ix.path)
	}
	ix.loadMeta(data)
	return nil
}

func (ix *Index) updateOrRevert(meta []byte) error {
	if ix.failed {
		if err := ix.writeMeta(meta); err != nil {
			return err
		}
		if err := unix.Fsync(int(ix.fd.Fd())); err != nil {
			return err
		}
		ix.failed = false
	}

	savedMaxSeq := ix.free.maxSeq
	ix.free.setMaxSeq()

	if err := ix.updateFile(); err != nil {
		ix.loadMeta(meta)
		ix.temp = ix.temp[:0]
		ix.updates = make(map[uint64][]byte)
		ix.free.maxSeq = savedMaxSeq
		ix.failed = true
		return err
	}
	ix.free.maxSeq = ix.free.tailSeq
	return nil
}

func (ix *Index) updateFile() error {
	if err := ix.writePages(); err != nil {
		return err
	}
	if err := unix.Fsync(int(ix.fd.Fd())); err != nil {
		return err
	}
	if err := ix.writeMeta(ix.saveMeta()); err != nil {
		return err
	}
	return unix.Fsync(int(ix.fd.Fd()))
}

func (ix *Index) writePages() error {
	for ptr, page := range ix.updates {
		if _, err := unix.Pwrite(int(ix.fd.Fd()), page, int64(ptr*btreePageSize)); err != nil {
			return err
		}
	}
	ix.updates = make(map[uint64][]byte)

	if len(ix.temp) == 0 {
		return nil
	}

	size := int(ix.flushed+uint64(len(ix.temp))) * btreePageSize
	if err := ix.extendMmap(size); err != nil {
		return err
	}

	off := int64(ix.flushed * btreePageSize)
	for _, page := range ix.temp {
		if _, err := unix.Pwrite(int(ix.fd.Fd()), page, off); err != nil {
			return err
		}
		off += btreePageSize
	}
	ix.flushed += uint64(len(ix.temp))
	ix.temp = ix.temp[:0]
	return nil
}

func (ix *Index) writeMeta(data []byte) error {
	_, err := unix.Pwrite(int(ix.fd.Fd()), data, 0)
	if err != nil {
		return fmt.Errorf("index: write meta: %w", err)
	}
	return nil
}

func (ix *Index) extendMmap(size int) error {
	if size <= ix.mmapTotal {
		return nil
	}
	alloc := ix.mmapTotal
	if alloc < 64<<20 {
		alloc = 64 << 20
	}
	for ix.mmapTotal+alloc < size {
		alloc *= 2
	}
	chunk, err := unix.Mmap(int(ix.fd.Fd()), int64(ix.mmapTotal), alloc, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("index: mmap: %w", err)
	}
	ix.mmapTotal += alloc
	ix.mmapChunks = append(ix.mmapChunks, chunk)
	return nil
}
