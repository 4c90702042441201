// Package ods implements the Object Data Store: a persistent,
// memory-mapped heap that allocates, frees, grows, and iterates raw
// objects identified by stable byte-offset references, and hands out
// reference-counted in-memory handles translating a reference into a
// live pointer into the mapping.
package ods

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/narategithub/sos/internal/obslog"
	"github.com/narategithub/sos/pkg/sos"
	"github.com/narategithub/sos/pkg/wal"
)

// Ref is a 64-bit byte offset into an ODS backing file. Zero is the
// reserved null reference.
type Ref uint64

// Null is the reserved null reference.
const Null Ref = 0

// CommitMode selects whether commit waits for durability.
type CommitMode int

const (
	// CommitAsync issues the flush and returns without waiting.
	CommitAsync CommitMode = iota
	// CommitSync waits for the flush to be durable before returning.
	CommitSync
)

const (
	magic         = 0x1053534f53534453 // arbitrary but stable: "SOSS" framed
	headerVersion = 1
	defaultPageSize = 4096

	// minHeapGrowPages is the heap size, in pages, Create gives a file
	// whose initial size leaves no room past the user-data region. The
	// grow amount for a failed alloc is computed separately in heap.go.
	minHeapGrowPages = 16
)

// fileHeader is the fixed on-disk header, overlaid directly onto the
// first bytes of the mapping: magic, version, page size, logical size,
// user-data region, allocator root, and a generation counter bumped on
// every remap for diagnostics.
type fileHeader struct {
	Magic       uint64
	Version     uint32
	PageSize    uint32
	LogicalSize uint64
	UserDataOff uint64
	UserDataLen uint64
	AllocRoot   uint64 // Ref (payload address) of the first free block, 0 = none
	Generation  uint64
}

const headerSize = uint64(unsafe.Sizeof(fileHeader{}))

// Options configure Create/Open.
type Options struct {
	PageSize     uint32 // 0 defaults to 4096
	InitialSize  uint64 // 0 defaults to 64 pages
	UserDataSize uint64 // 0 defaults to one page
	Debug        bool   // attach allocation-site provenance to handles
	Log          *obslog.Logger

	// WALEnabled makes commit(sync) log every heap alloc/free to a
	// write-ahead log (path+".wal.NNN") and drain it before msyncing
	// the mapping.
	WALEnabled bool
}

func (o *Options) normalize() {
	if o.PageSize == 0 {
		o.PageSize = defaultPageSize
	}
	if o.InitialSize == 0 {
		o.InitialSize = uint64(o.PageSize) * 64
	}
	if o.UserDataSize == 0 {
		o.UserDataSize = uint64(o.PageSize)
	}
}

// ODS is a persistent, memory-mapped object heap.
type ODS struct {
	path string
	opts Options

	fd   *os.File
	data []byte // single contiguous mapping of the whole file

	hdr *fileHeader

	handlesMu sync.Mutex
	handles   map[*Handle]struct{}

	log          *obslog.Logger
	wal          *wal.WAL
	txn          uint64 // monotonically increasing txn id stamped on logged entries
	checkpointer *wal.Checkpointer
}

// Create creates a new ODS at path, failing if one already exists.
func Create(path string, opts Options) (*ODS, error) {
	opts.normalize()
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ods: create %s: %w", path, err)
	}

	heapStart := headerSize + opts.UserDataSize
	// round heap start up to a page boundary so the heap itself is page-aligned.
	heapStart = roundUp(heapStart, uint64(opts.PageSize))
	initial := roundUp(opts.InitialSize, uint64(opts.PageSize))
	if initial <= heapStart {
		initial = heapStart + uint64(opts.PageSize)*minHeapGrowPages
	}

	if err := fd.Truncate(int64(initial)); err != nil {
		fd.Close()
		os.Remove(path)
		return nil, fmt.Errorf("ods: truncate: %w", err)
	}

	data, err := unix.Mmap(int(fd.Fd()), 0, int(initial), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		fd.Close()
		os.Remove(path)
		return nil, fmt.Errorf("ods: mmap: %w", err)
	}

	o := &ODS{
		path:    path,
		opts:    opts,
		fd:      fd,
		data:    data,
		handles: make(map[*Handle]struct{}),
		log:     opts.Log,
	}
	o.hdr = (*fileHeader)(unsafe.Pointer(&o.data[0]))
	o.hdr.Magic = magic
	o.hdr.Version = headerVersion
	o.hdr.PageSize = opts.PageSize
	o.hdr.LogicalSize = initial
	o.hdr.UserDataOff = headerSize
	o.hdr.UserDataLen = opts.UserDataSize
	o.hdr.AllocRoot = Null.addr()

	o.initHeap(heapStart, initial)
	if opts.WALEnabled {
		if err := o.openWAL(); err != nil {
			unix.Munmap(data)
			fd.Close()
			os.Remove(path)
			return nil, err
		}
	}
	o.logEvent("create")
	return o, nil
}

// Open opens an existing ODS at path.
func Open(path string, opts Options) (*ODS, error) {
	opts.normalize()
	fd, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ods: open %s: %w", path, err)
	}
	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("ods: stat: %w", err)
	}
	size := st.Size()
	if uint64(size) < headerSize {
		fd.Close()
		return nil, fmt.Errorf("ods: %s: truncated header", path)
	}

	data, err := unix.Mmap(int(fd.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("ods: mmap: %w", err)
	}

	o := &ODS{
		path:    path,
		opts:    opts,
		fd:      fd,
		data:    data,
		handles: make(map[*Handle]struct{}),
		log:     opts.Log,
	}
	o.hdr = (*fileHeader)(unsafe.Pointer(&o.data[0]))
	if o.hdr.Magic != magic {
		unix.Munmap(data)
		fd.Close()
		return nil, fmt.Errorf("ods: %s: bad magic %x", path, o.hdr.Magic)
	}
	if opts.WALEnabled {
		if err := o.openWAL(); err != nil {
			unix.Munmap(data)
			fd.Close()
			return nil, err
		}
	}
	o.logEvent("open")
	return o, nil
}

// openWAL attaches a write-ahead log at path+".wal" to o and starts a
// background checkpointer that periodically forces a durable commit
// and prunes old log segments. The log backs commit(sync)'s durability
// ordering and diagnostic replay; crash recovery against live heap
// state is a separate, explicit step (see Recover), not performed
// implicitly on open.
func (o *ODS) openWAL() error {
	w := &wal.WAL{Path: o.path + ".wal"}
	if err := w.Open(); err != nil {
		return fmt.Errorf("ods: wal open: %w", err)
	}
	o.wal = w
	o.checkpointer = wal.NewCheckpointer(w, func() error { return o.Commit(CommitSync) })
	o.checkpointer.Start()
	return nil
}

// Recover replays o's write-ahead log, restoring every durably logged
// block-header snapshot to its on-disk address. Call on a freshly
// Open-ed ODS, before any other operation, when the previous process
// may have crashed between an alloc/free and the next commit(sync).
func (o *ODS) Recover() error {
	if o.wal == nil {
		return nil
	}
	rec := wal.NewRecovery(o.wal)
	return rec.Recover(func(op wal.OpType, key, value []byte) error {
		if len(key) < 8 || len(value) < 32 {
			return nil
		}
		ref := Ref(binary.LittleEndian.Uint64(key))
		addr := refToAddr(ref)
		if addr < o.heapStart() || addr+blockHeaderSize > o.hdr.LogicalSize {
			return nil
		}
		b := o.blockHeaderAt(addr)
		b.Size = binary.LittleEndian.Uint64(value[0:8])
		b.Free = binary.LittleEndian.Uint64(value[8:16])
		b.PrevSize = binary.LittleEndian.Uint64(value[16:24])
		b.NextFree = binary.LittleEndian.Uint64(value[24:32])
		return nil
	})
}

// logAlloc and logFree append a block-header snapshot to the WAL for
// the block at ref, when a WAL is attached, followed by a commit
// marker so Recover treats the single-op write as a closed
// transaction. Errors are returned to the caller: a heap mutation that
// cannot be logged must fail the operation rather than silently lose
// durability intent.
func (o *ODS) logAlloc(ref Ref) error { return o.logBlock(ref, wal.OpAlloc) }
func (o *ODS) logFree(ref Ref) error  { return o.logBlock(ref, wal.OpFree) }

func (o *ODS) logBlock(ref Ref, op wal.OpType) error {
	if o.wal == nil {
		return nil
	}
	b := o.blockHeaderAt(refToAddr(ref))
	txnID := atomic.AddUint64(&o.txn, 1)
	entry := wal.Entry{
		LSN:    o.wal.NextLSN(),
		TxnID:  txnID,
		OpType: op,
		Key:    refKey(ref),
		Value:  encodeBlockHeader(b),
	}
	if err := o.wal.Write(entry); err != nil {
		return fmt.Errorf("ods: wal write: %w", err)
	}
	commit := wal.Entry{
		LSN:    o.wal.NextLSN(),
		TxnID:  txnID,
		OpType: wal.OpCommit,
	}
	if err := o.wal.Write(commit); err != nil {
		return fmt.Errorf("ods: wal commit write: %w", err)
	}
	return nil
}

func refKey(ref Ref) []byte {
	var k [8]byte
	binary.LittleEndian.PutUint64(k[:], uint64(ref))
	return k[:]
}

func encodeBlockHeader(b *blockHeader) []byte {
	var v [32]byte
	binary.LittleEndian.PutUint64(v[0:8], b.Size)
	binary.LittleEndian.PutUint64(v[8:16], b.Free)
	binary.LittleEndian.PutUint64(v[16:24], b.PrevSize)
	binary.LittleEndian.PutUint64(v[24:32], b.NextFree)
	return v[:]
}

// Close commits with mode and tears the ODS down.
func (o *ODS) Close(mode CommitMode) error {
	if err := o.Commit(mode); err != nil {
		return err
	}
	if o.checkpointer != nil {
		o.checkpointer.Stop()
	}
	if o.wal != nil {
		if err := o.wal.Close(); err != nil {
			return fmt.Errorf("ods: wal close: %w", err)
		}
	}
	if err := unix.Munmap(o.data); err != nil {
		return fmt.Errorf("ods: munmap: %w", err)
	}
	return o.fd.Close()
}

// Commit flushes dirty pages. Sync waits for durability; Async issues
// the flush and returns. A sync commit first drains the WAL (fsyncs
// every logged alloc/free) so the log's ordering of intent is durable
// before the mapping's own page writeback is forced.
func (o *ODS) Commit(mode CommitMode) error {
	flags := unix.MS_ASYNC
	if mode == CommitSync {
		flags = unix.MS_SYNC
		if o.wal != nil {
			if err := o.wal.Fsync(); err != nil {
				return fmt.Errorf("ods: wal fsync: %w", err)
			}
		}
	}
	if err := unix.Msync(o.data, flags); err != nil {
		return fmt.Errorf("ods: msync: %w", err)
	}
	return nil
}

// extend grows the file by at least n bytes and refreshes the mapping.
// Callers must hold the ODS mutex (alloc_object always does; no live
// handle's resolved pointer may be read concurrently with extend).
func (o *ODS) extend(n uint64) error {
	oldSize := o.hdr.LogicalSize
	grow := roundUp(n, uint64(o.hdr.PageSize))
	newSize := oldSize + grow

	if err := o.fd.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("ods: extend truncate: %w", err)
	}

	if err := unix.Munmap(o.data); err != nil {
		return fmt.Errorf("ods: extend munmap: %w", err)
	}
	data, err := unix.Mmap(int(o.fd.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("ods: extend mmap: %w", err)
	}
	o.data = data
	o.hdr = (*fileHeader)(unsafe.Pointer(&o.data[0]))
	o.hdr.LogicalSize = newSize
	o.hdr.Generation++

	o.growHeap(oldSize, newSize)
	o.logEvent("extend")
	return nil
}

// Iter walks the heap in address order, invoking fn with each allocated
// object's Ref and bytes and skipping free blocks. Address order is not
// allocation order once freed space has been reused. Safe to call only
// with no concurrent mutator active.
func (o *ODS) Iter(fn func(ref Ref, data []byte)) {
	addr := o.heapStart()
	for addr < o.hdr.LogicalSize {
		b := o.blockHeaderAt(addr)
		if b.Free == 0 {
			ref := Ref(addr + blockHeaderSize)
			fn(ref, o.data[addr+blockHeaderSize:addr+b.Size])
		}
		addr += b.Size
	}
}

// UserData returns the reserved user-data region as a byte slice.
func (o *ODS) UserData() []byte {
	return o.data[o.hdr.UserDataOff : o.hdr.UserDataOff+o.hdr.UserDataLen]
}

// Path returns the backing file path.
func (o *ODS) Path() string { return o.path }

func (o *ODS) bytesAt(ref Ref, size uint32) []byte {
	off := uint64(ref)
	return o.data[off : off+uint64(size)]
}

func (r Ref) addr() uint64 { return uint64(r) }

func roundUp(n, align uint64) uint64 {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

func (o *ODS) logEvent(event string) {
	if o.log == nil {
		return
	}
	o.log.Debug("ods event").Str("event", event).Str("path", o.path).Uint64("logical_size", o.hdr.LogicalSize).Msg("")
}

// errnof wraps one of pkg/sos's sentinel errno values with context.
func errnof(e sos.Errno, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, error(e))...)
}
