package ods

import (
	"fmt"
	"unsafe"

	"github.com/narategithub/sos/pkg/sos"
)

// blockHeader precedes every block (free or allocated) in the heap.
// Size is the block's total size, header included, always 8-byte
// aligned. PrevSize is the total size of the physically preceding
// block (0 if this is the first block in the heap), which gives O(1)
// backward coalescing without a boundary-tag footer. NextFree chains
// free blocks in address order; meaningless when Free == 0.
type blockHeader struct {
	Size     uint64
	Free     uint64
	PrevSize uint64
	NextFree uint64
}

const (
	blockHeaderSize = uint64(unsafe.Sizeof(blockHeader{}))
	allocAlign      = 8
	minBlockSize    = blockHeaderSize + 32 // smallest block worth splitting off
	minPayload      = 8                    // alloc(0) still yields this much payload
)

func (o *ODS) heapStart() uint64 {
	return roundUp(o.hdr.UserDataOff+o.hdr.UserDataLen, uint64(o.hdr.PageSize))
}

func (o *ODS) blockHeaderAt(addr uint64) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&o.data[addr]))
}

// refToAddr/addrToRef convert between a block's header address and the
// payload Ref callers deal with.
func refToAddr(ref Ref) uint64   { return uint64(ref) - blockHeaderSize }
func addrToRef(addr uint64) Ref  { return Ref(addr + blockHeaderSize) }

func (o *ODS) initHeap(start, end uint64) {
	b := o.blockHeaderAt(start)
	b.Size = end - start
	b.Free = 1
	b.PrevSize = 0
	b.NextFree = 0
	o.hdr.AllocRoot = uint64(addrToRef(start))
}

// growHeap extends the heap to cover the newly mapped [oldEnd, newEnd)
// range, merging it into the physically-last block when that block is
// already free, or appending a brand-new free block otherwise.
func (o *ODS) growHeap(oldEnd, newEnd uint64) {
	start := o.heapStart()
	addr := start
	var last uint64
	for addr < oldEnd {
		last = addr
		addr += o.blockHeaderAt(addr).Size
	}
	if addr != oldEnd {
		// Heap was empty or mis-tracked; treat the whole gap as new.
		last = 0
	}

	if last != 0 {
		lastHdr := o.blockHeaderAt(last)
		if lastHdr.Free == 1 {
			lastHdr.Size += newEnd - oldEnd
			return
		}
	}

	nb := o.blockHeaderAt(oldEnd)
	nb.Size = newEnd - oldEnd
	nb.Free = 1
	nb.PrevSize = 0
	if last != 0 {
		nb.PrevSize = o.blockHeaderAt(last).Size
	}
	nb.NextFree = 0
	o.insertFree(addrToRef(oldEnd))
}

// alloc carves a block of at least sz payload bytes, growing the
// mapping (alloc, extend, retry) when the free list cannot satisfy the
// request. Callers must hold any ODS-wide lock needed for
// serialization (handle.go's AllocObject does).
func (o *ODS) alloc(sz uint32) (Ref, error) {
	if sz == 0 {
		sz = minPayload
	}
	needed := roundUp(uint64(sz)+blockHeaderSize, allocAlign)

	ref, ok := o.tryAlloc(needed)
	if ok {
		if err := o.logAlloc(ref); err != nil {
			return Null, err
		}
		return ref, nil
	}

	grow := needed * 16
	const extendMin = 64 * 1024
	if grow < extendMin {
		grow = extendMin
	}
	if err := o.extend(grow); err != nil {
		return Null, err
	}

	ref, ok = o.tryAlloc(needed)
	if !ok {
		return Null, errnof(sos.ENOMEM, "ods: alloc %d bytes", sz)
	}
	if err := o.logAlloc(ref); err != nil {
		return Null, err
	}
	return ref, nil
}

func (o *ODS) tryAlloc(needed uint64) (Ref, bool) {
	var prevFreeAddr uint64 // 0 == head
	cur := Ref(o.hdr.AllocRoot)
	for cur != Null {
		addr := refToAddr(cur)
		b := o.blockHeaderAt(addr)
		if b.Size >= needed {
			o.unlinkFree(prevFreeAddr, addr)
			if b.Size-needed >= minBlockSize {
				o.splitBlock(addr, needed)
			}
			b.Free = 0
			return addrToRef(addr), true
		}
		prevFreeAddr = addr
		cur = Ref(b.NextFree)
	}
	return Null, false
}

// splitBlock shrinks the block at addr to size total, creating a new
// free block from the remainder and inserting it into the free list.
func (o *ODS) splitBlock(addr, size uint64) {
	b := o.blockHeaderAt(addr)
	total := b.Size
	b.Size = size

	remAddr := addr + size
	rem := o.blockHeaderAt(remAddr)
	rem.Size = total - size
	rem.Free = 1
	rem.PrevSize = size
	rem.NextFree = 0

	if end := remAddr + rem.Size; end < o.hdr.LogicalSize {
		o.blockHeaderAt(end).PrevSize = rem.Size
	}
	o.insertFree(addrToRef(remAddr))
}

// free marks the block at ref free and coalesces with physically
// adjacent free neighbors.
func (o *ODS) free(ref Ref) error {
	addr := refToAddr(ref)
	if addr < o.heapStart() || addr >= o.hdr.LogicalSize {
		return errnof(sos.EINVAL, "ods: free: ref %d out of range", ref)
	}
	b := o.blockHeaderAt(addr)
	if b.Free == 1 {
		return errnof(sos.EINVAL, "ods: free: ref %d already free", ref)
	}
	b.Free = 1

	// Merge with the next physical block if it is free.
	nextAddr := addr + b.Size
	if nextAddr < o.hdr.LogicalSize {
		next := o.blockHeaderAt(nextAddr)
		if next.Free == 1 {
			o.removeFree(nextAddr)
			b.Size += next.Size
		}
	}

	// Merge with the previous physical block if it is free.
	if b.PrevSize != 0 {
		prevAddr := addr - b.PrevSize
		prev := o.blockHeaderAt(prevAddr)
		if prev.Free == 1 {
			o.removeFree(prevAddr)
			prev.Size += b.Size
			addr = prevAddr
			b = prev
		}
	}

	if end := addr + b.Size; end < o.hdr.LogicalSize {
		o.blockHeaderAt(end).PrevSize = b.Size
	}
	o.insertFree(addrToRef(addr))
	return o.logFree(addrToRef(addr))
}

// insertFree splices the free block at ref into the address-sorted
// free list.
func (o *ODS) insertFree(ref Ref) {
	addr := refToAddr(ref)
	b := o.blockHeaderAt(addr)

	var prevAddr uint64
	cur := Ref(o.hdr.AllocRoot)
	for cur != Null && refToAddr(cur) < addr {
		prevAddr = refToAddr(cur)
		cur = Ref(o.blockHeaderAt(refToAddr(cur)).NextFree)
	}

	b.NextFree = uint64(cur)
	if prevAddr == 0 {
		o.hdr.AllocRoot = uint64(ref)
	} else {
		o.blockHeaderAt(prevAddr).NextFree = uint64(ref)
	}
}

// removeFree unlinks the free block at addr from the free list by
// re-walking from the head to find its predecessor.
func (o *ODS) removeFree(addr uint64) {
	target := addrToRef(addr)
	var prevAddr uint64
	cur := Ref(o.hdr.AllocRoot)
	for cur != Null {
		if cur == target {
			o.unlinkFree(prevAddr, addr)
			return
		}
		prevAddr = refToAddr(cur)
		cur = Ref(o.blockHeaderAt(refToAddr(cur)).NextFree)
	}
	panic(fmt.Sprintf("ods: removeFree: block at %d not in free list", addr))
}

// unlinkFree splices out the free block at addr given its predecessor
// (0 == it is the list head).
func (o *ODS) unlinkFree(prevAddr, addr uint64) {
	next := o.blockHeaderAt(addr).NextFree
	if prevAddr == 0 {
		o.hdr.AllocRoot = next
	} else {
		o.blockHeaderAt(prevAddr).NextFree = next
	}
}

// objectSize returns the payload size of the block backing ref.
func (o *ODS) objectSize(ref Ref) uint32 {
	b := o.blockHeaderAt(refToAddr(ref))
	return uint32(b.Size - blockHeaderSize)
}
