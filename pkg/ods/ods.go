package ods

// Stats summarizes an ODS's current heap occupancy.
type Stats struct {
	LogicalSize  uint64
	HeapStart    uint64
	LiveObjects  int
	FreeBlocks   int
	FreeBytes    uint64
	AllocatedBytes uint64
}

// Stat walks the heap once and reports occupancy. Like Iter, it takes
// no lock and is safe to call only with no concurrent mutator active.
func (o *ODS) Stat() Stats {
	s := Stats{
		LogicalSize: o.hdr.LogicalSize,
		HeapStart:   o.heapStart(),
	}
	addr := s.HeapStart
	for addr < o.hdr.LogicalSize {
		b := o.blockHeaderAt(addr)
		if b.Free == 1 {
			s.FreeBlocks++
			s.FreeBytes += b.Size
		} else {
			s.LiveObjects++
			s.AllocatedBytes += b.Size
		}
		addr += b.Size
	}
	return s
}

// ObjectSize returns the payload size of the object at ref without
// allocating a handle for it.
func (o *ODS) ObjectSize(ref Ref) uint32 {
	return o.objectSize(ref)
}
