package ods

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/narategithub/sos/pkg/sos"
)

// Handle is a reference-counted, in-memory view onto a persistent
// object. Multiple independent handles may resolve the same Ref
// simultaneously, each with its own refcount — RefAsObject always
// mints a fresh handle rather than sharing one per Ref.
//
// A handle never caches a raw pointer: Bytes() re-derives the slice
// from the ODS's current mapping on every call, so a handle stays
// valid across any intervening extend() that remaps the file.
type Handle struct {
	ods      *ODS
	ref      Ref
	size     uint32
	refcount int32

	mu        sync.Mutex
	allocSite string // debug-build provenance only: who called AllocObject/RefAsObject
	putSite   string // debug-build provenance only: who dropped the refcount to zero
}

// AllocObject allocates a new persistent object of sz bytes and
// returns a handle to it with refcount 1.
func (o *ODS) AllocObject(sz uint32) (*Handle, error) {
	o.handlesMu.Lock()
	defer o.handlesMu.Unlock()

	if sz == 0 {
		sz = minPayload
	}
	ref, err := o.alloc(sz)
	if err != nil {
		return nil, err
	}
	h := o.newHandle(ref, sz)
	if o.log != nil {
		o.log.Debug("alloc object").Str("path", o.path).Uint64("ref", uint64(ref)).Uint32("size", sz).Msg("")
	}
	return h, nil
}

// RefAsObject resolves an existing Ref into a new handle with
// refcount 1. Returns ENOENT if ref is null or out of range.
func (o *ODS) RefAsObject(ref Ref) (*Handle, error) {
	if ref == Null {
		return nil, errnof(sos.ENOENT, "ods: ref_as_object: null ref")
	}
	o.handlesMu.Lock()
	defer o.handlesMu.Unlock()

	addr := refToAddr(ref)
	if addr < o.heapStart() || addr >= o.hdr.LogicalSize {
		return nil, errnof(sos.ENOENT, "ods: ref_as_object: ref %d out of range", ref)
	}
	b := o.blockHeaderAt(addr)
	if b.Free == 1 {
		return nil, errnof(sos.ENOENT, "ods: ref_as_object: ref %d is free", ref)
	}
	return o.newHandle(ref, uint32(b.Size-blockHeaderSize)), nil
}

func (o *ODS) newHandle(ref Ref, size uint32) *Handle {
	h := &Handle{ods: o, ref: ref, size: size, refcount: 1}
	if o.opts.Debug {
		h.allocSite = uuid.NewString()
	}
	o.handles[h] = struct{}{}
	return h
}

// ODS returns the store this handle belongs to, so a collaborator
// holding only a Handle (pkg/value binding a view) can resolve further
// Refs it reads out of the object's payload.
func (h *Handle) ODS() *ODS { return h.ods }

// Ref returns the persistent reference this handle resolves.
func (h *Handle) Ref() Ref { return h.ref }

// Size returns the object's payload size in bytes.
func (h *Handle) Size() uint32 { return h.size }

// Bytes returns the live byte slice backing this handle. The slice is
// only valid until the next call that may remap the ODS (alloc,
// extend); callers that hold a handle across such a call must call
// Bytes again to re-resolve the pointer.
func (h *Handle) Bytes() []byte {
	return h.ods.bytesAt(h.ref, h.size)
}

// Get increments the handle's refcount and returns it, the idiom used
// for handing a handle to a second owner without a copy.
func (h *Handle) Get() *Handle {
	atomic.AddInt32(&h.refcount, 1)
	return h
}

// Put decrements the handle's refcount, releasing it from the ODS's
// live-handle registry once it reaches zero. It does not free the
// underlying object — call Delete for that.
//
// Calling Put again on a handle already at zero is a double-put: a
// programming error. In debug mode it panics, naming both the
// allocation site and the site that first released the handle.
func (h *Handle) Put() {
	n := atomic.AddInt32(&h.refcount, -1)
	if n > 0 {
		return
	}
	if n < 0 {
		if h.ods.opts.Debug {
			h.mu.Lock()
			allocSite, putSite := h.allocSite, h.putSite
			h.mu.Unlock()
			panic(fmt.Sprintf("ods: double put on handle (alloc site %s, put site %s)", allocSite, putSite))
		}
		return
	}
	h.ods.handlesMu.Lock()
	delete(h.ods.handles, h)
	h.ods.handlesMu.Unlock()
	if h.ods.opts.Debug {
		h.mu.Lock()
		h.putSite = uuid.NewString()
		h.mu.Unlock()
	}
}

// Delete frees the underlying persistent object. The handle must not
// be used again afterward.
func (h *Handle) Delete() error {
	h.ods.handlesMu.Lock()
	defer h.ods.handlesMu.Unlock()
	if err := h.ods.free(h.ref); err != nil {
		return err
	}
	delete(h.ods.handles, h)
	h.ref = Null
	h.size = 0
	return nil
}

// LiveHandleCount reports how many handles are currently registered,
// for leak-detection tests and diagnostics.
func (o *ODS) LiveHandleCount() int {
	o.handlesMu.Lock()
	defer o.handlesMu.Unlock()
	return len(o.handles)
}
