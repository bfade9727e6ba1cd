package bufferpool

import "github.com/tuannm99/lunadb/internal/storage"

// Frame is one slot of the pool's contiguous frame slab. It holds a
// fixed-size page buffer plus the metadata the pool needs to manage it.
// Frames are created once at pool construction and live until teardown;
// only their content and binding change.
//
// The frame carries no locking of its own. The pool's mutex owns all
// coordination; callers may touch Data() only between a successful
// fetch/new and the matching unpin.
type Frame struct {
	buf      []byte
	pageID   storage.PageID
	pinCount int32
	dirty    bool
	lsn      uint64
}

// Data returns the mutable page buffer.
func (f *Frame) Data() []byte { return f.buf }

// PageID returns the page currently bound to this frame, or
// storage.InvalidPageID when the frame is free.
func (f *Frame) PageID() storage.PageID { return f.pageID }

// PinCount returns the current pin count.
func (f *Frame) PinCount() int32 { return f.pinCount }

// IsDirty reports whether the in-memory contents differ from disk.
func (f *Frame) IsDirty() bool { return f.dirty }

// LSN returns the log sequence number of the last logged change to this
// page. The pool waits for the WAL to persist up to it before writing
// the page back.
func (f *Frame) LSN() uint64 { return f.lsn }

// SetLSN records the LSN of the latest logged change. Callers set it
// after appending to the WAL, while the page is still pinned.
func (f *Frame) SetLSN(lsn uint64) { f.lsn = lsn }

// ResetMemory zeroes the page buffer.
func (f *Frame) ResetMemory() {
	for i := range f.buf {
		f.buf[i] = 0
	}
}
