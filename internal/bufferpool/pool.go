package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/lunadb/internal/storage"
)

var (
	logDebugPrefix  = "bufferpool: "
	DefaultCapacity = 128

	// ErrNoFreeFrame is returned when no unpinned frame is available for replacement.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrPagePinned is returned when trying to delete a pinned page.
	ErrPagePinned = errors.New("bufferpool: page is pinned")

	// ErrInvalidPageID is returned when an operation names the invalid sentinel.
	ErrInvalidPageID = errors.New("bufferpool: invalid page id")

	// ErrPageNotInPool is returned by FlushPage for pages not currently bound.
	ErrPageNotInPool = errors.New("bufferpool: page not in pool")
)

// LogManager is the durability hook invoked before a dirty page is
// written back. wal.Manager satisfies it.
type LogManager interface {
	EnsurePersisted(lsn uint64) error
}

// Manager is a fixed-capacity buffer pool over a disk manager. Frames
// live in a contiguous slab indexed by frame id; the page table maps
// bound page ids to slab indices and the free list holds unbound frames.
// Victims always come from the free list first, then from the replacer.
type Manager struct {
	mu        sync.Mutex
	frames    []Frame
	pageTable map[storage.PageID]storage.FrameID
	freeList  []storage.FrameID
	replacer  Replacer
	disk      storage.DiskManager
	log       LogManager // optional; nil disables the WAL hook
}

// NewManager builds a pool of poolSize frames sized to the disk
// manager's page size. If poolSize <= 0 a default capacity is used.
// log may be nil when no write-ahead logging is configured.
func NewManager(poolSize int, disk storage.DiskManager, replacer Replacer, log LogManager) *Manager {
	if poolSize <= 0 {
		poolSize = DefaultCapacity
	}
	m := &Manager{
		frames:    make([]Frame, poolSize),
		pageTable: make(map[storage.PageID]storage.FrameID, poolSize),
		freeList:  make([]storage.FrameID, 0, poolSize),
		replacer:  replacer,
		disk:      disk,
		log:       log,
	}
	// Initially, every frame is unbound and on the free list.
	for i := range m.frames {
		m.frames[i].buf = make([]byte, disk.PageSize())
		m.frames[i].pageID = storage.InvalidPageID
		m.freeList = append(m.freeList, storage.FrameID(i))
	}
	return m
}

// PoolSize returns the number of frames.
func (m *Manager) PoolSize() int { return len(m.frames) }

// FetchPage pins and returns the frame holding pageID, reading it from
// disk on a miss. Returns ErrNoFreeFrame when every frame is pinned.
func (m *Manager) FetchPage(pageID storage.PageID) (*Frame, error) {
	if pageID == storage.InvalidPageID {
		return nil, ErrInvalidPageID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slog.Debug(logDebugPrefix+"FetchPage called", "pageID", pageID)

	// 1) HIT: pin and notify the replacer.
	if fid, ok := m.pageTable[pageID]; ok {
		f := &m.frames[fid]
		f.pinCount++
		m.replacer.Pin(fid)
		slog.Debug(logDebugPrefix+"found page in buffer",
			"pageID", pageID,
			"frameID", fid,
			"pinCount", f.pinCount)
		return f, nil
	}

	// 2) MISS: free list first, then replacer (flushing a dirty victim).
	fid, err := m.victimLocked()
	if err != nil {
		return nil, err
	}
	f := &m.frames[fid]

	// 3) Rebind and read the page in.
	m.pageTable[pageID] = fid
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false
	f.lsn = 0
	f.ResetMemory()

	if err := m.disk.ReadPage(pageID, f.buf); err != nil {
		// A failed read leaves the frame unbound; it goes back to
		// the free list.
		delete(m.pageTable, pageID)
		f.pageID = storage.InvalidPageID
		f.pinCount = 0
		m.freeList = append(m.freeList, fid)
		return nil, fmt.Errorf("bufferpool: read page %d: %w", pageID, err)
	}

	slog.Debug(logDebugPrefix+"loaded page into frame",
		"pageID", pageID,
		"frameID", fid)
	return f, nil
}

// UnpinPage drops one pin on pageID, OR-ing in the dirty hint. On the
// transition to zero pins the frame becomes eligible for eviction.
// Returns false only when the frame was not pinned (a caller bug);
// unpinning an absent page is a no-op success.
func (m *Manager) UnpinPage(pageID storage.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable[pageID]
	if !ok {
		slog.Debug(logDebugPrefix+"UnpinPage ignored, page not in pool", "pageID", pageID)
		return true
	}
	f := &m.frames[fid]
	if f.pinCount <= 0 {
		slog.Error(logDebugPrefix+"UnpinPage on unpinned frame",
			"pageID", pageID,
			"frameID", fid)
		return false
	}

	// Never clear dirty here; only flush and write-back may.
	f.dirty = f.dirty || dirty
	f.pinCount--
	if f.pinCount == 0 {
		m.replacer.Unpin(fid)
	}

	slog.Debug(logDebugPrefix+"UnpinPage",
		"pageID", pageID,
		"frameID", fid,
		"dirty", f.dirty,
		"pinCount", f.pinCount)
	return true
}

// FlushPage writes pageID's buffer to disk and clears its dirty flag.
// The pin count is not altered. Returns ErrPageNotInPool when the page
// is not bound to any frame.
func (m *Manager) FlushPage(pageID storage.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable[pageID]
	if !ok {
		return ErrPageNotInPool
	}
	return m.flushFrameLocked(&m.frames[fid])
}

// NewPage allocates a fresh page on disk and binds it to a frame, pinned
// and zeroed. Returns ErrNoFreeFrame when every frame is pinned.
func (m *Manager) NewPage() (storage.PageID, *Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, err := m.victimLocked()
	if err != nil {
		return storage.InvalidPageID, nil, err
	}
	f := &m.frames[fid]

	pageID, err := m.disk.AllocatePage()
	if err != nil {
		m.freeList = append(m.freeList, fid)
		return storage.InvalidPageID, nil, fmt.Errorf("bufferpool: allocate page: %w", err)
	}

	m.pageTable[pageID] = fid
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false
	f.lsn = 0
	f.ResetMemory()

	slog.Debug(logDebugPrefix+"NewPage",
		"pageID", pageID,
		"frameID", fid)
	return pageID, f, nil
}

// DeletePage unbinds pageID and returns its frame to the free list.
// Deleting an absent page succeeds; deleting a pinned page fails with
// ErrPagePinned.
func (m *Manager) DeletePage(pageID storage.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable[pageID]
	if !ok {
		return nil
	}
	f := &m.frames[fid]
	if f.pinCount > 0 {
		slog.Debug(logDebugPrefix+"DeletePage: page is pinned",
			"pageID", pageID,
			"frameID", fid,
			"pinCount", f.pinCount)
		return ErrPagePinned
	}

	delete(m.pageTable, pageID)
	m.replacer.Pin(fid) // drop from the eviction candidates
	f.pageID = storage.InvalidPageID
	f.dirty = false
	f.lsn = 0
	f.ResetMemory()
	m.freeList = append(m.freeList, fid)

	m.disk.DeallocatePage(pageID)

	slog.Debug(logDebugPrefix+"DeletePage", "pageID", pageID, "frameID", fid)
	return nil
}

// FlushAll writes every bound page's buffer to disk.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, fid := range m.pageTable {
		if err := m.flushFrameLocked(&m.frames[fid]); err != nil {
			return err
		}
	}
	return nil
}

// victimLocked obtains an unbound frame: free list first, otherwise the
// replacer evicts one (writing it back if dirty). The returned frame has
// no page-table binding. Caller must hold m.mu.
func (m *Manager) victimLocked() (storage.FrameID, error) {
	if n := len(m.freeList); n > 0 {
		fid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return fid, nil
	}

	fid, ok := m.replacer.Victim()
	if !ok {
		return 0, ErrNoFreeFrame
	}
	f := &m.frames[fid]
	slog.Debug(logDebugPrefix+"evicting victim frame",
		"victimPageID", f.pageID,
		"frameID", fid,
		"dirty", f.dirty)

	if f.dirty {
		if err := m.flushFrameLocked(f); err != nil {
			// Put the victim back as evictable so a later call can retry.
			m.replacer.Unpin(fid)
			return 0, err
		}
	}

	delete(m.pageTable, f.pageID)
	f.pageID = storage.InvalidPageID
	f.pinCount = 0
	f.lsn = 0
	return fid, nil
}

// flushFrameLocked persists one bound frame, honoring the WAL hook:
// the log must be durable up to the page's LSN before the page image
// may reach disk. Caller must hold m.mu.
func (m *Manager) flushFrameLocked(f *Frame) error {
	if m.log != nil && f.lsn > 0 {
		if err := m.log.EnsurePersisted(f.lsn); err != nil {
			return fmt.Errorf("bufferpool: persist wal up to lsn %d: %w", f.lsn, err)
		}
	}
	if err := m.disk.WritePage(f.pageID, f.buf); err != nil {
		return fmt.Errorf("bufferpool: write page %d: %w", f.pageID, err)
	}
	f.dirty = false
	return nil
}
