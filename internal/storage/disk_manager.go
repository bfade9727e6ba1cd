package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/lunadb/internal/alias/util"
)

// DiskManager is the page I/O surface the buffer pool depends on.
type DiskManager interface {
	// ReadPage fills dst with the contents of pageID.
	ReadPage(pageID PageID, dst []byte) error

	// WritePage persists src under pageID.
	WritePage(pageID PageID, src []byte) error

	// AllocatePage returns a fresh, previously-unused page id
	// (deallocated ids may be recycled).
	AllocatePage() (PageID, error)

	// DeallocatePage marks an id free for reuse. Best-effort, idempotent.
	DeallocatePage(pageID PageID)

	// PageSize reports the fixed page size in bytes.
	PageSize() int
}

var _ DiskManager = (*FileDiskManager)(nil)

// FileDiskManager maps a logical pageID -> (segment, offset) over local
// heap files named Base, Base.1, Base.2, ...
type FileDiskManager struct {
	dir      string
	base     string
	pageSize int

	mu     sync.Mutex
	nextID PageID
	freed  []PageID
	inFree map[PageID]struct{}
}

// NewFileDiskManager opens (or creates) the heap files under dir and scans
// existing segments so allocation continues past the pages already on disk.
func NewFileDiskManager(dir, base string, pageSize int) (*FileDiskManager, error) {
	if pageSize <= 0 {
		return nil, ErrPageSizeInvalid
	}
	dm := &FileDiskManager{
		dir:      dir,
		base:     base,
		pageSize: pageSize,
		inFree:   make(map[PageID]struct{}),
	}
	n, err := dm.countPages()
	if err != nil {
		return nil, fmt.Errorf("disk_manager: scan segments: %w", err)
	}
	dm.nextID = PageID(n)
	return dm, nil
}

func (dm *FileDiskManager) PageSize() int { return dm.pageSize }

func (dm *FileDiskManager) pagesPerSegment() int {
	return SegmentSize / dm.pageSize
}

func (dm *FileDiskManager) locate(pageID PageID) (segNo int32, offset int64) {
	pps := PageID(dm.pagesPerSegment())
	segNo = int32(pageID / pps)
	offset = int64(pageID%pps) * int64(dm.pageSize)
	return segNo, offset
}

func (dm *FileDiskManager) openSegment(segNo int32) (*os.File, error) {
	name := dm.base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", dm.base, segNo)
	}
	path := filepath.Join(dm.dir, name)
	if err := os.MkdirAll(dm.dir, FileMode0755); err != nil {
		return nil, err
	}
	// RDWR | CREATE (no truncate)
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
}

// ReadPage reads exactly one page into dst. If the underlying segment is
// shorter than offset+pageSize the remainder is zero-filled, so pages that
// were allocated but never written read back as all zeroes.
func (dm *FileDiskManager) ReadPage(pageID PageID, dst []byte) error {
	if len(dst) != dm.pageSize {
		return ErrBufSizeMismatch
	}
	dm.mu.Lock()
	limit := dm.nextID
	dm.mu.Unlock()
	if pageID < 0 || pageID >= limit {
		return fmt.Errorf("disk_manager: read page %d: %w", pageID, ErrPageOutOfRange)
	}

	segNo, off := dm.locate(pageID)
	f, err := dm.openSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < dm.pageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly one page from src at the location computed
// from pageID.
func (dm *FileDiskManager) WritePage(pageID PageID, src []byte) error {
	if len(src) != dm.pageSize {
		return ErrBufSizeMismatch
	}
	if pageID < 0 {
		return fmt.Errorf("disk_manager: write page %d: %w", pageID, ErrPageOutOfRange)
	}

	segNo, off := dm.locate(pageID)
	f, err := dm.openSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != dm.pageSize {
		return io.ErrShortWrite
	}
	return nil
}

// AllocatePage recycles the most recently deallocated id if one exists,
// otherwise extends the page space.
func (dm *FileDiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if n := len(dm.freed); n > 0 {
		id := dm.freed[n-1]
		dm.freed = dm.freed[:n-1]
		delete(dm.inFree, id)
		return id, nil
	}
	id := dm.nextID
	dm.nextID++
	return id, nil
}

// DeallocatePage returns an id to the allocator. Ids that were never
// allocated, or are already free, are ignored.
func (dm *FileDiskManager) DeallocatePage(pageID PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if pageID < 0 || pageID >= dm.nextID {
		return
	}
	if _, ok := dm.inFree[pageID]; ok {
		return
	}
	dm.inFree[pageID] = struct{}{}
	dm.freed = append(dm.freed, pageID)
}

// countPages computes total pages on disk by scanning all segments.
func (dm *FileDiskManager) countPages() (int64, error) {
	var total int64

	for segNo := int32(0); ; segNo++ {
		name := dm.base
		if segNo > 0 {
			name = fmt.Sprintf("%s.%d", dm.base, segNo)
		}
		info, err := os.Stat(filepath.Join(dm.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return 0, err
		}
		size := info.Size()
		if size <= 0 {
			continue
		}
		total += size / int64(dm.pageSize)
	}

	return total, nil
}
