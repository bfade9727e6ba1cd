package wal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/lunadb/internal/alias/bx"
)

var (
	ErrBadMagic   = errors.New("wal: bad magic")
	ErrBadCRC     = errors.New("wal: bad crc")
	ErrBadRecord  = errors.New("wal: bad record")
	ErrShortRead  = errors.New("wal: short read")
	ErrNoWALFile  = errors.New("wal: wal file not found")
	ErrBadPageLen = errors.New("wal: page image length mismatch")
)

const (
	magicU32   uint32 = 0x4C57554C // "LUWL"
	versionU16        = 1

	recPageImage uint8 = 1

	// fixed fields:
	// magic(4) ver(2) typ(1) rsv(1) totalLen(4) crc(4)
	// lsn(8) pageID(4)
	headerLen = 4 + 2 + 1 + 1 + 4 + 4
	fixedLen  = headerLen + 8 + 4
)

// PageWriter allows WAL to apply redo without importing storage.
type PageWriter interface {
	WritePage(pageID int32, pageBytes []byte) error
}

// Manager appends LSN-stamped page images and tracks the durable LSN
// horizon. It serves as the buffer pool's durability hook: a dirty page
// may be written back only after the WAL is persisted up to its LSN.
type Manager struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	pageSize int
	lsn      uint64
	flushed  uint64
}

func Open(dir string, pageSize int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path, pageSize: pageSize}
	_ = m.initLastLSN()
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// LSN returns the last assigned log sequence number.
func (m *Manager) LSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lsn
}

// FlushedLSN returns the durable horizon.
func (m *Manager) FlushedLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushed
}

// AppendPageImage logs a full page image and returns its LSN.
func (m *Manager) AppendPageImage(pageID int32, pageBytes []byte) (uint64, error) {
	if len(pageBytes) != m.pageSize {
		return 0, ErrBadPageLen
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrNoWALFile
	}

	m.lsn++
	lsn := m.lsn

	totalLen := fixedLen + len(pageBytes)

	buf := make([]byte, totalLen)
	off := 0

	putU32 := func(v uint32) { bx.PutU32(buf[off:off+4], v); off += 4 }
	putU16 := func(v uint16) { bx.PutU16(buf[off:off+2], v); off += 2 }
	putU64 := func(v uint64) { bx.PutU64(buf[off:off+8], v); off += 8 }
	putU8 := func(v uint8) { buf[off] = v; off++ }

	putU32(magicU32)
	putU16(versionU16)
	putU8(recPageImage)
	putU8(0)

	putU32(uint32(totalLen))

	crcOff := off
	putU32(0) // placeholder

	putU64(lsn)
	putU32(uint32(pageID))

	copy(buf[off:], pageBytes)
	off += len(pageBytes)

	if off != totalLen {
		return 0, ErrBadRecord
	}

	crc := crc32.ChecksumIEEE(buf[crcOff+4:])
	bx.PutU32(buf[crcOff:crcOff+4], crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Flush makes the log durable up to the given LSN. A no-op when the
// horizon already covers it.
func (m *Manager) Flush(upto uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	if upto == 0 || upto <= m.flushed {
		return nil
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = m.lsn
	return nil
}

// EnsurePersisted blocks until the WAL is durable up to lsn. It is the
// durability hook the buffer pool invokes before writing a dirty page.
func (m *Manager) EnsurePersisted(lsn uint64) error {
	return m.Flush(lsn)
}

// Recover replays WAL page images (redo) using writer.
func (m *Manager) Recover(writer PageWriter) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)

	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// tolerate torn tail record
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if rec.typ != recPageImage {
			continue
		}
		if err := writer.WritePage(rec.pageID, rec.page); err != nil {
			return err
		}
	}
}

type decodedRecord struct {
	typ    uint8
	lsn    uint64
	pageID int32
	page   []byte
}

func readOne(r *bufio.Reader) (*decodedRecord, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	magic := bx.U32(hdr[:])
	if magic != magicU32 {
		return nil, ErrBadMagic
	}

	var verB [2]byte
	if _, err := io.ReadFull(r, verB[:]); err != nil {
		return nil, err
	}
	ver := bx.U16(verB[:])
	if ver != versionU16 {
		return nil, ErrBadRecord
	}

	tp, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}

	var lenB [4]byte
	if _, err := io.ReadFull(r, lenB[:]); err != nil {
		return nil, err
	}
	totalLen := bx.U32(lenB[:])
	if totalLen < uint32(fixedLen) {
		return nil, ErrBadRecord
	}

	var crcB [4]byte
	if _, err := io.ReadFull(r, crcB[:]); err != nil {
		return nil, err
	}
	wantCRC := bx.U32(crcB[:])

	restLen := int(totalLen) - headerLen
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}
	gotCRC := crc32.ChecksumIEEE(rest)
	if gotCRC != wantCRC {
		return nil, ErrBadCRC
	}

	off := 0
	lsn := bx.U64At(rest, off)
	off += 8
	pageID := bx.I32(rest[off : off+4])
	off += 4

	page := make([]byte, restLen-off)
	copy(page, rest[off:])

	return &decodedRecord{
		typ:    tp,
		lsn:    lsn,
		pageID: pageID,
		page:   page,
	}, nil
}

func (m *Manager) initLastLSN() error {
	f, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	var last uint64

	for {
		rec, err := readOne(r)
		if err != nil {
			break
		}
		if rec.lsn > last {
			last = rec.lsn
		}
	}

	if last > 0 {
		m.lsn = last
		m.flushed = last
	}
	return nil
}
