package storage

// WALWriter adapts a DiskManager to the wal package's PageWriter without
// creating an import cycle (wal must not import storage).
type WALWriter struct {
	DM DiskManager
}

func NewWALWriter(dm DiskManager) *WALWriter {
	return &WALWriter{DM: dm}
}

func (w *WALWriter) WritePage(pageID int32, pageBytes []byte) error {
	if w == nil || w.DM == nil {
		return nil
	}
	return w.DM.WritePage(PageID(pageID), pageBytes)
}
