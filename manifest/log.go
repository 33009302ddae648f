package manifest

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/internal/fs"
)

// Durability selects when AddEdit returns relative to fsync.
type Durability int

const (
	// DurabilityAsync returns once the record is handed to the OS. Only
	// Sync and Close make it durable.
	DurabilityAsync Durability = iota
	// DurabilitySync returns once the record has been fsynced.
	DurabilitySync
)

func (d Durability) String() string {
	switch d {
	case DurabilityAsync:
		return "async"
	case DurabilitySync:
		return "sync"
	default:
		return "unknown"
	}
}

const (
	logMagic      = "WALSETMF" // 8 bytes
	logVersion    = 1          // 4 bytes
	logHeaderSize = 12

	recordHeaderSize = 8

	// MaxRecordSize bounds the payload of a single record.
	MaxRecordSize = 64 << 20
)

const opReader = "manifest.Reader"

// ErrInvalidHeader is returned when a file is not a manifest log.
var ErrInvalidHeader = errors.New("invalid manifest log header")

type writerOptions struct {
	durability Durability
	logger     *walset.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

// WithDurability sets the durability mode. The default is DurabilitySync.
func WithDurability(d Durability) WriterOption {
	return func(o *writerOptions) { o.durability = d }
}

// WithWriterLogger sets the logger used for sync failures.
func WithWriterLogger(l *walset.Logger) WriterOption {
	return func(o *writerOptions) {
		if l == nil {
			l = walset.NoopLogger()
		}
		o.logger = l
	}
}

// Writer appends edits to a manifest log file. It is safe for concurrent
// use. In DurabilitySync mode concurrent AddEdit calls share fsyncs: whoever
// holds syncMu syncs everything written so far, and callers queued behind it
// usually find their record already covered.
type Writer struct {
	path string
	opts writerOptions
	file fs.File

	syncMu sync.Mutex // serializes fsync calls

	mu     sync.Mutex // guards the fields below and file writes
	size   int64      // bytes written, header included
	synced int64      // prefix of the file known to be on stable storage
	err    error      // sticky write or sync failure
	closed bool
}

// OpenWriter opens or creates the manifest log at path.
// An existing file must carry a valid header and only intact records; new
// edits are appended. A torn or damaged record yields a corruption error and
// the file is left untouched.
func OpenWriter(fsys fs.FileSystem, path string, optFns ...WriterOption) (*Writer, error) {
	opts := writerOptions{
		durability: DurabilitySync,
		logger:     walset.NoopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	f, err := fs.Or(fsys).OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	size, err := prepareLog(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{path: path, opts: opts, file: f, size: size, synced: size}, nil
}

// prepareLog writes the header to an empty file, or validates the header and
// every record of an existing one, and returns the file size.
func prepareLog(f fs.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if size := info.Size(); size > 0 {
		header := make([]byte, logHeaderSize)
		if _, err := f.ReadAt(header, 0); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w: file too small (%d < %d)", ErrInvalidHeader, size, logHeaderSize)
			}
			return 0, err
		}
		if err := checkLogHeader(header); err != nil {
			return 0, err
		}
		return size, checkRecords(f, size)
	}
	if _, err := f.Write(encodeLogHeader()); err != nil {
		return 0, err
	}
	return logHeaderSize, f.Sync()
}

// checkRecords reads every record after the header. Appending behind a torn
// or damaged record would make the new records unreadable, so any corruption
// refuses the open instead.
func checkRecords(f fs.File, size int64) error {
	r := &Reader{
		r:      bufio.NewReader(io.NewSectionReader(f, logHeaderSize, size-logHeaderSize)),
		offset: logHeaderSize,
	}
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cannot append to manifest log: %w", err)
		}
	}
}

func encodeLogHeader() []byte {
	header := make([]byte, 0, logHeaderSize)
	header = append(header, logMagic...)
	return binary.LittleEndian.AppendUint32(header, logVersion)
}

func checkLogHeader(header []byte) error {
	if string(header[:8]) != logMagic {
		return fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, header[:8])
	}
	if ver := binary.LittleEndian.Uint32(header[8:]); ver != logVersion {
		return fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, logVersion)
	}
	return nil
}

// encodeRecord frames an edit as [crc32][length][payload]. The checksum
// covers the length and the payload.
func encodeRecord(e *Edit) ([]byte, error) {
	rec := make([]byte, recordHeaderSize, recordHeaderSize+64)
	rec = e.EncodeTo(rec)
	n := len(rec) - recordHeaderSize
	if n > MaxRecordSize {
		return nil, fmt.Errorf("manifest record too large: %d bytes", n)
	}
	binary.LittleEndian.PutUint32(rec[4:8], uint32(n))
	binary.LittleEndian.PutUint32(rec[0:4], crc32.ChecksumIEEE(rec[4:]))
	return rec, nil
}

// Path returns the log file path.
func (w *Writer) Path() string { return w.path }

// Size returns the current size of the log in bytes.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// AddEdit appends e to the log and returns the log offset just past the
// record. With DurabilitySync it returns once the record is on stable storage.
func (w *Writer) AddEdit(e *Edit) (int64, error) {
	rec, err := encodeRecord(e)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	if err := w.usable(); err != nil {
		w.mu.Unlock()
		return 0, err
	}
	if _, err := w.file.Write(rec); err != nil {
		w.err = fmt.Errorf("manifest write failed: %w", err)
		w.mu.Unlock()
		return 0, w.err
	}
	w.size += int64(len(rec))
	end := w.size
	w.mu.Unlock()

	if w.opts.durability == DurabilitySync {
		if err := w.syncTo(end); err != nil {
			return 0, err
		}
	}
	return end, nil
}

// usable reports why the writer cannot take more edits. Callers hold mu.
func (w *Writer) usable() error {
	if w.closed {
		return ErrClosed
	}
	return w.err
}

// syncTo returns once the first target bytes of the log are durable.
func (w *Writer) syncTo(target int64) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.mu.Lock()
	synced, end, err := w.synced, w.size, w.err
	closed := w.closed
	w.mu.Unlock()
	switch {
	case synced >= target:
		return nil
	case err != nil:
		return err
	case closed:
		return ErrClosed
	}

	if err := w.file.Sync(); err != nil {
		w.opts.logger.Error("manifest sync failed", "path", w.path, "error", err)
		w.mu.Lock()
		w.err = fmt.Errorf("manifest sync failed: %w", err)
		err = w.err
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.synced = max(w.synced, end)
	w.mu.Unlock()
	return nil
}

// Sync commits all written edits to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	err, end := w.usable(), w.size
	w.mu.Unlock()
	if err != nil {
		return err
	}
	return w.syncTo(end)
}

// Close syncs and closes the log file. Edits still waiting for their sync
// are covered by the final one.
func (w *Writer) Close() error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	failed := w.err
	w.mu.Unlock()

	if failed != nil {
		_ = w.file.Close()
		return failed
	}
	syncErr := w.file.Sync()
	if syncErr == nil {
		w.mu.Lock()
		w.synced = w.size
		w.mu.Unlock()
	}
	return errors.Join(syncErr, w.file.Close())
}

// Reader iterates over the edits of a manifest log.
type Reader struct {
	f      fs.File
	r      *bufio.Reader
	offset int64
}

// OpenReader opens the manifest log at path and positions it at the first record.
func OpenReader(fsys fs.FileSystem, path string) (*Reader, error) {
	f, err := fs.Or(fsys).OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	header := make([]byte, logHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, walset.NewCorruption(opReader, "truncated header", ErrInvalidHeader)
		}
		return nil, err
	}
	if err := checkLogHeader(header); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrInvalidHeader) {
			return nil, walset.NewCorruption(opReader, "bad header", err)
		}
		return nil, err
	}

	return &Reader{f: f, r: bufio.NewReader(f), offset: logHeaderSize}, nil
}

// Seek positions the reader at offset, which must be a record boundary
// previously returned by Writer.AddEdit or Reader.Offset.
func (r *Reader) Seek(offset int64) error {
	if offset < logHeaderSize {
		return fmt.Errorf("seek to %d: offset inside log header", offset)
	}
	info, err := r.f.Stat()
	if err != nil {
		return err
	}
	if offset > info.Size() {
		return walset.NewCorruption(opReader, fmt.Sprintf("offset %d beyond end of log (%d bytes)", offset, info.Size()), nil)
	}
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.r.Reset(r.f)
	r.offset = offset
	return nil
}

// Next reads the next edit. It returns io.EOF at a clean end of the log.
func (r *Reader) Next() (*Edit, error) {
	var header [recordHeaderSize]byte
	if n, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.corruption("truncated record header", nil)
		}
		return nil, err
	}

	checksum := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > MaxRecordSize {
		return nil, r.corruption(fmt.Sprintf("record length %d exceeds limit", length), nil)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.corruption("truncated record", nil)
		}
		return nil, err
	}

	crc := crc32.NewIEEE()
	_, _ = crc.Write(header[4:8])
	_, _ = crc.Write(payload)
	if crc.Sum32() != checksum {
		return nil, r.corruption("checksum mismatch", nil)
	}

	e := new(Edit)
	if err := e.DecodeFrom(payload); err != nil {
		return nil, r.corruption("undecodable edit", err)
	}

	r.offset += recordHeaderSize + int64(length)
	return e, nil
}

func (r *Reader) corruption(msg string, cause error) error {
	return walset.NewCorruption(opReader, fmt.Sprintf("%s at offset %d", msg, r.offset), cause)
}

// Offset returns the offset just past the last record read.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Replay calls fn for every remaining edit in order. It stops at the first
// error returned by the log or by fn.
func (r *Reader) Replay(fn func(*Edit) error) error {
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.f.Close()
}
