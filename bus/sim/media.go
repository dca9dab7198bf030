package sim

import (
	"io"
	"os"
	"sync"
)

// BlockSize is the size of one media block in bytes.
const BlockSize = 512

// Media defines the storage behind a simulated card.
// Implementations provide block-level storage operations.
type Media interface {
	// BlockCount returns the total number of blocks.
	BlockCount() uint64

	// ReadBlock reads the block at lba into buf.
	ReadBlock(lba uint64, buf []byte) error

	// WriteBlock writes buf to the block at lba.
	WriteBlock(lba uint64, buf []byte) error

	// Sync flushes any cached writes to storage.
	Sync() error

	// IsReadOnly returns true if the media refuses writes.
	IsReadOnly() bool
}

// MemoryMedia implements Media using an in-memory buffer.
type MemoryMedia struct {
	data     []byte
	readOnly bool
	mutex    sync.RWMutex
}

// NewMemoryMedia creates in-memory media holding the given number of blocks.
func NewMemoryMedia(blocks uint64) *MemoryMedia {
	return &MemoryMedia{
		data: make([]byte, blocks*BlockSize),
	}
}

// NewMemoryMediaFrom creates in-memory media over a copy of image.
// A trailing partial block is dropped.
func NewMemoryMediaFrom(image []byte) *MemoryMedia {
	n := len(image) / BlockSize * BlockSize
	data := make([]byte, n)
	copy(data, image[:n])
	return &MemoryMedia{data: data}
}

// BlockCount returns the number of blocks.
func (m *MemoryMedia) BlockCount() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return uint64(len(m.data)) / BlockSize
}

// ReadBlock reads one block from memory.
func (m *MemoryMedia) ReadBlock(lba uint64, buf []byte) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	offset := lba * BlockSize
	if offset+BlockSize > uint64(len(m.data)) {
		return io.EOF
	}
	if len(buf) < BlockSize {
		return io.ErrShortBuffer
	}

	copy(buf, m.data[offset:offset+BlockSize])
	return nil
}

// WriteBlock writes one block to memory.
func (m *MemoryMedia) WriteBlock(lba uint64, buf []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.readOnly {
		return os.ErrPermission
	}

	offset := lba * BlockSize
	if offset+BlockSize > uint64(len(m.data)) {
		return io.EOF
	}
	if len(buf) < BlockSize {
		return io.ErrShortBuffer
	}

	copy(m.data[offset:offset+BlockSize], buf)
	return nil
}

// Sync is a no-op for memory media.
func (m *MemoryMedia) Sync() error {
	return nil
}

// IsReadOnly returns whether the media is read-only.
func (m *MemoryMedia) IsReadOnly() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.readOnly
}

// SetReadOnly sets the read-only flag.
func (m *MemoryMedia) SetReadOnly(readOnly bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.readOnly = readOnly
}

// Bytes returns a copy of the whole media image.
func (m *MemoryMedia) Bytes() []byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// FileMedia implements Media using a disk image file.
type FileMedia struct {
	file     *os.File
	size     uint64
	readOnly bool
	mutex    sync.RWMutex
}

// NewFileMedia opens a disk image as media.
// If readOnly is true, the file is opened in read-only mode.
func NewFileMedia(path string, readOnly bool) (*FileMedia, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &FileMedia{
		file:     file,
		size:     uint64(stat.Size()),
		readOnly: readOnly,
	}, nil
}

// BlockCount returns the number of whole blocks in the image.
func (f *FileMedia) BlockCount() uint64 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.size / BlockSize
}

// ReadBlock reads one block from the image.
func (f *FileMedia) ReadBlock(lba uint64, buf []byte) error {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	offset := lba * BlockSize
	if offset+BlockSize > f.size {
		return io.EOF
	}
	if len(buf) < BlockSize {
		return io.ErrShortBuffer
	}

	_, err := f.file.ReadAt(buf[:BlockSize], int64(offset))
	return err
}

// WriteBlock writes one block to the image.
func (f *FileMedia) WriteBlock(lba uint64, buf []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return os.ErrPermission
	}

	offset := lba * BlockSize
	if offset+BlockSize > f.size {
		return io.EOF
	}
	if len(buf) < BlockSize {
		return io.ErrShortBuffer
	}

	_, err := f.file.WriteAt(buf[:BlockSize], int64(offset))
	return err
}

// Sync flushes image writes to disk.
func (f *FileMedia) Sync() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return nil
	}

	return f.file.Sync()
}

// IsReadOnly returns whether the image was opened read-only.
func (f *FileMedia) IsReadOnly() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.readOnly
}

// Close closes the underlying file.
func (f *FileMedia) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}
