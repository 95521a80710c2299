// Package savearchive persists a session and its generated images in a
// single binary container.
//
// File layout, version 1:
//
//	+----------------------+
//	| header               |  magic, then six 8-byte little-endian integers
//	+----------------------+
//	| game data region     |  pre-allocated space for JSON-serialized GameData
//	+----------------------+
//	| image data chunks    |  image bytes, appended back to back
//	+----------------------+
//	| image index          |  (offset, length) uint64 pairs, one per image
//	+----------------------+
//
// The index always occupies the tail of the file: each append truncates the
// file at the index, writes the new image bytes, re-serializes the full
// index behind them and rewrites the header. An image's id is its position
// in the index; ids are append-only and never reordered.
package savearchive

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/theimaginaryfoundation/world-weaver/weave"
)

var magic = [8]byte{'W', 'O', 'W', 'E', 'A', 'V', 'E', 'R'}

const (
	// Version is the current archive format version. The header layout is
	// byte-stable across versions that claim compatibility.
	Version = 1

	// DefaultGameDataRegionSize is the pre-allocated JSON region capacity.
	DefaultGameDataRegionSize = 20 * 1024 * 1024

	headerSize     = 8 + 6*8
	indexEntrySize = 16
)

var (
	// ErrInvalidMagic means the file is not a save archive.
	ErrInvalidMagic = errors.New("invalid save file")

	// ErrRegionFull means the serialized game data no longer fits the
	// pre-allocated region. The region does not grow in place.
	ErrRegionFull = errors.New("game data region is not large enough, the archive needs to be rewritten")

	// ErrNoGameData means the archive has never had game data written.
	ErrNoGameData = errors.New("no game data")

	// ErrImageNotFound means the requested image id is out of range.
	ErrImageNotFound = errors.New("image id not found")
)

type header struct {
	magic              [8]byte
	version            uint64
	gameDataRegionSize uint64
	gameDataSize       uint64
	gameDataRegionOff  uint64
	indexOffset        uint64
	indexSize          uint64
}

type indexEntry struct {
	offset uint64
	length uint64
}

// Archive is an open save file. It assumes a single writer; callers must
// not interleave writes from multiple goroutines on the same handle.
type Archive struct {
	file   *os.File
	header header
	index  []indexEntry
}

// Create makes a new archive at path with the default game data region,
// truncating any existing file. The archive starts with zero-length game
// data and an empty image index.
func Create(path string) (*Archive, error) {
	return CreateSized(path, DefaultGameDataRegionSize)
}

// CreateSized is Create with an explicit game data region capacity.
func CreateSized(path string, regionSize uint64) (*Archive, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	h := header{
		magic:              magic,
		version:            Version,
		gameDataRegionSize: regionSize,
		gameDataSize:       0,
		gameDataRegionOff:  headerSize,
		indexOffset:        headerSize + regionSize,
		indexSize:          0,
	}

	if err := file.Truncate(int64(h.indexOffset)); err != nil {
		file.Close()
		return nil, fmt.Errorf("create archive: %w", err)
	}
	if err := writeHeader(file, h); err != nil {
		file.Close()
		return nil, err
	}

	return &Archive{file: file, header: h}, nil
}

// Open loads an existing archive, validating the magic and reading the
// header and image index.
func Open(path string) (*Archive, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	h, err := readHeader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	slog.Debug("read archive header",
		"version", h.version,
		"game_data_size", h.gameDataSize,
		"index_offset", h.indexOffset,
		"index_size", h.indexSize)

	index, err := readIndex(file, h)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Archive{file: file, header: h, index: index}, nil
}

// Close closes the underlying file.
func (a *Archive) Close() error {
	return a.file.Close()
}

// WriteGameData serializes the session into the pre-allocated region. It
// fails with ErrRegionFull if the JSON no longer fits; the archive is left
// unchanged in that case.
func (a *Archive) WriteGameData(data *weave.GameData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize game data: %w", err)
	}
	if uint64(len(raw)) >= a.header.gameDataRegionSize {
		return fmt.Errorf("%w (%d bytes into %d)", ErrRegionFull, len(raw), a.header.gameDataRegionSize)
	}

	if _, err := a.file.WriteAt(raw, int64(a.header.gameDataRegionOff)); err != nil {
		return fmt.Errorf("write game data: %w", err)
	}
	a.header.gameDataSize = uint64(len(raw))
	return writeHeader(a.file, a.header)
}

// ReadGameData deserializes the session from the archive.
func (a *Archive) ReadGameData() (*weave.GameData, error) {
	if a.header.gameDataSize == 0 {
		return nil, ErrNoGameData
	}
	raw := make([]byte, a.header.gameDataSize)
	if _, err := a.file.ReadAt(raw, int64(a.header.gameDataRegionOff)); err != nil {
		return nil, fmt.Errorf("read game data: %w", err)
	}
	var data weave.GameData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse game data: %w", err)
	}
	return &data, nil
}

// AppendImage stores image bytes at the end of the image chunks and returns
// the assigned id (the image's position in the index).
func (a *Archive) AppendImage(imageBytes []byte) (int, error) {
	offset := a.header.indexOffset
	length := uint64(len(imageBytes))

	// Drop the old index, append the new image, then grow the index back
	// behind it.
	if err := a.file.Truncate(int64(offset)); err != nil {
		return 0, fmt.Errorf("append image: %w", err)
	}
	if _, err := a.file.WriteAt(imageBytes, int64(offset)); err != nil {
		return 0, fmt.Errorf("append image: %w", err)
	}

	a.index = append(a.index, indexEntry{offset: offset, length: length})
	a.header.indexOffset += length

	raw := encodeIndex(a.index)
	if _, err := a.file.WriteAt(raw, int64(a.header.indexOffset)); err != nil {
		return 0, fmt.Errorf("write image index: %w", err)
	}
	a.header.indexSize = uint64(len(raw))
	if err := writeHeader(a.file, a.header); err != nil {
		return 0, err
	}

	return len(a.index) - 1, nil
}

// ReadImage returns the bytes of the image with the given id.
func (a *Archive) ReadImage(id int) ([]byte, error) {
	if id < 0 || id >= len(a.index) {
		return nil, fmt.Errorf("%w: %d", ErrImageNotFound, id)
	}
	entry := a.index[id]
	buf := make([]byte, entry.length)
	if _, err := a.file.ReadAt(buf, int64(entry.offset)); err != nil {
		return nil, fmt.Errorf("read image %d: %w", id, err)
	}
	return buf, nil
}

// ImageCount is the number of images in the archive.
func (a *Archive) ImageCount() int {
	return len(a.index)
}

// Info reports the header fields of an open archive.
type Info struct {
	Version              uint64
	GameDataRegionSize   uint64
	GameDataSize         uint64
	GameDataRegionOffset uint64
	IndexOffset          uint64
	IndexSize            uint64
}

// Info returns a copy of the archive's header fields.
func (a *Archive) Info() Info {
	return Info{
		Version:              a.header.version,
		GameDataRegionSize:   a.header.gameDataRegionSize,
		GameDataSize:         a.header.gameDataSize,
		GameDataRegionOffset: a.header.gameDataRegionOff,
		IndexOffset:          a.header.indexOffset,
		IndexSize:            a.header.indexSize,
	}
}

// ImageSpan reports where the image with the given id lives in the file.
func (a *Archive) ImageSpan(id int) (offset, length uint64, err error) {
	if id < 0 || id >= len(a.index) {
		return 0, 0, fmt.Errorf("%w: %d", ErrImageNotFound, id)
	}
	return a.index[id].offset, a.index[id].length, nil
}

// ClipAfterTurn rewinds the persisted session to completed turn k: every
// later turn and every summary born after k are dropped, and the game data
// region is rewritten. Images referenced only by dropped turns stay in the
// archive.
func (a *Archive) ClipAfterTurn(k int) error {
	data, err := a.ReadGameData()
	if err != nil {
		return err
	}
	if err := data.ClipAfterTurn(k); err != nil {
		return err
	}
	return a.WriteGameData(data)
}

func writeHeader(file *os.File, h header) error {
	buf := make([]byte, headerSize)
	copy(buf[:8], h.magic[:])
	le := binary.LittleEndian
	le.PutUint64(buf[8:], h.version)
	le.PutUint64(buf[16:], h.gameDataRegionSize)
	le.PutUint64(buf[24:], h.gameDataSize)
	le.PutUint64(buf[32:], h.gameDataRegionOff)
	le.PutUint64(buf[40:], h.indexOffset)
	le.PutUint64(buf[48:], h.indexSize)
	if _, err := file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func readHeader(file *os.File) (header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(file, 0, headerSize), buf); err != nil {
		return header{}, fmt.Errorf("read header: %w", err)
	}
	var h header
	copy(h.magic[:], buf[:8])
	if h.magic != magic {
		return header{}, ErrInvalidMagic
	}
	le := binary.LittleEndian
	h.version = le.Uint64(buf[8:])
	h.gameDataRegionSize = le.Uint64(buf[16:])
	h.gameDataSize = le.Uint64(buf[24:])
	h.gameDataRegionOff = le.Uint64(buf[32:])
	h.indexOffset = le.Uint64(buf[40:])
	h.indexSize = le.Uint64(buf[48:])
	return h, nil
}

func readIndex(file *os.File, h header) ([]indexEntry, error) {
	if h.indexSize == 0 {
		return nil, nil
	}
	if h.indexSize%indexEntrySize != 0 {
		return nil, fmt.Errorf("corrupt image index: %d bytes", h.indexSize)
	}
	buf := make([]byte, h.indexSize)
	if _, err := file.ReadAt(buf, int64(h.indexOffset)); err != nil {
		return nil, fmt.Errorf("read image index: %w", err)
	}
	le := binary.LittleEndian
	index := make([]indexEntry, h.indexSize/indexEntrySize)
	for i := range index {
		index[i].offset = le.Uint64(buf[i*indexEntrySize:])
		index[i].length = le.Uint64(buf[i*indexEntrySize+8:])
	}
	return index, nil
}

func encodeIndex(index []indexEntry) []byte {
	buf := make([]byte, len(index)*indexEntrySize)
	le := binary.LittleEndian
	for i, entry := range index {
		le.PutUint64(buf[i*indexEntrySize:], entry.offset)
		le.PutUint64(buf[i*indexEntrySize+8:], entry.length)
	}
	return buf
}
