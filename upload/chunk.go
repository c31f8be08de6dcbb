package upload

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Chunk describes one byte range of a multipart upload. CRC32 is empty
// until the range has been read.
type Chunk struct {
	PartNumber int
	Offset     int64
	Length     int64
	CRC32      string
}

// ChunkResult records the outcome of one chunk transfer.
type ChunkResult struct {
	Chunk      Chunk
	StatusCode int
	Err        error
}

// OK reports whether the storage node accepted the chunk.
func (r ChunkResult) OK() bool {
	return r.Err == nil
}

// PlanChunks splits size bytes into chunkSize ranges numbered from 1. The
// last range may be shorter. Nothing is read.
func PlanChunks(size, chunkSize int64) []Chunk {
	if size <= 0 || chunkSize <= 0 {
		return nil
	}

	n := (size + chunkSize - 1) / chunkSize
	chunks := make([]Chunk, 0, n)
	for i := int64(0); i < n; i++ {
		offset := i * chunkSize
		chunks = append(chunks, Chunk{
			PartNumber: int(i) + 1,
			Offset:     offset,
			Length:     min(chunkSize, size-offset),
		})
	}
	return chunks
}

// ReadChunk reads exactly the range of c from r and fills in its checksum.
// Reads are addressed by offset so chunks can be read concurrently.
func ReadChunk(r io.ReaderAt, c Chunk) ([]byte, Chunk, error) {
	buf := make([]byte, c.Length)
	n, err := r.ReadAt(buf, c.Offset)
	if n == len(buf) {
		err = nil
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, c, fmt.Errorf("read part %d at offset %d: %w", c.PartNumber, c.Offset, err)
	}

	c.CRC32 = CRC32Hex(buf)
	return buf, c, nil
}

// CRC32Hex returns the IEEE CRC32 of data as eight lower-case hex digits.
func CRC32Hex(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// Manifest renders chunks as "partNumber:crc32" pairs joined by commas,
// sorted by part number whatever order they finished in.
func Manifest(chunks []Chunk) string {
	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PartNumber < sorted[j].PartNumber
	})

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		parts = append(parts, strconv.Itoa(c.PartNumber)+":"+c.CRC32)
	}
	return strings.Join(parts, ",")
}
