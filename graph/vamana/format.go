package vamana

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// File format constants.
const (
	// formatMagic identifies vamana graph files ("LNVG").
	formatMagic uint32 = 0x47564E4C

	// formatVersion is the current format version.
	formatVersion uint32 = 1

	// headerSize is the fixed size of the file header in bytes.
	headerSize = 64
)

// fileHeader is the fixed-size header at the start of a graph file.
// Node records follow immediately: each record is a degree uint32 plus
// R neighbor slots, so a node's adjacency is one O(1) offset away.
type fileHeader struct {
	Magic    uint32
	Version  uint32
	Metric   uint32
	Dim      uint32
	Count    uint64
	Entry    uint64
	R        uint32
	Alpha    uint32 // pruning factor * 1000
	Checksum uint32 // CRC32 over the preceding fields
}

const checksummedBytes = 40

func (h *fileHeader) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.Metric)
	binary.LittleEndian.PutUint32(buf[12:], h.Dim)
	binary.LittleEndian.PutUint64(buf[16:], h.Count)
	binary.LittleEndian.PutUint64(buf[24:], h.Entry)
	binary.LittleEndian.PutUint32(buf[32:], h.R)
	binary.LittleEndian.PutUint32(buf[36:], h.Alpha)

	h.Checksum = crc32.ChecksumIEEE(buf[:checksummedBytes])
	binary.LittleEndian.PutUint32(buf[40:], h.Checksum)
	return buf
}

func (h *fileHeader) unmarshal(buf []byte) error {
	if len(buf) < headerSize {
		return errors.New("vamana: truncated header")
	}

	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	h.Metric = binary.LittleEndian.Uint32(buf[8:])
	h.Dim = binary.LittleEndian.Uint32(buf[12:])
	h.Count = binary.LittleEndian.Uint64(buf[16:])
	h.Entry = binary.LittleEndian.Uint64(buf[24:])
	h.R = binary.LittleEndian.Uint32(buf[32:])
	h.Alpha = binary.LittleEndian.Uint32(buf[36:])
	h.Checksum = binary.LittleEndian.Uint32(buf[40:])
	return nil
}

func (h *fileHeader) validate() error {
	if h.Magic != formatMagic {
		return fmt.Errorf("vamana: invalid magic 0x%08X", h.Magic)
	}
	if h.Version != formatVersion {
		return fmt.Errorf("vamana: unsupported version %d", h.Version)
	}
	if h.Dim == 0 {
		return errors.New("vamana: dimension cannot be zero")
	}
	if h.R == 0 {
		return errors.New("vamana: R cannot be zero")
	}

	buf := make([]byte, checksummedBytes)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.Metric)
	binary.LittleEndian.PutUint32(buf[12:], h.Dim)
	binary.LittleEndian.PutUint64(buf[16:], h.Count)
	binary.LittleEndian.PutUint64(buf[24:], h.Entry)
	binary.LittleEndian.PutUint32(buf[32:], h.R)
	binary.LittleEndian.PutUint32(buf[36:], h.Alpha)
	if computed := crc32.ChecksumIEEE(buf); computed != h.Checksum {
		return fmt.Errorf("vamana: header checksum mismatch: 0x%08X (expected 0x%08X)", computed, h.Checksum)
	}
	return nil
}

func (h *fileHeader) recordSize() int {
	return 4 + int(h.R)*4
}

func writeRecord(w io.Writer, neighbors []uint32, r int) error {
	record := make([]byte, 4+r*4)
	binary.LittleEndian.PutUint32(record[0:], uint32(len(neighbors)))
	for i, n := range neighbors {
		binary.LittleEndian.PutUint32(record[4+i*4:], n)
	}
	_, err := w.Write(record)
	return err
}
