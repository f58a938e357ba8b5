// Package arrowio implements the Arrow File Reader component of spec.md
// §4.1: it memory-maps an Arrow IPC file, parses the footer/schema and the
// per-batch Message headers, and hands the result to engine/typebind,
// engine/statsbind, and engine/batchstate. It never reads batch bodies
// eagerly; buffer descriptors carry file offsets, not loaded bytes.
package arrowio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/scrapbird/arrowfdw/engine/types"
)

var arrowMagic = []byte("ARROW1\x00\x00")

const (
	continuationMarker = 8 // 4-byte 0xFFFFFFFF marker + 4-byte length prefix before each Message
)

// MappedFile is the memory-mapped byte view of an open Arrow file. It is
// produced by Open and consumed by ParseFile; tests can build one directly
// over an in-memory buffer via OpenBytes without touching the filesystem.
type MappedFile struct {
	Filename string
	Stat     types.FileStat
	data     []byte
	unmap    func() error
}

// Bytes returns the mapped file contents. The returned slice is valid
// until Close is called.
func (m *MappedFile) Bytes() []byte { return m.data }

// Close unmaps the file (a no-op for OpenBytes-backed instances).
func (m *MappedFile) Close() error {
	if m.unmap == nil {
		return nil
	}
	return m.unmap()
}

// Open memory-maps path read-only and snapshots its identity (device,
// inode, size, mtime) for the Metadata Cache's staleness check.
func Open(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewError(types.KindFileNotFound, "arrowio.Open", path, err)
		}
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.Open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.Open", path, err)
	}
	stat := statFromFileInfo(info)

	if info.Size() == 0 {
		return &MappedFile{Filename: path, Stat: stat, data: nil}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.Open", path, fmt.Errorf("mmap: %w", err))
	}

	return &MappedFile{
		Filename: path,
		Stat:     stat,
		data:     data,
		unmap:    func() error { return unix.Munmap(data) },
	}, nil
}

// OpenBytes wraps an in-memory buffer as a MappedFile, for tests and for
// embedders that already hold the file contents.
func OpenBytes(filename string, data []byte, stat types.FileStat) *MappedFile {
	return &MappedFile{Filename: filename, Stat: stat, data: data}
}

// ParsedBatch is one record batch's raw, file-relative descriptors: the
// body byte range plus the field-node/buffer cursors engine/batchstate
// walks.
type ParsedBatch struct {
	Index      int
	BodyOffset int64
	BodyLength int64
	Message    *BatchMessage
}

// ParsedFile is the output of ParseFile: the bound-ready schema plus every
// record batch's raw descriptors. No batch body bytes are copied out;
// callers slice MappedFile.Bytes() directly at scan time.
type ParsedFile struct {
	Schema  []FieldDesc
	Batches []ParsedBatch
}

// ParseFile parses the footer and every record-batch Message of an opened
// Arrow file. Fails with UnsupportedFeature if any batch is a dictionary
// batch or advertises compression, and with FileCorrupt on structural
// inconsistency, per spec.md §4.1.
func ParseFile(m *MappedFile) (*ParsedFile, error) {
	data := m.data
	if len(data) == 0 {
		return &ParsedFile{}, nil
	}
	if len(data) < 2*len(arrowMagic)+4 {
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", m.Filename,
			fmt.Errorf("file too short to contain Arrow IPC magic and footer"))
	}
	if !bytes.Equal(data[:len(arrowMagic)], arrowMagic) {
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", m.Filename,
			fmt.Errorf("missing leading ARROW1 magic"))
	}
	if !bytes.Equal(data[len(data)-len(arrowMagic):], arrowMagic) {
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", m.Filename,
			fmt.Errorf("missing trailing ARROW1 magic"))
	}

	footerLenPos := len(data) - len(arrowMagic) - 4
	footerLen := int32(binary.LittleEndian.Uint32(data[footerLenPos : footerLenPos+4]))
	if footerLen <= 0 || int64(footerLen) > int64(footerLenPos) {
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", m.Filename,
			fmt.Errorf("invalid footer length %d", footerLen))
	}
	footerStart := footerLenPos - int(footerLen)
	footerBuf := data[footerStart:footerLenPos]

	footer, err := ParseFooter(footerBuf)
	if err != nil {
		if ee, ok := err.(*types.EngineError); ok {
			return nil, types.NewError(ee.Kind, ee.Op, m.Filename, fmt.Errorf("field %q: %w", ee.Path, ee.Err))
		}
		return nil, types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", m.Filename, err)
	}
	if len(footer.Dictionaries) > 0 {
		return nil, types.NewError(types.KindUnsupportedFeature, "arrowio.ParseFile", m.Filename,
			fmt.Errorf("dictionary-encoded batches are not supported"))
	}

	batches := make([]ParsedBatch, len(footer.RecordBatches))
	for i, blk := range footer.RecordBatches {
		msgStart := blk.Offset + continuationMarker
		msgEnd := blk.Offset + int64(blk.MetaDataLength)
		if msgStart < 0 || msgEnd > int64(len(data)) || msgStart > msgEnd {
			return nil, types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", m.Filename,
				fmt.Errorf("record batch %d: metadata block out of range", i))
		}
		msg, err := ParseBatchMessage(data[msgStart:msgEnd])
		if err != nil {
			return nil, wrapFileError(err, m.Filename, i)
		}

		bodyOffset := blk.Offset + int64(blk.MetaDataLength)
		if bodyOffset+blk.BodyLength > int64(len(data)) {
			return nil, types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", m.Filename,
				fmt.Errorf("record batch %d: body out of range", i))
		}

		batches[i] = ParsedBatch{
			Index:      i,
			BodyOffset: bodyOffset,
			BodyLength: blk.BodyLength,
			Message:    msg,
		}
	}

	return &ParsedFile{Schema: footer.Schema, Batches: batches}, nil
}

func wrapFileError(err error, filename string, batchIdx int) error {
	if ee, ok := err.(*types.EngineError); ok {
		return types.NewError(ee.Kind, ee.Op, filename, fmt.Errorf("record batch %d: %w", batchIdx, ee.Err))
	}
	return types.NewError(types.KindFileCorrupt, "arrowio.ParseFile", filename, err)
}
