package arrowio

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/scrapbird/arrowfdw/engine/types"
)

// FieldNode is one RecordBatch.nodes entry: the row/null count of one
// (possibly nested) field within a batch.
type FieldNode struct {
	Length    int64
	NullCount int64
}

// BufferDesc is one RecordBatch.buffers entry: the offset/length of one
// buffer within the batch body, relative to the body's start.
type BufferDesc struct {
	Offset int64
	Length int64
}

// BatchMessage is the parsed Message+RecordBatch header for one Block.
type BatchMessage struct {
	RowCount int64
	Nodes    []FieldNode
	Buffers  []BufferDesc
}

// ParseBatchMessage decodes the Message flatbuffer stored in msgBuf (the
// metadata bytes of one Block, i.e. block.MetaDataLength bytes starting
// at block.Offset, with the 8-byte continuation-marker+length prefix
// already stripped by the caller). Dictionary batches and any batch
// advertising body compression fail with UnsupportedFeature, per
// spec.md §4.1.
func ParseBatchMessage(msgBuf []byte) (*BatchMessage, error) {
	if len(msgBuf) < 4 {
		return nil, fmt.Errorf("message too short: %d bytes", len(msgBuf))
	}
	rootPos := flatbuffers.GetUOffsetT(msgBuf)
	root := rootTable(msgBuf, rootPos)

	headerType := root.byteAt(6, messageHeaderNone) // Message.header_type
	if headerType == messageHeaderDictionaryBatch {
		return nil, types.NewError(types.KindUnsupportedFeature, "arrowio.ParseBatchMessage", "",
			fmt.Errorf("dictionary batches are not supported"))
	}
	if headerType != messageHeaderRecordBatch {
		return nil, fmt.Errorf("expected RecordBatch message, got header_type %d", headerType)
	}

	rb, ok := root.tableAt(8) // Message.header
	if !ok {
		return nil, fmt.Errorf("message has no RecordBatch header")
	}

	if _, hasCompression := rb.tableAt(10); hasCompression { // RecordBatch.compression
		return nil, types.NewError(types.KindUnsupportedFeature, "arrowio.ParseBatchMessage", "",
			fmt.Errorf("compressed record batches are not supported"))
	}

	rowCount := rb.int64At(4, 0) // RecordBatch.length

	nNodes := rb.vectorLen(6) // RecordBatch.nodes
	nodes := make([]FieldNode, nNodes)
	for i := 0; i < nNodes; i++ {
		pos := rb.vectorElemStructPos(6, i, fieldNodeStructSize)
		buf := rb.t.Bytes
		nodes[i] = FieldNode{
			Length:    flatbuffers.GetInt64(buf[pos:]),
			NullCount: flatbuffers.GetInt64(buf[pos+8:]),
		}
	}

	nBuffers := rb.vectorLen(8) // RecordBatch.buffers
	buffers := make([]BufferDesc, nBuffers)
	for i := 0; i < nBuffers; i++ {
		pos := rb.vectorElemStructPos(8, i, bufferStructSize)
		buf := rb.t.Bytes
		buffers[i] = BufferDesc{
			Offset: flatbuffers.GetInt64(buf[pos:]),
			Length: flatbuffers.GetInt64(buf[pos+8:]),
		}
	}

	return &BatchMessage{RowCount: rowCount, Nodes: nodes, Buffers: buffers}, nil
}
