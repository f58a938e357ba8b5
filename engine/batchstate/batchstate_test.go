package batchstate

import (
	"testing"

	"github.com/scrapbird/arrowfdw/engine/arrowio"
	"github.com/scrapbird/arrowfdw/engine/types"
)

func int32Field() types.BoundField {
	return types.BoundField{
		Options: types.ArrowTypeOptions{Tag: types.ArrowTagInt, ElementWidth: 4, IntBitWidth: 32, IntSigned: true},
	}
}

func utf8Field() types.BoundField {
	return types.BoundField{
		Options: types.ArrowTypeOptions{Tag: types.ArrowTagUtf8, ElementWidth: 4},
	}
}

func TestBuild_SingleInt32Column(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 10,
		Nodes:    []arrowio.FieldNode{{Length: 10, NullCount: 0}},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0},  // nullmap (no nulls, zero-length is allowed)
			{Offset: 0, Length: 40}, // values: 10 * int32
		},
	}
	bs, err := Build(0, 1000, 40, []types.BoundField{int32Field()}, msg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bs.RowCount != 10 || len(bs.Fields) != 1 {
		t.Fatalf("unexpected batch state: %+v", bs)
	}
	if bs.Fields[0].Values.Length != 40 {
		t.Fatalf("expected values length 40, got %d", bs.Fields[0].Values.Length)
	}
}

func TestBuild_Utf8ColumnConsumesThreeBuffers(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 3,
		Nodes:    []arrowio.FieldNode{{Length: 3, NullCount: 0}},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0},  // nullmap
			{Offset: 0, Length: 16}, // offsets: 4 int32 (rowCount+1)
			{Offset: 16, Length: 9}, // string bytes
		},
	}
	bs, err := Build(0, 0, 25, []types.BoundField{utf8Field()}, msg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bs.Fields[0].Extra.Length != 9 {
		t.Fatalf("expected extra buffer length 9, got %d", bs.Fields[0].Extra.Length)
	}
}

func TestBuild_StructConsumesOnlyNullmap(t *testing.T) {
	structField := types.BoundField{
		Options: types.ArrowTypeOptions{Tag: types.ArrowTagStruct},
		Children: []types.BoundField{
			int32Field(),
			int32Field(),
		},
	}
	msg := &arrowio.BatchMessage{
		RowCount: 2,
		Nodes: []arrowio.FieldNode{
			{Length: 2}, // struct
			{Length: 2}, // x
			{Length: 2}, // y
		},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0}, // struct nullmap
			{Offset: 0, Length: 0}, {Offset: 0, Length: 8}, // x: nullmap, values
			{Offset: 8, Length: 0}, {Offset: 8, Length: 8}, // y: nullmap, values
		},
	}
	bs, err := Build(0, 0, 16, []types.BoundField{structField}, msg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(bs.Fields[0].Children) != 2 {
		t.Fatalf("expected 2 struct children, got %d", len(bs.Fields[0].Children))
	}
}

func TestBuild_RejectsBufferExceedingBodyLength(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 10,
		Nodes:    []arrowio.FieldNode{{Length: 10}},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0},
			{Offset: 0, Length: 400}, // far exceeds a body of 40 bytes
		},
	}
	_, err := Build(0, 0, 40, []types.BoundField{int32Field()}, msg)
	if types.KindOf(err) != types.KindRecordBatchCorrupt {
		t.Fatalf("expected RecordBatchCorrupt, got %v", err)
	}
}

func TestBuild_RejectsUndersizedValuesBuffer(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 10,
		Nodes:    []arrowio.FieldNode{{Length: 10}},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0},
			{Offset: 0, Length: 8}, // needs 40 bytes for 10 int32s
		},
	}
	_, err := Build(0, 0, 40, []types.BoundField{int32Field()}, msg)
	if types.KindOf(err) != types.KindRecordBatchCorrupt {
		t.Fatalf("expected RecordBatchCorrupt, got %v", err)
	}
}

func TestBuild_RejectsUnalignedBufferOffset(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 10,
		Nodes:    []arrowio.FieldNode{{Length: 10}},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0},
			{Offset: 4, Length: 40}, // not a multiple of 8
		},
	}
	_, err := Build(0, 0, 44, []types.BoundField{int32Field()}, msg)
	if types.KindOf(err) != types.KindRecordBatchCorrupt {
		t.Fatalf("expected RecordBatchCorrupt for unaligned offset, got %v", err)
	}
}

func TestBuild_RejectsUndersizedNullmapWhenNullCountNonZero(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 10,
		Nodes:    []arrowio.FieldNode{{Length: 10, NullCount: 1}},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0}, // no room for any null bits, but null_count=1
			{Offset: 0, Length: 40},
		},
	}
	_, err := Build(0, 0, 40, []types.BoundField{int32Field()}, msg)
	if types.KindOf(err) != types.KindRecordBatchCorrupt {
		t.Fatalf("expected RecordBatchCorrupt for undersized nullmap with null_count>0, got %v", err)
	}
}

func TestBuild_AcceptsZeroLengthNullmapWhenNullCountZero(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 1000,
		Nodes:    []arrowio.FieldNode{{Length: 1000, NullCount: 0}},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0}, // no nulls, zero-length nullmap is fine regardless of row count
			{Offset: 0, Length: 4000},
		},
	}
	if _, err := Build(0, 0, 4000, []types.BoundField{int32Field()}, msg); err != nil {
		t.Fatalf("expected zero-length nullmap to be accepted when null_count=0, got %v", err)
	}
}

func TestBuild_RejectsUnexhaustedCursor(t *testing.T) {
	msg := &arrowio.BatchMessage{
		RowCount: 10,
		Nodes: []arrowio.FieldNode{
			{Length: 10}, {Length: 10}, // an extra node the schema doesn't consume
		},
		Buffers: []arrowio.BufferDesc{
			{Offset: 0, Length: 0}, {Offset: 0, Length: 40},
		},
	}
	_, err := Build(0, 0, 40, []types.BoundField{int32Field()}, msg)
	if types.KindOf(err) != types.KindRecordBatchCorrupt {
		t.Fatalf("expected RecordBatchCorrupt for unexhausted cursor, got %v", err)
	}
}
