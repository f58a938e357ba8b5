package arrowio

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// This file implements just enough of the Arrow IPC flatbuffers schema
// (format/Schema.fbs, format/Message.fbs, format/File.fbs) to read a
// Footer, its Schema, and the per-batch Message/RecordBatch structures,
// using the flatbuffers runtime's raw Table/struct accessors directly
// rather than pre-generated bindings, the same way
// chenxi8611-arrow/go/arrow/ipc/file_reader.go walks the same structures.
//
// Field slot numbers below follow each table's declaration order in the
// Arrow IDL: slot = 4 + 2*fieldIndex (vtable entries are 2 bytes wide,
// offset by the vtable's 4-byte header: its own size and the table's
// inline size, one uint16 each).

// table helper wraps a flatbuffers.Table rooted at a known position.
type table struct {
	t flatbuffers.Table
}

func rootTable(buf []byte, pos flatbuffers.UOffsetT) table {
	return table{t: flatbuffers.Table{Bytes: buf, Pos: pos}}
}

// tableAt follows an offset-to-table field: the stored value is a
// UOffsetT relative to itself, pointing at a nested table.
func (tb table) tableAt(slot flatbuffers.VOffsetT) (table, bool) {
	o := tb.t.Offset(slot)
	if o == 0 {
		return table{}, false
	}
	pos := tb.t.Indirect(tb.t.Pos + flatbuffers.UOffsetT(o))
	return table{t: flatbuffers.Table{Bytes: tb.t.Bytes, Pos: pos}}, true
}

func (tb table) stringAt(slot flatbuffers.VOffsetT) (string, bool) {
	o := tb.t.Offset(slot)
	if o == 0 {
		return "", false
	}
	return tb.t.String(tb.t.Pos + flatbuffers.UOffsetT(o)), true
}

func (tb table) byteAt(slot flatbuffers.VOffsetT, def byte) byte {
	o := tb.t.Offset(slot)
	if o == 0 {
		return def
	}
	return tb.t.GetByte(tb.t.Pos + flatbuffers.UOffsetT(o))
}

func (tb table) boolAt(slot flatbuffers.VOffsetT, def bool) bool {
	o := tb.t.Offset(slot)
	if o == 0 {
		return def
	}
	return tb.t.GetBool(tb.t.Pos + flatbuffers.UOffsetT(o))
}

func (tb table) int16At(slot flatbuffers.VOffsetT, def int16) int16 {
	o := tb.t.Offset(slot)
	if o == 0 {
		return def
	}
	return tb.t.GetInt16(tb.t.Pos + flatbuffers.UOffsetT(o))
}

func (tb table) int32At(slot flatbuffers.VOffsetT, def int32) int32 {
	o := tb.t.Offset(slot)
	if o == 0 {
		return def
	}
	return tb.t.GetInt32(tb.t.Pos + flatbuffers.UOffsetT(o))
}

func (tb table) int64At(slot flatbuffers.VOffsetT, def int64) int64 {
	o := tb.t.Offset(slot)
	if o == 0 {
		return def
	}
	return tb.t.GetInt64(tb.t.Pos + flatbuffers.UOffsetT(o))
}

// vectorLen returns the length of a [T] vector field, or 0 if absent.
func (tb table) vectorLen(slot flatbuffers.VOffsetT) int {
	o := tb.t.Offset(slot)
	if o == 0 {
		return 0
	}
	return tb.t.VectorLen(tb.t.Pos + flatbuffers.UOffsetT(o))
}

// vectorElemTablePos returns the start-of-table position of the i-th
// element of a [T] (table) vector field.
func (tb table) vectorElemTablePos(slot flatbuffers.VOffsetT, i int, elemSize flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	o := tb.t.Offset(slot)
	base := tb.t.Vector(tb.t.Pos + flatbuffers.UOffsetT(o))
	elemOff := base + flatbuffers.UOffsetT(i)*elemSize
	return tb.t.Indirect(elemOff)
}

// vectorElemStructPos returns the byte position of the i-th element of a
// [T] (fixed-size struct) vector field, which is inlined rather than
// indirected.
func (tb table) vectorElemStructPos(slot flatbuffers.VOffsetT, i int, structSize flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	o := tb.t.Offset(slot)
	base := tb.t.Vector(tb.t.Pos + flatbuffers.UOffsetT(o))
	return base + flatbuffers.UOffsetT(i)*structSize
}
