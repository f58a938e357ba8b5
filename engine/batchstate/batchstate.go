// Package batchstate implements the RecordBatch State Builder of
// spec.md §4.4: it walks a bound schema and a parsed BatchMessage's
// FieldNode/Buffer cursors in lockstep, pre-order, producing the
// nullmap/values/extra buffer offsets and lengths each field needs for a
// zero-copy read later on. The walk shape mirrors
// chenxi8611-arrow/go/arrow/ipc/file_reader.go's loadArray, which
// consumes the same node/buffer cursors one field at a time, recursing
// into children before advancing to the next sibling.
package batchstate

import (
	"fmt"

	"github.com/scrapbird/arrowfdw/engine/arrowio"
	"github.com/scrapbird/arrowfdw/engine/types"
)

// cursor tracks the position of the next unconsumed FieldNode and Buffer
// in a BatchMessage as the schema is walked pre-order.
type cursor struct {
	nodes      []arrowio.FieldNode
	buffers    []arrowio.BufferDesc
	nodeIdx    int
	bufIdx     int
	bodyLength int64
}

// Build walks schema (the Type Binder's output for one file) against
// msg (one parsed record batch), producing the per-field layout state for
// that batch. index is the batch's position within the file, used only to
// stamp RecordBatchState.Index.
func Build(index int, bodyOffset int64, bodyLength int64, schema []types.BoundField, msg *arrowio.BatchMessage) (types.RecordBatchState, error) {
	cur := &cursor{nodes: msg.Nodes, buffers: msg.Buffers, bodyLength: bodyLength}

	fields := make([]types.RecordBatchFieldState, len(schema))
	for i, bf := range schema {
		fs, err := walkField(cur, bf)
		if err != nil {
			return types.RecordBatchState{}, err
		}
		fields[i] = fs
	}

	if cur.nodeIdx != len(cur.nodes) || cur.bufIdx != len(cur.buffers) {
		return types.RecordBatchState{}, types.NewError(types.KindRecordBatchCorrupt, "batchstate.Build", "",
			fmt.Errorf("cursor not exhausted: consumed %d/%d nodes, %d/%d buffers",
				cur.nodeIdx, len(cur.nodes), cur.bufIdx, len(cur.buffers)))
	}

	return types.RecordBatchState{
		Index:      index,
		BodyOffset: bodyOffset,
		BodyLength: bodyLength,
		RowCount:   msg.RowCount,
		Fields:     fields,
	}, nil
}

// walkField consumes exactly one FieldNode and 1, 2, or 3 Buffers
// (nullmap, values, [extra]) for bf, per the buffer-count contract the
// Type Binder attaches via ArrowTypeOptions.HasExtraBuffer, then recurses
// into List/Struct children.
func walkField(cur *cursor, bf types.BoundField) (types.RecordBatchFieldState, error) {
	node, err := nextNode(cur)
	if err != nil {
		return types.RecordBatchFieldState{}, err
	}

	nullmap, err := nextBuffer(cur, "nullmap")
	if err != nil {
		return types.RecordBatchFieldState{}, err
	}
	if err := validateNullmap(nullmap, node.Length, node.NullCount); err != nil {
		return types.RecordBatchFieldState{}, err
	}

	// Struct carries only the validity buffer; its attributes' own data
	// lives in their own node/buffer slots, consumed when children are
	// walked below.
	var values, extra types.BufferRegion
	if bf.Options.Tag != types.ArrowTagStruct {
		values, err = nextBuffer(cur, "values")
		if err != nil {
			return types.RecordBatchFieldState{}, err
		}
		if err := validateValues(values, node.Length, bf.Options); err != nil {
			return types.RecordBatchFieldState{}, err
		}

		if bf.Options.HasExtraBuffer() {
			extra, err = nextBuffer(cur, "extra")
			if err != nil {
				return types.RecordBatchFieldState{}, err
			}
		}
	}

	var children []types.RecordBatchFieldState
	if len(bf.Children) > 0 {
		children = make([]types.RecordBatchFieldState, len(bf.Children))
		switch bf.Options.Tag {
		case types.ArrowTagList, types.ArrowTagLargeList:
			// A List's single child array has the same length as the sum
			// of its parent's offsets, which this layer does not decode;
			// the child consumes whatever node/buffer trio its own tag
			// requires, same as a top-level field.
			cs, err := walkField(cur, bf.Children[0])
			if err != nil {
				return types.RecordBatchFieldState{}, err
			}
			children[0] = cs
		case types.ArrowTagStruct:
			for i, cb := range bf.Children {
				cs, err := walkField(cur, cb)
				if err != nil {
					return types.RecordBatchFieldState{}, err
				}
				children[i] = cs
			}
		}
	}

	return types.RecordBatchFieldState{
		HostType:     bf.HostType,
		HostModifier: bf.HostModifier,
		Options:      bf.Options,
		RowCount:     node.Length,
		NullCount:    node.NullCount,
		Nullmap:      nullmap,
		Values:       values,
		Extra:        extra,
		Children:     children,
	}, nil
}

func nextNode(cur *cursor) (arrowio.FieldNode, error) {
	if cur.nodeIdx >= len(cur.nodes) {
		return arrowio.FieldNode{}, types.NewError(types.KindRecordBatchCorrupt, "batchstate.nextNode", "",
			fmt.Errorf("field node cursor exhausted at index %d", cur.nodeIdx))
	}
	n := cur.nodes[cur.nodeIdx]
	cur.nodeIdx++
	return n, nil
}

// bufferAlignment is the buffer alignment boundary of spec.md §4.4
// ("maximum primitive alignment"): every nullmap/values/extra offset must
// be a multiple of this many bytes.
const bufferAlignment = 8

func nextBuffer(cur *cursor, what string) (types.BufferRegion, error) {
	if cur.bufIdx >= len(cur.buffers) {
		return types.BufferRegion{}, types.NewError(types.KindRecordBatchCorrupt, "batchstate.nextBuffer", "",
			fmt.Errorf("%s buffer cursor exhausted at index %d", what, cur.bufIdx))
	}
	b := cur.buffers[cur.bufIdx]
	cur.bufIdx++

	region := types.BufferRegion{Offset: b.Offset, Length: b.Length}
	if region.Offset < 0 || region.Length < 0 || region.Offset+region.Length > cur.bodyLength {
		return types.BufferRegion{}, types.NewError(types.KindRecordBatchCorrupt, "batchstate.nextBuffer", "",
			fmt.Errorf("%s buffer [%d,+%d) exceeds body length %d", what, region.Offset, region.Length, cur.bodyLength))
	}
	if region.Offset%bufferAlignment != 0 {
		return types.BufferRegion{}, types.NewError(types.KindRecordBatchCorrupt, "batchstate.nextBuffer", "",
			fmt.Errorf("%s buffer offset %d is not aligned to %d bytes", what, region.Offset, bufferAlignment))
	}
	return region, nil
}

// validateNullmap checks that, when nullCount is non-zero, the nullmap
// buffer is large enough to hold rowCount bits, per spec.md §4.4. A
// nullmap is only required to carry data when there are actual nulls; a
// node with nullCount == 0 may legitimately supply a zero-length buffer
// regardless of rowCount.
func validateNullmap(region types.BufferRegion, rowCount, nullCount int64) error {
	if nullCount == 0 {
		return nil
	}
	needed := (rowCount + 7) / 8
	if region.Length < needed {
		return types.NewError(types.KindRecordBatchCorrupt, "batchstate.validateNullmap", "",
			fmt.Errorf("nullmap buffer too small: have %d bytes, need %d for %d rows (null_count=%d)", region.Length, needed, rowCount, nullCount))
	}
	return nil
}

// validateValues checks the values buffer is large enough for rowCount
// elements of the field's declared width, per spec.md §4.4. A negative
// ElementWidth means the values buffer is itself a bitmap (Arrow Bool).
func validateValues(region types.BufferRegion, rowCount int64, opts types.ArrowTypeOptions) error {
	var needed int64
	switch {
	case opts.ElementWidth < 0:
		needed = (rowCount + 7) / 8
	case opts.HasExtraBuffer(), opts.Tag == types.ArrowTagList, opts.Tag == types.ArrowTagLargeList:
		// Utf8/Binary/List/LargeList values buffer holds (rowCount+1)
		// int32 or int64 offsets, not rowCount elements.
		needed = (rowCount + 1) * int64(opts.ElementWidth)
	default:
		needed = rowCount * int64(opts.ElementWidth)
	}
	if region.Length < needed {
		return types.NewError(types.KindRecordBatchCorrupt, "batchstate.validateValues", "",
			fmt.Errorf("values buffer too small: have %d bytes, need %d for %d rows", region.Length, needed, rowCount))
	}
	return nil
}
