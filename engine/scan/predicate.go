// Package scan implements the Scan Driver of spec.md §4.7: the
// orchestration layer tying the File-Set Resolver, Arrow File Reader,
// Type Binder, Statistics Binder, RecordBatch State Builder, and
// Metadata Cache together into plan/open/next_batch.
package scan

import "github.com/scrapbird/arrowfdw/engine/types"

// Tri is the three-valued predicate-evaluation result spec.md §6
// requires for statistics-based pruning: True (every row in range
// satisfies the predicate), False (no row can), Maybe (can't tell from
// the range alone, the batch must be read).
type Tri int

const (
	TriFalse Tri = iota
	TriMaybe
	TriTrue
)

// FieldRange is the (min, max, isnull) triple for one field within one
// batch, the shape a Predicate's Evaluable callback consults.
type FieldRange struct {
	Min, Max [16]byte
	IsNull   bool
	HasStats bool
}

// RangeLookup resolves the FieldRange for a field path (the same
// index-path convention types.ArrowStatsBinary.FieldPath uses) within
// the batch currently being considered for pruning.
type RangeLookup func(fieldPath []int) (FieldRange, bool)

// Predicate is the opaque expression-subsystem contract of spec.md §6:
// Evaluable is used for batch pruning (the only operation the Scan
// Driver calls); Evaluate is a residual row-level check the driver never
// invokes itself but exposes for callers who read rows out of a batch.
// Generalizes a boolean expression-tree Eval shape to the three-valued
// lattice pruning requires.
type Predicate interface {
	Evaluable(lookup RangeLookup) Tri
	Evaluate(row Row) bool
}

// Row is left abstract: the Scan Driver never interprets row contents,
// only batch-level buffers, so residual evaluation is entirely the
// caller's concern.
type Row interface{}

// ShouldSkip reports whether batch can be skipped entirely for pred,
// per spec.md §5's "statistics skip is conservative" guarantee: only a
// definite TriFalse skips; TriMaybe or TriTrue reads the batch.
func ShouldSkip(pred Predicate, batch types.RecordBatchState) bool {
	if pred == nil {
		return false
	}
	lookup := func(path []int) (FieldRange, bool) {
		f, ok := fieldAt(batch.Fields, path)
		if !ok || f.StatIsNull {
			return FieldRange{}, false
		}
		return FieldRange{Min: f.StatMin, Max: f.StatMax, HasStats: true}, true
	}
	return pred.Evaluable(lookup) == TriFalse
}

// fieldAt walks a field-path (a sequence of child indices) down into
// fields, the inverse of how Build/Apply in engine/statsbind address a
// nested field.
func fieldAt(fields []types.RecordBatchFieldState, path []int) (types.RecordBatchFieldState, bool) {
	if len(path) == 0 {
		return types.RecordBatchFieldState{}, false
	}
	cur := fields
	var f types.RecordBatchFieldState
	for i, idx := range path {
		if idx < 0 || idx >= len(cur) {
			return types.RecordBatchFieldState{}, false
		}
		f = cur[idx]
		if i < len(path)-1 {
			cur = f.Children
		}
	}
	return f, true
}
