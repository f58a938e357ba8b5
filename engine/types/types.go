// Package types holds the data model shared across engine/arrowio,
// engine/typebind, engine/statsbind, engine/batchstate, engine/metacache,
// engine/fileset, and engine/scan. Centralizing these structs here avoids
// import cycles between the cache, binder, and scan packages.
package types

import "time"

// HostTypeID identifies a host (database) column type. The concrete ids
// are assigned by the catalog binder, not this package; zero is reserved
// for "unresolved".
type HostTypeID int32

// ArrowTag is the tag of an Arrow field's logical type.
type ArrowTag int32

const (
	ArrowTagUnknown ArrowTag = iota
	ArrowTagInt
	ArrowTagFloatingPoint
	ArrowTagBool
	ArrowTagDecimal
	ArrowTagDate
	ArrowTagTime
	ArrowTagTimestamp
	ArrowTagInterval
	ArrowTagFixedSizeBinary
	ArrowTagUtf8
	ArrowTagBinary
	ArrowTagLargeUtf8
	ArrowTagLargeBinary
	ArrowTagList
	ArrowTagLargeList
	ArrowTagStruct
)

// DateUnit, TimeUnit, TimestampUnit and IntervalUnit mirror the Arrow IPC
// unit enums needed by ArrowTypeOptions.
type DateUnit int32

const (
	DateUnitDay DateUnit = iota
	DateUnitMilliSecond
)

type TimeUnit int32

const (
	TimeUnitSecond TimeUnit = iota
	TimeUnitMilli
	TimeUnitMicro
	TimeUnitNano
)

type IntervalUnit int32

const (
	IntervalUnitYearMonth IntervalUnit = iota
	IntervalUnitDayTime
)

// ArrowTypeOptions is a tagged record describing one Arrow field's wire
// layout, per spec.md §3. ElementWidth is negative to mean "values is a
// bitmap" (Arrow Bool).
type ArrowTypeOptions struct {
	Tag          ArrowTag
	ElementWidth int32 // bytes per element, or -1 for a bitmap

	// Int
	IntBitWidth  int8
	IntSigned    bool
	// FloatingPoint
	FloatPrecision int8 // 2 (half), 4 (single), 8 (double)
	// Decimal
	DecimalPrecision int32
	DecimalScale     int32
	DecimalBitWidth  int32
	// Date / Time / Timestamp / Interval
	DateUnit      DateUnit
	TimeUnit      TimeUnit
	TimestampUnit TimeUnit
	TimestampTZ   bool
	IntervalUnit  IntervalUnit
	// FixedSizeBinary
	FixedByteWidth int32
}

// HasExtraBuffer reports whether a field of this type consumes a third
// (variable-length payload) buffer per batch, per the Type Binder table in
// spec.md §4.2.
func (o ArrowTypeOptions) HasExtraBuffer() bool {
	switch o.Tag {
	case ArrowTagUtf8, ArrowTagBinary, ArrowTagLargeUtf8, ArrowTagLargeBinary:
		return true
	default:
		return false
	}
}

// BoundField is the output of the Type Binder for one Arrow field:
// (host_type_id, host_type_modifier, ArrowTypeOptions).
type BoundField struct {
	HostType     HostTypeID
	HostModifier int32
	Options      ArrowTypeOptions
	Children     []BoundField // List element type, or Struct attributes
}

// BufferRegion records the byte offset/length of one buffer within a
// record batch body, relative to the start of the body.
type BufferRegion struct {
	Offset int64
	Length int64
}

// RecordBatchFieldState is per-column layout and statistics for one batch,
// per spec.md §3.
type RecordBatchFieldState struct {
	HostType     HostTypeID
	HostModifier int32
	Options      ArrowTypeOptions

	RowCount  int64
	NullCount int64

	Nullmap BufferRegion
	Values  BufferRegion
	Extra   BufferRegion // zero value when the type has no extra buffer

	StatMin    [16]byte // signed 128-bit, little-endian
	StatMax    [16]byte
	StatIsNull bool

	Children []RecordBatchFieldState
}

// RecordBatchState is one record batch inside a file, per spec.md §3.
// Immutable once built.
type RecordBatchState struct {
	Index      int
	BodyOffset int64
	BodyLength int64
	RowCount   int64
	Fields     []RecordBatchFieldState
}

// FileStat is a snapshot of the identity and freshness of a file on disk.
type FileStat struct {
	Device uint64
	Inode  uint64
	Size   int64
	Mtime  time.Time
}

// ArrowFileState is an opened file identity, per spec.md §3. Never mutated
// after construction.
type ArrowFileState struct {
	Filename string
	Stat     FileStat
	Batches  []RecordBatchState
	Schema   []BoundField
}

// TotalRows sums the row counts of every batch in the file.
func (s *ArrowFileState) TotalRows() int64 {
	var n int64
	for _, b := range s.Batches {
		n += b.RowCount
	}
	return n
}

// ArrowStatsBinary is the file-level transpose of per-field min/max, built
// once per file open and applied into RecordBatchFieldState during
// construction, per spec.md §3.
type ArrowStatsBinary struct {
	// FieldPath identifies the field these slots belong to: the top-level
	// column index, followed by one child index per nested Struct/List level.
	FieldPath []int
	MinValues [][16]byte // one slot per batch
	MaxValues [][16]byte
	IsNull    []bool
}
