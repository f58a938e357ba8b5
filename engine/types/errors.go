package types

import "fmt"

// Kind enumerates the error categories of spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindOptionError
	KindFileNotFound
	KindFileCorrupt
	KindUnsupportedFeature
	KindUnsupportedType
	KindUnsupportedNesting
	KindNoCompatibleComposite
	KindSchemaMismatch
	KindRecordBatchCorrupt
	KindCacheAllocFailed
	KindStatsParseError
)

func (k Kind) String() string {
	switch k {
	case KindOptionError:
		return "OptionError"
	case KindFileNotFound:
		return "FileNotFound"
	case KindFileCorrupt:
		return "FileCorrupt"
	case KindUnsupportedFeature:
		return "UnsupportedFeature"
	case KindUnsupportedType:
		return "UnsupportedType"
	case KindUnsupportedNesting:
		return "UnsupportedNesting"
	case KindNoCompatibleComposite:
		return "NoCompatibleComposite"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindRecordBatchCorrupt:
		return "RecordBatchCorrupt"
	case KindCacheAllocFailed:
		return "CacheAllocFailed"
	case KindStatsParseError:
		return "StatsParseError"
	default:
		return "Unknown"
	}
}

// EngineError is the error type every engine/* package returns for the
// kinds enumerated in spec.md §7. It wraps the underlying cause so
// errors.Is/errors.As keep working through the usual %w chain.
type EngineError struct {
	Kind Kind
	Op   string // component + operation, e.g. "arrowio.Open"
	Path string // file or option path this error concerns, if any
	Err  error
}

func (e *EngineError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &EngineError{Kind: k}) match on Kind alone, so callers can
// test "is this a FileCorrupt" without reconstructing the whole value.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an *EngineError for the given kind.
func NewError(kind Kind, op, path string, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the Kind the given *EngineError carries, or KindUnknown
// for any other error (including nil).
func KindOf(err error) Kind {
	if e, ok := err.(*EngineError); ok {
		return e.Kind
	}
	return KindUnknown
}
