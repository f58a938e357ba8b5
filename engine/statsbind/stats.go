// Package statsbind implements the Statistics Binder of spec.md §4.3: it
// parses per-field custom-metadata min_values/max_values hints into a
// per-batch (min, max, isnull) transpose, and applies that transpose into
// a RecordBatchFieldState during construction. Statistics are a pruning
// hint, never correctness-critical: any parse failure silently disables
// stats for the field it came from rather than failing the scan, the same
// tolerant-parse-with-fallback posture as trying several timestamp
// formats in turn and falling through to "no timestamp" on exhaustion.
package statsbind

import (
	"math/big"
	"strings"

	"github.com/scrapbird/arrowfdw/engine/arrowio"
	"github.com/scrapbird/arrowfdw/engine/types"
)

// Build parses a field's min_values/max_values custom metadata into an
// ArrowStatsBinary. batchCount is the number of record batches in the
// file; per spec.md §6, a hint whose slot count doesn't match batchCount
// is silently ignored (nil, false returned, not an error).
func Build(field arrowio.FieldDesc, fieldPath []int, batchCount int) (*types.ArrowStatsBinary, bool) {
	if !supportsStats(field) {
		return nil, false
	}

	minStr, hasMin := field.CustomMetadata["min_values"]
	maxStr, hasMax := field.CustomMetadata["max_values"]
	if !hasMin || !hasMax {
		return nil, false
	}

	minVals, minOK := parseValues(minStr, batchCount)
	maxVals, maxOK := parseValues(maxStr, batchCount)
	if !minOK || !maxOK {
		return nil, false
	}

	isNull := make([]bool, batchCount)
	return &types.ArrowStatsBinary{
		FieldPath: fieldPath,
		MinValues: minVals,
		MaxValues: maxVals,
		IsNull:    isNull,
	}, true
}

// supportsStats reports whether a field's type has a well-ordered scalar
// representation statistics can compare, per spec.md §4.3 ("types without
// a supported unit are marked stat_isnull=true").
func supportsStats(field arrowio.FieldDesc) bool {
	switch field.Tag {
	case types.ArrowTagInt, types.ArrowTagFloatingPoint, types.ArrowTagDecimal,
		types.ArrowTagDate, types.ArrowTagTime, types.ArrowTagTimestamp:
		return true
	default:
		return false
	}
}

// parseValues parses a comma-separated list of signed 128-bit decimal
// integers. Returns ok=false on any parse failure or on a slot count that
// doesn't match expectedLen, per spec.md §4.3 and §6.
func parseValues(csv string, expectedLen int) ([][16]byte, bool) {
	parts := strings.Split(csv, ",")
	if len(parts) != expectedLen {
		return nil, false
	}
	out := make([][16]byte, expectedLen)
	for i, p := range parts {
		v, ok := new(big.Int).SetString(strings.TrimSpace(p), 10)
		if !ok {
			return nil, false
		}
		if v.BitLen() > 127 {
			return nil, false
		}
		out[i] = int128LE(v)
	}
	return out, true
}

// int128LE encodes a signed big.Int into 16 little-endian bytes,
// two's-complement, matching the on-disk layout RecordBatchFieldState's
// StatMin/StatMax fields use.
func int128LE(v *big.Int) [16]byte {
	var out [16]byte
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	b := abs.Bytes() // big-endian magnitude
	for i := 0; i < len(b) && i < 16; i++ {
		out[i] = b[len(b)-1-i]
	}
	if neg {
		// two's complement: invert and add one
		carry := uint16(1)
		for i := 0; i < 16; i++ {
			sum := uint16(^out[i]) + carry
			out[i] = byte(sum)
			carry = sum >> 8
		}
	}
	return out
}

// Apply copies the per-batch slot at batchIndex from stats into field's
// stat fields, per spec.md §4.3. If stats is nil (parsing was disabled or
// the field carries no hint), field.StatIsNull is left/set true.
func Apply(field *types.RecordBatchFieldState, stats *types.ArrowStatsBinary, batchIndex int) {
	if stats == nil || batchIndex >= len(stats.IsNull) {
		field.StatIsNull = true
		return
	}
	field.StatMin = stats.MinValues[batchIndex]
	field.StatMax = stats.MaxValues[batchIndex]
	field.StatIsNull = stats.IsNull[batchIndex]
}
