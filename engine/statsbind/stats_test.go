package statsbind

import (
	"math/big"
	"testing"

	"github.com/scrapbird/arrowfdw/engine/arrowio"
	"github.com/scrapbird/arrowfdw/engine/types"
)

func intField(meta map[string]string) arrowio.FieldDesc {
	return arrowio.FieldDesc{
		Name:           "n",
		Tag:            types.ArrowTagInt,
		Opts:           types.ArrowTypeOptions{Tag: types.ArrowTagInt, IntBitWidth: 32, IntSigned: true},
		CustomMetadata: meta,
	}
}

func TestBuild_ParsesPositiveAndNegative(t *testing.T) {
	field := intField(map[string]string{
		"min_values": "-5,0,100",
		"max_values": "10,0,200",
	})
	stats, ok := Build(field, nil, 3)
	if !ok {
		t.Fatalf("expected Build to succeed")
	}
	if len(stats.MinValues) != 3 || len(stats.MaxValues) != 3 {
		t.Fatalf("unexpected slot count: %+v", stats)
	}

	var got types.RecordBatchFieldState
	Apply(&got, stats, 0)
	if got.StatIsNull {
		t.Fatalf("expected batch 0 to have stats")
	}

	want := int128LE(big.NewInt(-5))
	if got.StatMin != want {
		t.Fatalf("min mismatch: got %x want %x", got.StatMin, want)
	}
}

func TestBuild_LengthMismatchDisablesStats(t *testing.T) {
	field := intField(map[string]string{
		"min_values": "1,2",
		"max_values": "1,2,3",
	})
	_, ok := Build(field, nil, 3)
	if ok {
		t.Fatalf("expected Build to fail on length mismatch")
	}
}

func TestBuild_MalformedValueDisablesStats(t *testing.T) {
	field := intField(map[string]string{
		"min_values": "1,notanumber",
		"max_values": "1,2",
	})
	_, ok := Build(field, nil, 2)
	if ok {
		t.Fatalf("expected Build to fail on malformed value")
	}
}

func TestBuild_MissingMetadataDisablesStats(t *testing.T) {
	field := intField(nil)
	_, ok := Build(field, nil, 3)
	if ok {
		t.Fatalf("expected Build to fail without min/max metadata")
	}
}

func TestBuild_UnsupportedTagDisablesStats(t *testing.T) {
	field := arrowio.FieldDesc{
		Name: "blob",
		Tag:  types.ArrowTagBinary,
		CustomMetadata: map[string]string{
			"min_values": "1",
			"max_values": "2",
		},
	}
	_, ok := Build(field, nil, 1)
	if ok {
		t.Fatalf("expected Build to refuse a non-orderable tag")
	}
}

func TestApply_NilStatsMarksIsNull(t *testing.T) {
	var got types.RecordBatchFieldState
	Apply(&got, nil, 0)
	if !got.StatIsNull {
		t.Fatalf("expected StatIsNull when stats is nil")
	}
}
