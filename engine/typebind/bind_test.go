package typebind

import (
	"testing"

	"github.com/scrapbird/arrowfdw/engine/arrowio"
	"github.com/scrapbird/arrowfdw/engine/types"
)

type fakeCatalog struct {
	byName     map[string]types.HostTypeID
	composites map[int]types.HostTypeID
}

func (f *fakeCatalog) LookupTypeByName(name string, _ types.ArrowTypeOptions) (types.HostTypeID, bool) {
	id, ok := f.byName[name]
	return id, ok
}

func (f *fakeCatalog) LookupComposite(attrTypes []types.HostTypeID) (types.HostTypeID, bool) {
	id, ok := f.composites[len(attrTypes)]
	return id, ok
}

func TestBind_Int32(t *testing.T) {
	field := arrowio.FieldDesc{
		Name: "count",
		Tag:  types.ArrowTagInt,
		Opts: types.ArrowTypeOptions{Tag: types.ArrowTagInt, ElementWidth: 4, IntBitWidth: 32, IntSigned: true},
	}
	bound, err := Bind(field, &fakeCatalog{})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if bound.Options.IntBitWidth != 32 {
		t.Fatalf("unexpected options: %+v", bound.Options)
	}
}

func TestBind_UnsupportedIntWidth(t *testing.T) {
	field := arrowio.FieldDesc{
		Name: "bad",
		Tag:  types.ArrowTagInt,
		Opts: types.ArrowTypeOptions{Tag: types.ArrowTagInt, IntBitWidth: 24},
	}
	_, err := Bind(field, &fakeCatalog{})
	if types.KindOf(err) != types.KindUnsupportedType {
		t.Fatalf("expected UnsupportedType, got %v", err)
	}
}

func TestBind_PgTypeOverride(t *testing.T) {
	field := arrowio.FieldDesc{
		Name:           "count",
		Tag:            types.ArrowTagInt,
		Opts:           types.ArrowTypeOptions{Tag: types.ArrowTagInt, IntBitWidth: 32, IntSigned: true},
		CustomMetadata: map[string]string{"pg_type": "public.my_int4"},
	}
	cat := &fakeCatalog{byName: map[string]types.HostTypeID{"public.my_int4": 99}}
	bound, err := Bind(field, cat)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if bound.HostType != 99 {
		t.Fatalf("expected pg_type override to win, got HostType=%d", bound.HostType)
	}
}

func TestBind_FixedSizeBinaryMacaddr(t *testing.T) {
	field := arrowio.FieldDesc{
		Name: "mac",
		Tag:  types.ArrowTagFixedSizeBinary,
		Opts: types.ArrowTypeOptions{Tag: types.ArrowTagFixedSizeBinary, FixedByteWidth: 6},
	}
	bound, err := Bind(field, &fakeCatalog{})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if bound.HostModifier != modMacaddr {
		t.Fatalf("expected macaddr modifier, got %d", bound.HostModifier)
	}
}

func TestBind_StructNoCompositeMatch(t *testing.T) {
	field := arrowio.FieldDesc{
		Name: "point",
		Tag:  types.ArrowTagStruct,
		Children: []arrowio.FieldDesc{
			{Name: "x", Tag: types.ArrowTagFloatingPoint, Opts: types.ArrowTypeOptions{FloatPrecision: 8}},
			{Name: "y", Tag: types.ArrowTagFloatingPoint, Opts: types.ArrowTypeOptions{FloatPrecision: 8}},
		},
	}
	_, err := Bind(field, &fakeCatalog{})
	if types.KindOf(err) != types.KindNoCompatibleComposite {
		t.Fatalf("expected NoCompatibleComposite, got %v", err)
	}
}

func TestBind_ListOfInt(t *testing.T) {
	field := arrowio.FieldDesc{
		Name: "tags",
		Tag:  types.ArrowTagList,
		Opts: types.ArrowTypeOptions{Tag: types.ArrowTagList, ElementWidth: 4},
		Children: []arrowio.FieldDesc{
			{Name: "item", Tag: types.ArrowTagInt, Opts: types.ArrowTypeOptions{IntBitWidth: 32}},
		},
	}
	bound, err := Bind(field, &fakeCatalog{})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if len(bound.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(bound.Children))
	}
}
