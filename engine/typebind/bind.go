// Package typebind implements the Type Binder of spec.md §4.2: mapping
// each parsed Arrow field (engine/arrowio.FieldDesc) to a host modifier,
// ArrowTypeOptions, and, where the catalog resolves one, a host type. Tags with sub-selectors to check (Int,
// FloatingPoint, Decimal, FixedSizeBinary, List, Struct) get their own
// binder function; the other tags pass through the ArrowTypeOptions that
// engine/arrowio decoded, unchanged. The buffer-count contract comes from
// ArrowTypeOptions.HasExtraBuffer. The dispatch style (one case per enum value, each
// self-contained) generalizes a file-format detection switch to
// Arrow-type detection.
package typebind

import (
	"fmt"
	"strings"

	"github.com/scrapbird/arrowfdw/engine/arrowio"
	"github.com/scrapbird/arrowfdw/engine/types"
)

// Catalog is the subset of the host catalog the binder needs: resolving a
// pg_type override, and matching a Struct field against a composite type.
// Kept as a narrow interface so this package has no dependency on the
// planner/catalog packages it is external to (spec.md §1 scope).
type Catalog interface {
	// LookupTypeByName resolves "[schema.]name" to a host type, reporting
	// whether it exists and is compatible (same length/signedness) with
	// the given options.
	LookupTypeByName(qualifiedName string, opts types.ArrowTypeOptions) (types.HostTypeID, bool)

	// LookupComposite finds a composite host type whose attributes match
	// attrTypes in order and count.
	LookupComposite(attrTypes []types.HostTypeID) (types.HostTypeID, bool)
}

// Bind validates one Arrow field against the table in spec.md §4.2 and
// returns its binding. Bind does not resolve scalar tags to a host type:
// HostType stays 0 (unresolved) unless a pg_type override resolves through
// cat, and a Struct takes the id cat.LookupComposite returns. Nested
// List/Struct deeper than one level is rejected upstream by
// engine/arrowio (UnsupportedNesting); Bind itself only handles up to one
// level of nesting.
func Bind(field arrowio.FieldDesc, cat Catalog) (types.BoundField, error) {
	bound, err := bindOne(field, cat)
	if err != nil {
		return types.BoundField{}, err
	}

	if override, ok := field.CustomMetadata["pg_type"]; ok && override != "" {
		if hostType, ok := cat.LookupTypeByName(override, bound.Options); ok {
			bound.HostType = hostType
		}
		// An override that does not exist or isn't compatible is silently
		// ignored in favor of the tag-derived binding: pg_type is a hint,
		// not a hard requirement, per spec.md §4.2.
	}

	return bound, nil
}

func bindOne(field arrowio.FieldDesc, cat Catalog) (types.BoundField, error) {
	switch field.Tag {
	case types.ArrowTagInt:
		return bindInt(field)
	case types.ArrowTagFloatingPoint:
		return bindFloat(field)
	case types.ArrowTagBool:
		return types.BoundField{Options: field.Opts}, nil
	case types.ArrowTagDecimal:
		return bindDecimal(field)
	case types.ArrowTagDate:
		return types.BoundField{Options: field.Opts}, nil
	case types.ArrowTagTime:
		return types.BoundField{Options: field.Opts}, nil
	case types.ArrowTagTimestamp:
		return types.BoundField{Options: field.Opts}, nil
	case types.ArrowTagInterval:
		return types.BoundField{Options: field.Opts}, nil
	case types.ArrowTagFixedSizeBinary:
		return bindFixedSizeBinary(field)
	case types.ArrowTagUtf8, types.ArrowTagLargeUtf8:
		return types.BoundField{Options: field.Opts}, nil
	case types.ArrowTagBinary, types.ArrowTagLargeBinary:
		return types.BoundField{Options: field.Opts}, nil
	case types.ArrowTagList, types.ArrowTagLargeList:
		return bindList(field, cat)
	case types.ArrowTagStruct:
		return bindStruct(field, cat)
	default:
		return types.BoundField{}, types.NewError(types.KindUnsupportedType, "typebind.Bind", field.Name,
			fmt.Errorf("unrecognized Arrow tag %v", field.Tag))
	}
}

func bindInt(field arrowio.FieldDesc) (types.BoundField, error) {
	switch field.Opts.IntBitWidth {
	case 8, 16, 32, 64:
		return types.BoundField{Options: field.Opts}, nil
	default:
		return types.BoundField{}, types.NewError(types.KindUnsupportedType, "typebind.bindInt", field.Name,
			fmt.Errorf("unsupported Int bitWidth %d", field.Opts.IntBitWidth))
	}
}

func bindFloat(field arrowio.FieldDesc) (types.BoundField, error) {
	switch field.Opts.FloatPrecision {
	case 2, 4, 8:
		return types.BoundField{Options: field.Opts}, nil
	default:
		return types.BoundField{}, types.NewError(types.KindUnsupportedType, "typebind.bindFloat", field.Name,
			fmt.Errorf("unsupported FloatingPoint precision %d", field.Opts.FloatPrecision))
	}
}

func bindDecimal(field arrowio.FieldDesc) (types.BoundField, error) {
	if field.Opts.DecimalBitWidth != 128 {
		return types.BoundField{}, types.NewError(types.KindUnsupportedType, "typebind.bindDecimal", field.Name,
			fmt.Errorf("unsupported Decimal bitWidth %d", field.Opts.DecimalBitWidth))
	}
	// HostModifier packs (precision, scale) the way a numeric(p,s) atttypmod
	// does: precision in the high 16 bits, scale in the low 16 bits.
	modifier := (field.Opts.DecimalPrecision << 16) | (field.Opts.DecimalScale & 0xFFFF)
	return types.BoundField{Options: field.Opts, HostModifier: modifier}, nil
}

// bindFixedSizeBinary maps FixedSizeBinary(byteWidth) to macaddr (6),
// inet (4 or 16), or bytea otherwise, per spec.md §4.2.
func bindFixedSizeBinary(field arrowio.FieldDesc) (types.BoundField, error) {
	switch field.Opts.FixedByteWidth {
	case 6:
		return types.BoundField{Options: field.Opts, HostModifier: modMacaddr}, nil
	case 4, 16:
		return types.BoundField{Options: field.Opts, HostModifier: modInet}, nil
	default:
		return types.BoundField{Options: field.Opts, HostModifier: modBytea}, nil
	}
}

// Host-modifier sentinels distinguishing the three FixedSizeBinary host
// targets; the planner's catalog assigns the real HostTypeID, this package
// only needs to tell the three apart.
const (
	modBytea = iota
	modMacaddr
	modInet
)

func bindList(field arrowio.FieldDesc, cat Catalog) (types.BoundField, error) {
	if len(field.Children) != 1 {
		return types.BoundField{}, types.NewError(types.KindUnsupportedNesting, "typebind.bindList", field.Name,
			fmt.Errorf("List must have exactly 1 child, got %d", len(field.Children)))
	}
	child, err := bindOne(field.Children[0], cat)
	if err != nil {
		return types.BoundField{}, err
	}
	return types.BoundField{Options: field.Opts, Children: []types.BoundField{child}}, nil
}

func bindStruct(field arrowio.FieldDesc, cat Catalog) (types.BoundField, error) {
	children := make([]types.BoundField, len(field.Children))
	attrTypes := make([]types.HostTypeID, len(field.Children))
	for i, c := range field.Children {
		bc, err := bindOne(c, cat)
		if err != nil {
			return types.BoundField{}, err
		}
		children[i] = bc
		attrTypes[i] = bc.HostType
	}

	composite, ok := cat.LookupComposite(attrTypes)
	if !ok {
		return types.BoundField{}, types.NewError(types.KindNoCompatibleComposite, "typebind.bindStruct", field.Name,
			fmt.Errorf("no composite type with %d matching attributes", len(attrTypes)))
	}

	return types.BoundField{HostType: composite, Options: field.Opts, Children: children}, nil
}

// SplitQualifiedName splits "[schema.]name" into (schema, name), with an
// empty schema meaning "search path" resolution, matching the pg_type
// override syntax of spec.md §6.
func SplitQualifiedName(qualified string) (schema, name string) {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	return "", qualified
}
