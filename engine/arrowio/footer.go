package arrowio

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/scrapbird/arrowfdw/engine/types"
)

// Arrow IPC union discriminators (format/Schema.fbs `Type` union, ubyte
// values) and the slot numbers used throughout this file follow the
// field declaration order of the corresponding Arrow flatbuffers tables.
const (
	typeNone            = 0
	typeNull            = 1
	typeInt             = 2
	typeFloatingPoint   = 3
	typeBinary          = 4
	typeUtf8            = 5
	typeBool            = 6
	typeDecimal         = 7
	typeDate            = 8
	typeTime            = 9
	typeTimestamp       = 10
	typeInterval        = 11
	typeList            = 12
	typeStruct          = 13
	typeFixedSizeBinary = 15
	typeLargeBinary     = 19
	typeLargeUtf8       = 20
	typeLargeList       = 21
)

const (
	messageHeaderNone            = 0
	messageHeaderSchema          = 1
	messageHeaderDictionaryBatch = 2
	messageHeaderRecordBatch     = 3
)

const blockStructSize = 24 // offset:int64, metaDataLength:int32(+pad), bodyLength:int64
const fieldNodeStructSize = 16
const bufferStructSize = 16

// FieldDesc is the parsed form of one Arrow Field, before host-type
// binding (engine/typebind's job). Name and CustomMetadata feed the
// pg_type / min_values / max_values overrides of spec.md §6.
type FieldDesc struct {
	Name           string
	Nullable       bool
	Tag            types.ArrowTag
	Opts           types.ArrowTypeOptions
	Children       []FieldDesc
	CustomMetadata map[string]string
}

// Block is one Footer.recordBatches (or .dictionaries) entry: the byte
// range of one Message in the file.
type Block struct {
	Offset         int64
	MetaDataLength int32
	BodyLength     int64
}

// Footer is the parsed Arrow IPC file footer.
type Footer struct {
	Schema        []FieldDesc
	Dictionaries  []Block
	RecordBatches []Block
}

// ParseFooter decodes the flatbuffers Footer rooted at footerBuf (the
// footer bytes that precede the trailing 4-byte footer length and the
// trailing magic, as sliced off by ParseFile).
func ParseFooter(footerBuf []byte) (*Footer, error) {
	if len(footerBuf) < 4 {
		return nil, fmt.Errorf("footer too short: %d bytes", len(footerBuf))
	}
	rootPos := flatbuffers.GetUOffsetT(footerBuf)
	root := rootTable(footerBuf, rootPos)

	schemaTbl, ok := root.tableAt(6) // Footer.schema
	if !ok {
		return nil, fmt.Errorf("footer has no schema")
	}
	schema, err := decodeSchema(schemaTbl)
	if err != nil {
		return nil, err
	}

	return &Footer{
		Schema:        schema,
		Dictionaries:  decodeBlocks(root, 8),  // Footer.dictionaries
		RecordBatches: decodeBlocks(root, 10), // Footer.recordBatches
	}, nil
}

func decodeBlocks(tb table, slot flatbuffers.VOffsetT) []Block {
	n := tb.vectorLen(slot)
	blocks := make([]Block, n)
	for i := 0; i < n; i++ {
		pos := tb.vectorElemStructPos(slot, i, blockStructSize)
		buf := tb.t.Bytes
		blocks[i] = Block{
			Offset:         flatbuffers.GetInt64(buf[pos:]),
			MetaDataLength: flatbuffers.GetInt32(buf[pos+8:]),
			BodyLength:     flatbuffers.GetInt64(buf[pos+16:]),
		}
	}
	return blocks
}

func decodeSchema(schemaTbl table) ([]FieldDesc, error) {
	n := schemaTbl.vectorLen(6) // Schema.fields
	fields := make([]FieldDesc, n)
	for i := 0; i < n; i++ {
		pos := schemaTbl.vectorElemTablePos(6, i, 4)
		ft := table{t: flatbuffers.Table{Bytes: schemaTbl.t.Bytes, Pos: pos}}
		fd, err := decodeField(ft, 0)
		if err != nil {
			return nil, err
		}
		fields[i] = fd
	}
	return fields, nil
}

// decodeField decodes one Field table. depth tracks nesting so List/Struct
// children deeper than one level fail with UnsupportedNesting, per
// spec.md §4.2.
func decodeField(ft table, depth int) (FieldDesc, error) {
	name, _ := ft.stringAt(4)
	nullable := ft.boolAt(6, true)
	typeType := ft.byteAt(8, typeNone)

	typeTbl, hasType := ft.tableAt(10)
	var tag types.ArrowTag
	var opts types.ArrowTypeOptions
	var err error
	if hasType {
		tag, opts, err = decodeTypeTable(typeType, typeTbl)
		if err != nil {
			return FieldDesc{}, types.NewError(types.KindUnsupportedType, "arrowio.decodeField", name, err)
		}
	}

	var children []FieldDesc
	nChildren := ft.vectorLen(14) // Field.children
	if nChildren > 0 {
		if depth >= 1 {
			return FieldDesc{}, types.NewError(types.KindUnsupportedNesting, "arrowio.decodeField", name,
				fmt.Errorf("nested List/Struct deeper than one level is not supported"))
		}
		children = make([]FieldDesc, nChildren)
		for i := 0; i < nChildren; i++ {
			pos := ft.vectorElemTablePos(14, i, 4)
			childTbl := table{t: flatbuffers.Table{Bytes: ft.t.Bytes, Pos: pos}}
			cf, err := decodeField(childTbl, depth+1)
			if err != nil {
				return FieldDesc{}, err
			}
			children[i] = cf
		}
	}

	return FieldDesc{
		Name:           name,
		Nullable:       nullable,
		Tag:            tag,
		Opts:           opts,
		Children:       children,
		CustomMetadata: decodeKeyValues(ft, 16), // Field.custom_metadata
	}, nil
}

func decodeKeyValues(ft table, slot flatbuffers.VOffsetT) map[string]string {
	n := ft.vectorLen(slot)
	if n == 0 {
		return nil
	}
	m := make(map[string]string, n)
	for i := 0; i < n; i++ {
		pos := ft.vectorElemTablePos(slot, i, 4)
		kv := table{t: flatbuffers.Table{Bytes: ft.t.Bytes, Pos: pos}}
		k, _ := kv.stringAt(4) // KeyValue.key
		v, _ := kv.stringAt(6) // KeyValue.value
		m[k] = v
	}
	return m
}

// decodeTypeTable maps one Arrow Type union value to (tag, ArrowTypeOptions)
// per the table in spec.md §4.2. Unrecognized sub-selectors or tags fail
// with UnsupportedType.
func decodeTypeTable(typeType byte, tt table) (types.ArrowTag, types.ArrowTypeOptions, error) {
	switch typeType {
	case typeInt:
		bitWidth := tt.int32At(4, 0)
		signed := tt.boolAt(6, true)
		width, ok := map[int32]int32{8: 1, 16: 2, 32: 4, 64: 8}[bitWidth]
		if !ok {
			return 0, types.ArrowTypeOptions{}, fmt.Errorf("unsupported Int bitWidth %d", bitWidth)
		}
		return types.ArrowTagInt, types.ArrowTypeOptions{
			Tag: types.ArrowTagInt, ElementWidth: width,
			IntBitWidth: int8(bitWidth), IntSigned: signed,
		}, nil

	case typeFloatingPoint:
		precision := tt.int16At(4, 0)
		widths := map[int16]int32{0: 2, 1: 4, 2: 8}
		width, ok := widths[precision]
		if !ok {
			return 0, types.ArrowTypeOptions{}, fmt.Errorf("unsupported FloatingPoint precision %d", precision)
		}
		return types.ArrowTagFloatingPoint, types.ArrowTypeOptions{
			Tag: types.ArrowTagFloatingPoint, ElementWidth: width, FloatPrecision: int8(width),
		}, nil

	case typeBool:
		return types.ArrowTagBool, types.ArrowTypeOptions{Tag: types.ArrowTagBool, ElementWidth: -1}, nil

	case typeDecimal:
		precision := tt.int32At(4, 0)
		scale := tt.int32At(6, 0)
		bitWidth := tt.int32At(8, 128)
		if bitWidth != 128 {
			return 0, types.ArrowTypeOptions{}, fmt.Errorf("unsupported Decimal bitWidth %d", bitWidth)
		}
		return types.ArrowTagDecimal, types.ArrowTypeOptions{
			Tag: types.ArrowTagDecimal, ElementWidth: 16,
			DecimalPrecision: precision, DecimalScale: scale, DecimalBitWidth: bitWidth,
		}, nil

	case typeDate:
		unit := types.DateUnit(tt.int16At(4, 0))
		width := int32(4)
		if unit == types.DateUnitMilliSecond {
			width = 8
		}
		return types.ArrowTagDate, types.ArrowTypeOptions{Tag: types.ArrowTagDate, ElementWidth: width, DateUnit: unit}, nil

	case typeTime:
		unit := types.TimeUnit(tt.int16At(4, 0))
		widths := map[types.TimeUnit]int32{
			types.TimeUnitSecond: 4, types.TimeUnitMilli: 4,
			types.TimeUnitMicro: 8, types.TimeUnitNano: 8,
		}
		width, ok := widths[unit]
		if !ok {
			return 0, types.ArrowTypeOptions{}, fmt.Errorf("unsupported Time unit %d", unit)
		}
		return types.ArrowTagTime, types.ArrowTypeOptions{Tag: types.ArrowTagTime, ElementWidth: width, TimeUnit: unit}, nil

	case typeTimestamp:
		unit := types.TimeUnit(tt.int16At(4, 0))
		_, hasTZ := tt.stringAt(6)
		return types.ArrowTagTimestamp, types.ArrowTypeOptions{
			Tag: types.ArrowTagTimestamp, ElementWidth: 8, TimestampUnit: unit, TimestampTZ: hasTZ,
		}, nil

	case typeInterval:
		unit := types.IntervalUnit(tt.int16At(4, 0))
		width := int32(4)
		if unit == types.IntervalUnitDayTime {
			width = 8
		}
		return types.ArrowTagInterval, types.ArrowTypeOptions{Tag: types.ArrowTagInterval, ElementWidth: width, IntervalUnit: unit}, nil

	case typeFixedSizeBinary:
		byteWidth := tt.int32At(4, 0)
		return types.ArrowTagFixedSizeBinary, types.ArrowTypeOptions{
			Tag: types.ArrowTagFixedSizeBinary, ElementWidth: byteWidth, FixedByteWidth: byteWidth,
		}, nil

	case typeUtf8:
		return types.ArrowTagUtf8, types.ArrowTypeOptions{Tag: types.ArrowTagUtf8, ElementWidth: 4}, nil
	case typeBinary:
		return types.ArrowTagBinary, types.ArrowTypeOptions{Tag: types.ArrowTagBinary, ElementWidth: 4}, nil
	case typeLargeUtf8:
		return types.ArrowTagLargeUtf8, types.ArrowTypeOptions{Tag: types.ArrowTagLargeUtf8, ElementWidth: 8}, nil
	case typeLargeBinary:
		return types.ArrowTagLargeBinary, types.ArrowTypeOptions{Tag: types.ArrowTagLargeBinary, ElementWidth: 8}, nil

	case typeList:
		return types.ArrowTagList, types.ArrowTypeOptions{Tag: types.ArrowTagList, ElementWidth: 4}, nil
	case typeLargeList:
		return types.ArrowTagLargeList, types.ArrowTypeOptions{Tag: types.ArrowTagLargeList, ElementWidth: 8}, nil

	case typeStruct:
		return types.ArrowTagStruct, types.ArrowTypeOptions{Tag: types.ArrowTagStruct, ElementWidth: 0}, nil

	default:
		return 0, types.ArrowTypeOptions{}, fmt.Errorf("unsupported Arrow type tag %d", typeType)
	}
}
