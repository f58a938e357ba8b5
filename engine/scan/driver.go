package scan

import (
	"fmt"

	"github.com/scrapbird/arrowfdw/engine/arrowio"
	"github.com/scrapbird/arrowfdw/engine/batchstate"
	"github.com/scrapbird/arrowfdw/engine/fileset"
	"github.com/scrapbird/arrowfdw/engine/logx"
	"github.com/scrapbird/arrowfdw/engine/metacache"
	"github.com/scrapbird/arrowfdw/engine/statsbind"
	"github.com/scrapbird/arrowfdw/engine/typebind"
	"github.com/scrapbird/arrowfdw/engine/types"
)

// Driver is the Scan Driver of spec.md §4.7, wiring the File-Set
// Resolver, Arrow File Reader, Type Binder, Statistics Binder,
// RecordBatch State Builder, and Metadata Cache together. One Driver is
// typically shared by every foreign table of the same process, mirroring
// the Metadata Cache's own process-lifetime scope.
type Driver struct {
	cache   *metacache.Cache
	catalog typebind.Catalog
	logger  logx.Logger
}

// New constructs a Driver over a shared Metadata Cache and host Catalog.
func New(cache *metacache.Cache, catalog typebind.Catalog, logger logx.Logger) *Driver {
	if logger == nil {
		logger = logx.Discard
	}
	return &Driver{cache: cache, catalog: catalog, logger: logger}
}

// PlanResult is the output of Plan: the per-file states the scan will
// read, plus the planner cost-model inputs of spec.md §4.7.
type PlanResult struct {
	Files                []*types.ArrowFileState
	TotalBytesReferenced int64
	TotalRows            int64
}

// Plan resolves opts into a file set, builds or fetches each file's
// ArrowFileState (consulting the Metadata Cache first), checks schema
// compatibility against tableSchema, and sums referenced-column bytes
// for referencedColumns (top-level field indices), per spec.md §4.7.
func (d *Driver) Plan(opts fileset.Options, tableSchema []types.BoundField, referencedColumns []int) (PlanResult, error) {
	paths, err := fileset.Resolve(opts, d.logger)
	if err != nil {
		return PlanResult{}, err
	}

	var result PlanResult
	for _, path := range paths {
		file, err := d.openOrBuild(path)
		if err != nil {
			return PlanResult{}, err
		}

		if err := checkSchemaCompat(file.Schema, tableSchema); err != nil {
			return PlanResult{}, err
		}

		result.Files = append(result.Files, file)
		result.TotalRows += file.TotalRows()
		result.TotalBytesReferenced += referencedBytes(file, referencedColumns)
	}

	return result, nil
}

// Probe returns the ArrowFileState for a single file without checking it
// against any foreign-table descriptor, for callers that need to
// discover a schema before one exists (e.g. a table-creation or import
// flow). Plan is still the entry point once a descriptor is in hand.
func (d *Driver) Probe(path string) (*types.ArrowFileState, error) {
	return d.openOrBuild(path)
}

// openOrBuild asks the Metadata Cache for a fresh entry, building one on
// miss and storing it, per spec.md §4.5's "lookup, build-on-miss under
// exclusive access, insert, return" dataflow.
func (d *Driver) openOrBuild(path string) (*types.ArrowFileState, error) {
	mf, err := arrowio.Open(path)
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	if _, file, ok := d.cache.Lookup(mf.Stat); ok {
		return file, nil
	}

	file, err := d.build(mf)
	if err != nil {
		return nil, err
	}
	if _, cached := d.cache.Store(mf.Stat, file); !cached {
		logx.Logf(d.logger, "warn", "metadata cache full, proceeding uncached for %s: %s",
			path, types.NewError(types.KindCacheAllocFailed, "scan.openOrBuild", path, fmt.Errorf("no LRU-tail entry old enough to reclaim")))
	}
	return file, nil
}

// build parses an opened file and constructs its ArrowFileState from
// scratch: footer/schema, per-field type binding, per-field statistics,
// and per-batch layout state. Allocation or parse failure here fails only
// the scan touching this file, per spec.md §4.5's failure model (Store
// never errors; Plan's own parse/bind errors are what can fail this call).
func (d *Driver) build(mf *arrowio.MappedFile) (*types.ArrowFileState, error) {
	parsed, err := arrowio.ParseFile(mf)
	if err != nil {
		return nil, err
	}

	bound := make([]types.BoundField, len(parsed.Schema))
	for i, fd := range parsed.Schema {
		bf, err := typebind.Bind(fd, d.catalog)
		if err != nil {
			return nil, err
		}
		bound[i] = bf
	}

	stats := make([]*fieldStats, len(parsed.Schema))
	for i, fd := range parsed.Schema {
		stats[i] = buildFieldStats(fd, []int{i}, len(parsed.Batches))
	}

	batches := make([]types.RecordBatchState, len(parsed.Batches))
	for i, pb := range parsed.Batches {
		bs, err := batchstate.Build(pb.Index, pb.BodyOffset, pb.BodyLength, bound, pb.Message)
		if err != nil {
			return nil, err
		}
		for fi := range bs.Fields {
			applyFieldStats(&bs.Fields[fi], stats[fi], i)
		}
		batches[i] = bs
	}

	return &types.ArrowFileState{
		Filename: mf.Filename,
		Stat:     mf.Stat,
		Batches:  batches,
		Schema:   bound,
	}, nil
}

// fieldStats pairs one field's own statistics binary (nil if the field
// carries none) with its children's, mirroring the FieldDesc/BoundField
// Children shape so the two trees can be walked in lockstep.
type fieldStats struct {
	own      *types.ArrowStatsBinary
	children []*fieldStats
}

// buildFieldStats builds fd's own statistics binary and recurses into its
// structural children (Struct attributes, List element type), per
// spec.md §4.3's "structural fields recurse into children." Each child's
// FieldPath extends path with its own index, matching predicate.go's
// fieldAt child-walk convention.
func buildFieldStats(fd arrowio.FieldDesc, path []int, batchCount int) *fieldStats {
	s, _ := statsbind.Build(fd, append([]int{}, path...), batchCount)
	fs := &fieldStats{own: s}
	if len(fd.Children) > 0 {
		fs.children = make([]*fieldStats, len(fd.Children))
		for i, cd := range fd.Children {
			childPath := append(append([]int{}, path...), i)
			fs.children[i] = buildFieldStats(cd, childPath, batchCount)
		}
	}
	return fs
}

// applyFieldStats applies stats' own binary (if any) to field and
// recurses into field.Children/stats.children pairwise, so a nested
// Struct or List field's stat_min/stat_max/stat_isnull are populated the
// same way a top-level field's are.
func applyFieldStats(field *types.RecordBatchFieldState, stats *fieldStats, batchIndex int) {
	var own *types.ArrowStatsBinary
	if stats != nil {
		own = stats.own
	}
	statsbind.Apply(field, own, batchIndex)

	for i := range field.Children {
		var cs *fieldStats
		if stats != nil && i < len(stats.children) {
			cs = stats.children[i]
		}
		applyFieldStats(&field.Children[i], cs, batchIndex)
	}
}

// checkSchemaCompat enforces spec.md §4.7's SchemaMismatch rule: column
// count and per-column host type must agree between the file and the
// foreign-table descriptor.
func checkSchemaCompat(fileSchema, tableSchema []types.BoundField) error {
	if len(fileSchema) != len(tableSchema) {
		return types.NewError(types.KindSchemaMismatch, "scan.checkSchemaCompat", "",
			fmt.Errorf("file has %d columns, table descriptor has %d", len(fileSchema), len(tableSchema)))
	}
	for i := range fileSchema {
		if fileSchema[i].HostType != tableSchema[i].HostType {
			return types.NewError(types.KindSchemaMismatch, "scan.checkSchemaCompat", "",
				fmt.Errorf("column %d: file host type %d != table host type %d",
					i, fileSchema[i].HostType, tableSchema[i].HostType))
		}
	}
	return nil
}

// referencedBytes sums, per spec.md §4.7, nullmap+values+extra length
// (recursively into children) for each referenced top-level column
// across every batch in file.
func referencedBytes(file *types.ArrowFileState, referencedColumns []int) int64 {
	var total int64
	for _, batch := range file.Batches {
		for _, col := range referencedColumns {
			if col < 0 || col >= len(batch.Fields) {
				continue
			}
			total += fieldBytes(batch.Fields[col])
		}
	}
	return total
}

func fieldBytes(f types.RecordBatchFieldState) int64 {
	n := f.Values.Length + f.Extra.Length
	if f.NullCount > 0 {
		n += f.Nullmap.Length
	}
	for _, c := range f.Children {
		n += fieldBytes(c)
	}
	return n
}

// Cursor is a per-caller iteration state returned by Open, walking
// batches in (file-set order, batch-index order), per spec.md §5.
type Cursor struct {
	files    []*types.ArrowFileState
	fileIdx  int
	batchIdx int
}

// Open prepares a Cursor over files, the per-file handles spec.md §4.7's
// open() operation describes. File descriptors/mmaps are not reopened
// here: ArrowFileState carries no live handle, only offsets into files
// the caller re-opens (or keeps mapped) as next_batch slices them.
func Open(files []*types.ArrowFileState) *Cursor {
	return &Cursor{files: files}
}

// NextBatch returns the next record batch in order, skipping batches
// pred rules out via statistics, per spec.md §4.7/§5. Returns ok=false
// when the cursor is exhausted (EOF), never an error in that case.
func (c *Cursor) NextBatch(pred Predicate) (file *types.ArrowFileState, batch *types.RecordBatchState, ok bool) {
	for c.fileIdx < len(c.files) {
		f := c.files[c.fileIdx]
		if c.batchIdx >= len(f.Batches) {
			c.fileIdx++
			c.batchIdx = 0
			continue
		}
		b := &f.Batches[c.batchIdx]
		c.batchIdx++

		if ShouldSkip(pred, *b) {
			continue
		}
		return f, b, true
	}
	return nil, nil, false
}

// Reset rewinds the cursor to the beginning of the file set, allowing a
// new scan of the same plan without re-resolving it.
func (c *Cursor) Reset() {
	c.fileIdx, c.batchIdx = 0, 0
}
