// Package fileset implements the File-Set Resolver of spec.md §4.6: it
// expands scan-level table options (file, files, dir, suffix,
// parallel_workers) into a concrete, ordered list of readable file
// paths.
//
// The directory-walk-with-suffix-filter shape is a plain directory read
// plus suffix comparison rather than a full glob walk, since spec.md's
// dir/suffix option pair is a simpler contract than an arbitrary glob.
// doublestar is used only for the `files` option's
// comma-separated-with-brace-expansion convenience (see ExpandFiles); the
// directory scan does not use it.
package fileset

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/scrapbird/arrowfdw/engine/logx"
	"github.com/scrapbird/arrowfdw/engine/types"
)

// Options mirrors the scan-level table options of spec.md §4.6.
type Options struct {
	Files           []string // accumulated from repeated `file` and comma-split `files`
	Dir             string
	Suffix          string // without leading dot; empty means "no filter"
	ParallelWorkers int
}

// Resolve expands opts into the final ordered file list: literal
// file/files entries first in source order, then directory entries in
// filesystem-scan order, per spec.md §4.6 rule 3.
func Resolve(opts Options, logger logx.Logger) ([]string, error) {
	if logger == nil {
		logger = logx.Discard
	}

	var result []string

	for _, f := range opts.Files {
		expanded, err := expandOne(f)
		if err != nil {
			return nil, types.NewError(types.KindOptionError, "fileset.Resolve", f, err)
		}
		if _, err := os.Stat(expanded); err != nil {
			return nil, types.NewError(types.KindOptionError, "fileset.Resolve", expanded, err)
		}
		result = append(result, expanded)
	}

	if opts.Dir != "" {
		entries, err := scanDir(opts.Dir, opts.Suffix, logger)
		if err != nil {
			return nil, types.NewError(types.KindOptionError, "fileset.Resolve", opts.Dir, err)
		}
		result = append(result, entries...)
	}

	return result, nil
}

// expandOne resolves a single literal path to its absolute form. It does
// not glob: a `file`/`files` entry names one file, per spec.md §4.6.
func expandOne(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// ExpandFiles splits a comma-separated `files` option value into
// individual path entries, expanding any brace/glob syntax each entry
// carries (e.g. "/data/{a,b}.arrow" or "/data/part-*.arrow") via
// doublestar, so a single `files` entry can still name a small explicit
// set without requiring a whole `dir` option. Entries with no glob
// metacharacters pass through unchanged.
func ExpandFiles(filesOpt string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(filesOpt, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !doublestar.ValidatePattern(part) || !containsGlobMeta(part) {
			out = append(out, part)
			continue
		}
		matches, err := doublestar.FilepathGlob(part)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

func containsGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// scanDir reads one directory (non-recursive) and returns entries whose
// suffix matches (if suffix is non-empty), in directory-scan order.
// Unreadable entries are skipped with a debug log line, never an error,
// per spec.md §4.6 rule 2.
func scanDir(dir, suffix string, logger logx.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, ent := range entries {
		name := ent.Name()
		if name == "." || name == ".." {
			continue
		}
		if ent.IsDir() {
			continue
		}
		if suffix != "" && fileSuffix(name) != suffix {
			continue
		}
		full := filepath.Join(dir, name)
		if _, err := os.Stat(full); err != nil {
			logx.Logf(logger, "debug", "fileset: skipping unreadable entry %s: %v", full, err)
			continue
		}
		out = append(out, full)
	}
	return out, nil
}

// fileSuffix returns the final "."-delimited segment of name, or "" if
// name has no extension, matching spec.md §4.6 rule 2's "final . segment"
// wording.
func fileSuffix(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// ValidateParallelWorkers enforces spec.md §4.6 rule 4: the option may
// appear at most once. count is how many times the caller's option
// parser observed a `parallel_workers` key.
func ValidateParallelWorkers(count int) error {
	if count > 1 {
		return types.NewError(types.KindOptionError, "fileset.ValidateParallelWorkers", "parallel_workers",
			errTooManyParallelWorkers)
	}
	return nil
}

var errTooManyParallelWorkers = &optionErr{"parallel_workers may appear at most once"}

type optionErr struct{ msg string }

func (e *optionErr) Error() string { return e.msg }
