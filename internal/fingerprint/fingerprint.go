// Package fingerprint implements the deterministic canonicalization and
// digest of a notebook's cache-relevant inputs.
//
// Canonicalization and digesting are pure functions: no I/O, no locking,
// no logging. Everything that can invalidate a cache entry — a different
// code cell source, a different kernelspec — must flow through here.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // fixed 128-bit digest for content addressing; not used for security.
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/notecache/notecache/internal/notebook"
)

// ErrUnsupportedFormat is returned when a notebook's format_minor exceeds
// MaxSupportedFormatMinor.
var ErrUnsupportedFormat = errors.New("fingerprint: unsupported notebook format")

// Options selects which metadata keys participate in the fingerprint.
// The zero value uses the package defaults.
type Options struct {
	// NotebookMetaKeys lists notebook-level metadata keys to retain.
	// Defaults to {"kernelspec"}.
	NotebookMetaKeys []string

	// CellMetaKeys lists per-cell metadata keys to retain.
	// Defaults to none.
	CellMetaKeys []string
}

// DefaultOptions returns the default metadata-key selectors.
func DefaultOptions() Options {
	return Options{
		NotebookMetaKeys: []string{"kernelspec"},
		CellMetaKeys:     nil,
	}
}

// Result is the output of fingerprinting a notebook: its canonical form
// together with the hex digest over that form's serialized bytes.
type Result struct {
	Canonical *notebook.Doc
	Digest    string
}

// Fingerprint canonicalizes doc per opts and returns its canonical form and
// hex digest. doc is not mutated; canonicalization operates on a deep copy.
func Fingerprint(doc *notebook.Doc, opts Options) (Result, error) {
	canonical, err := Canonicalize(doc, opts)
	if err != nil {
		return Result{}, err
	}

	digest, err := Digest(canonical)
	if err != nil {
		return Result{}, err
	}

	return Result{Canonical: canonical, Digest: digest}, nil
}

// Canonicalize reduces doc to its cache-relevant form, applied to a deep copy:
//  1. normalize to the supported format version, failing if the input
//     minor version is newer than this implementation understands;
//  2. drop every non-code cell;
//  3. rewrite every surviving cell to {kind: code, source, metadata:
//     filtered, execution_count: nil, outputs: []}, and filter notebook
//     metadata to the selected keys.
func Canonicalize(doc *notebook.Doc, opts Options) (*notebook.Doc, error) {
	if doc == nil {
		return nil, errors.New("fingerprint: notebook is nil")
	}

	if doc.FormatMinor > notebook.MaxSupportedFormatMinor {
		return nil, fmt.Errorf("%w: nbformat_minor %d exceeds supported maximum %d",
			ErrUnsupportedFormat, doc.FormatMinor, notebook.MaxSupportedFormatMinor)
	}

	opts = withDefaults(opts)

	canonical := &notebook.Doc{
		FormatMajor: notebook.SupportedFormatMajor,
		FormatMinor: 4,
		Metadata:    filterKeys(doc.Metadata, opts.NotebookMetaKeys),
		Cells:       make([]notebook.Cell, 0, len(doc.Cells)),
	}

	for _, cell := range doc.Cells {
		if cell.Kind != notebook.KindCode {
			continue
		}

		canonical.Cells = append(canonical.Cells, notebook.Cell{
			Kind:           notebook.KindCode,
			Source:         cell.Source,
			Metadata:       filterKeys(cell.Metadata, opts.CellMetaKeys),
			ExecutionCount: nil,
			Outputs:        nil,
		})
	}

	return canonical, nil
}

// PrepareForStorage returns a deep copy of doc suitable for writing as a
// blob: every non-code cell's source and metadata is blanked but the cell
// itself stays in place, preserving cell indices for diffing, while every
// code cell (including its outputs and execution_count) is left untouched.
// This mirrors the original jupyter_cache's _prepare_nb_for_commit, which
// blanks non-code content but never strips outputs, since merge_into needs
// the stored notebook's outputs to rehydrate a caller's document.
func PrepareForStorage(doc *notebook.Doc) (*notebook.Doc, error) {
	prepared, err := doc.Clone()
	if err != nil {
		return nil, fmt.Errorf("fingerprint: clone for storage: %w", err)
	}

	for i := range prepared.Cells {
		if prepared.Cells[i].Kind == notebook.KindCode {
			continue
		}

		prepared.Cells[i].Source = ""
		prepared.Cells[i].Metadata = map[string]json.RawMessage{}
	}

	return prepared, nil
}

// Digest serializes the canonical notebook deterministically and returns
// the lowercase hex MD5 digest of its UTF-8 bytes.
func Digest(canonical *notebook.Doc) (string, error) {
	serialized, err := notebook.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("fingerprint: serialize canonical form: %w", err)
	}

	sum := md5.Sum(serialized) //nolint:gosec // fixed 128-bit digest for content addressing

	return hex.EncodeToString(sum[:]), nil
}

func withDefaults(opts Options) Options {
	if opts.NotebookMetaKeys == nil {
		opts.NotebookMetaKeys = DefaultOptions().NotebookMetaKeys
	}

	return opts
}

func filterKeys(src map[string]json.RawMessage, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))

	for _, k := range keys {
		if v, ok := src[k]; ok {
			out[k] = v
		}
	}

	return out
}
