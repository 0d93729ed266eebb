// Package notebook defines the in-memory representation of a computational
// notebook: an ordered sequence of cells mixing code and prose, plus
// metadata describing the execution kernel.
//
// The format mirrors the widely used notebook interchange format closely
// enough to round-trip through JSON, but only the fields the cache engine
// actually reasons about are modeled.
package notebook

import "encoding/json"

// SupportedFormatMajor is the internal notebook format major version the
// cache normalizes every document to.
const SupportedFormatMajor = 4

// MaxSupportedFormatMinor is the highest minor version this implementation
// understands. Inputs above this trigger ErrUnsupportedFormat upstream in
// the fingerprinter.
const MaxSupportedFormatMinor = 5

// CellKind identifies the kind of a notebook cell.
type CellKind string

const (
	// KindCode is an executable cell.
	KindCode CellKind = "code"
	// KindProse is a narrative/markdown cell.
	KindProse CellKind = "markdown"
	// KindRaw is an opaque, non-executed, non-rendered cell.
	KindRaw CellKind = "raw"
)

// Doc is an in-memory notebook.
type Doc struct {
	Metadata     map[string]json.RawMessage `json:"metadata"`
	Cells        []Cell                     `json:"cells"`
	FormatMajor  int                        `json:"nbformat"`
	FormatMinor  int                        `json:"nbformat_minor"`
}

// Cell is one unit of a notebook.
type Cell struct {
	Kind           CellKind                   `json:"cell_type"`
	Source         string                     `json:"source"`
	Metadata       map[string]json.RawMessage `json:"metadata"`
	ExecutionCount *int                       `json:"execution_count,omitempty"`
	Outputs        []Output                   `json:"outputs,omitempty"`

	// ID is the cell's identifier. Identifiers are stripped from the
	// canonical form used for fingerprinting but kept on the in-memory
	// document; MergeInto aligns cells by code-cell order, not by ID, and
	// leaves the caller's ID in place.
	ID string `json:"id,omitempty"`
}

// OutputKind identifies the shape of a single cell output.
type OutputKind string

const (
	OutputStream       OutputKind = "stream"
	OutputDisplayData  OutputKind = "display_data"
	OutputExecuteResult OutputKind = "execute_result"
	OutputError        OutputKind = "error"
)

// Output is a tagged variant over a code cell's heterogeneous output types.
// Exactly which fields are populated depends on Kind.
type Output struct {
	Kind OutputKind `json:"output_type"`

	// Stream fields.
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`

	// DisplayData / ExecuteResult fields.
	Data           map[string]json.RawMessage `json:"data,omitempty"`
	OutputMetadata map[string]json.RawMessage `json:"metadata,omitempty"`
	ExecutionCount *int                       `json:"execution_count,omitempty"`

	// Error fields.
	ErrorName  string   `json:"ename,omitempty"`
	ErrorValue string   `json:"evalue,omitempty"`
	Traceback  []string `json:"traceback,omitempty"`
}

// CodeCells returns a copy of every code cell, in document order.
func (d *Doc) CodeCells() []Cell {
	out := make([]Cell, 0, len(d.Cells))

	for _, c := range d.Cells {
		if c.Kind == KindCode {
			out = append(out, c)
		}
	}

	return out
}

// KernelSpec returns the raw "kernelspec" metadata submapping, if present.
func (d *Doc) KernelSpec() (json.RawMessage, bool) {
	if d.Metadata == nil {
		return nil, false
	}

	v, ok := d.Metadata["kernelspec"]

	return v, ok
}

// Clone returns a deep copy of the document, safe to mutate independently
// of the original. It round-trips through JSON, which is sufficient since
// every field here is itself JSON-serializable.
func (d *Doc) Clone() (*Doc, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}

	var out Doc

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return nil, err
	}

	return &out, nil
}
