package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notecache/notecache/internal/fingerprint"
	"github.com/notecache/notecache/internal/notebook"
)

// MergeInto finds the matching cached record for doc, then rehydrates
// doc's code cells (in document order, first-code-cell-for-first-code-cell)
// with the cached notebook's code cells, merges selected notebook/cell
// metadata keys (cached wins), and preserves the caller's cell
// identifiers.
func (e *Engine) MergeInto(ctx context.Context, doc *notebook.Doc, opts fingerprint.Options) (int64, *notebook.Doc, error) {
	rec, err := e.Match(ctx, doc)
	if err != nil {
		return 0, nil, err
	}

	bundle, err := e.Get(ctx, rec.ID)
	if err != nil {
		return 0, nil, err
	}

	merged, err := doc.Clone()
	if err != nil {
		return 0, nil, fmt.Errorf("cache: clone caller notebook: %w", err)
	}

	cachedCode := bundle.Notebook.CodeCells()

	codeIdx := 0

	for i := range merged.Cells {
		if merged.Cells[i].Kind != notebook.KindCode {
			continue
		}

		if codeIdx >= len(cachedCode) {
			break
		}

		cachedCell := cachedCode[codeIdx]

		// Cells[i].ID is left untouched: the caller's cell identifier is
		// preserved across the merge.
		merged.Cells[i].Source = cachedCell.Source
		merged.Cells[i].ExecutionCount = cachedCell.ExecutionCount
		merged.Cells[i].Outputs = cachedCell.Outputs
		merged.Cells[i].Metadata = mergeMetadata(merged.Cells[i].Metadata, cachedCell.Metadata, opts.CellMetaKeys)

		codeIdx++
	}

	merged.Metadata = mergeMetadata(merged.Metadata, bundle.Notebook.Metadata, opts.NotebookMetaKeys)

	return rec.ID, merged, nil
}

func mergeMetadata(base, overlay map[string]json.RawMessage, keys []string) map[string]json.RawMessage {
	if base == nil {
		base = map[string]json.RawMessage{}
	}

	for _, k := range keys {
		v, ok := overlay[k]
		if ok {
			base[k] = v
		}
	}

	return base
}
