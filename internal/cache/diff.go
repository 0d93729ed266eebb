package cache

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/notecache/notecache/internal/fingerprint"
	"github.com/notecache/notecache/internal/notebook"
)

// CellDiff describes the difference at one cell index. Non-code cells are
// never reported, since both the stored and the candidate notebook have
// their non-code content blanked before comparison.
type CellDiff struct {
	Index      int
	SourceDiff string
	Unchanged  bool
}

// Diff prepares the caller's notebook the same way stored notebooks are
// prepared (non-code cells
// blanked in place, so cell indices still line up with the stored
// notebook), then diff code-cell sources index by index. Because non-code
// cells are blanked identically on both sides, the diff never reports
// output or prose differences.
func (e *Engine) Diff(ctx context.Context, id int64, doc *notebook.Doc) ([]CellDiff, error) {
	bundle, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	candidate, err := fingerprint.PrepareForStorage(doc)
	if err != nil {
		return nil, fmt.Errorf("cache: prepare candidate for diff: %w", err)
	}

	stored := bundle.Notebook

	n := len(stored.Cells)
	if len(candidate.Cells) > n {
		n = len(candidate.Cells)
	}

	diffs := make([]CellDiff, 0, n)

	for i := 0; i < n; i++ {
		var candCell, storedCell notebook.Cell

		if i < len(candidate.Cells) {
			candCell = candidate.Cells[i]
		}

		if i < len(stored.Cells) {
			storedCell = stored.Cells[i]
		}

		if storedCell.Kind != notebook.KindCode && candCell.Kind != notebook.KindCode {
			continue
		}

		if candCell.Source == storedCell.Source {
			diffs = append(diffs, CellDiff{Index: i, Unchanged: true})

			continue
		}

		diffs = append(diffs, CellDiff{
			Index:      i,
			SourceDiff: cmp.Diff(storedCell.Source, candCell.Source),
		})
	}

	return diffs, nil
}
