package notebook

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// cellFenceCode and cellFenceMarkdown delimit cells in the lightweight
// text-markup notebook format: a plain-text notebook representation used
// by editors that would rather not round-trip full JSON. Each fence starts
// a new cell; text up to the next fence (or EOF) is that cell's source.
const (
	cellFenceCode     = "%% code"
	cellFenceMarkdown = "%% markdown"
)

// ReadText parses the lightweight, percent-delimited text notebook format
// exposed under the "text" reader key. It carries no kernelspec or
// per-cell metadata; callers relying on kernelspec-scoped fingerprinting
// should use the default JSON reader instead.
func ReadText(r io.Reader) (*Doc, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	doc := &Doc{
		FormatMajor: SupportedFormatMajor,
		FormatMinor: 0,
		Metadata:    map[string]json.RawMessage{},
	}

	var (
		cur     *Cell
		builder strings.Builder
	)

	flush := func() {
		if cur == nil {
			return
		}

		cur.Source = strings.TrimRight(builder.String(), "\n")
		doc.Cells = append(doc.Cells, *cur)
		builder.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == cellFenceCode:
			flush()
			cur = &Cell{Kind: KindCode, Metadata: map[string]json.RawMessage{}}

			continue
		case line == cellFenceMarkdown:
			flush()
			cur = &Cell{Kind: KindProse, Metadata: map[string]json.RawMessage{}}

			continue
		}

		if cur == nil {
			// Text before the first fence is ignored, matching the
			// original format's tolerance of a leading blank preamble.
			continue
		}

		builder.WriteString(line)
		builder.WriteByte('\n')
	}

	flush()

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("notebook: read text: %w", err)
	}

	return doc, nil
}

// WriteText serializes a notebook to the lightweight text-markup format.
// Only Kind and Source survive the round trip; outputs, execution counts
// and metadata are not representable in this format and are dropped.
func WriteText(w io.Writer, doc *Doc) error {
	for _, c := range doc.Cells {
		fence := cellFenceMarkdown
		if c.Kind == KindCode {
			fence = cellFenceCode
		}

		_, err := fmt.Fprintf(w, "%s\n%s\n", fence, c.Source)
		if err != nil {
			return fmt.Errorf("notebook: write text: %w", err)
		}
	}

	return nil
}
