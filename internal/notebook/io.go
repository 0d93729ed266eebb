package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Read parses a notebook from its canonical on-disk JSON form.
//
// This is the reference implementation of the "default" reader key
// consumed by internal/reader: the full interchange-format parser is an
// external collaborator, but the cache still needs a concrete notebook
// codec to operate end to end, so this package provides the minimal
// JSON-based one the rest of the module is tested against.
func Read(r io.Reader) (*Doc, error) {
	dec := json.NewDecoder(r)

	var doc Doc

	err := dec.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("notebook: decode: %w", err)
	}

	if doc.FormatMajor == 0 {
		doc.FormatMajor = SupportedFormatMajor
	}

	return &doc, nil
}

// Write serializes a notebook as canonical notebook text: UTF-8 JSON with
// one-space indentation and a trailing newline. Map keys are emitted in
// Go's default encoding/json order (lexicographic), which is what makes
// the serialization deterministic across repeated calls within this
// implementation.
func Write(w io.Writer, doc *Doc) error {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)

	err := enc.Encode(doc)
	if err != nil {
		return fmt.Errorf("notebook: encode: %w", err)
	}

	_, err = w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("notebook: write: %w", err)
	}

	return nil
}

// Marshal is a convenience wrapper around Write that returns bytes.
func Marshal(doc *Doc) ([]byte, error) {
	var buf bytes.Buffer

	err := Write(&buf, doc)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal is a convenience wrapper around Read for byte slices.
func Unmarshal(data []byte) (*Doc, error) {
	return Read(bytes.NewReader(data))
}
