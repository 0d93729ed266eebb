package fingerprint_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/notecache/notecache/internal/fingerprint"
	"github.com/notecache/notecache/internal/notebook"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func sampleDoc() *notebook.Doc {
	one := 1
	two := 2

	return &notebook.Doc{
		FormatMajor: 4,
		FormatMinor: 5,
		Metadata: map[string]json.RawMessage{
			"kernelspec": rawString("python3"),
			"unrelated":  rawString("ignored"),
		},
		Cells: []notebook.Cell{
			{Kind: notebook.KindProse, Source: "# intro"},
			{
				Kind:           notebook.KindCode,
				Source:         "a=1\nprint(a)",
				ExecutionCount: &one,
				Outputs:        []notebook.Output{{Kind: notebook.OutputStream, Name: "stdout", Text: "1\n"}},
			},
			{
				Kind:           notebook.KindCode,
				Source:         "b=a+1",
				ExecutionCount: &two,
			},
		},
	}
}

func TestCanonicalize_DropsNonCodeCellsAndStripsOutputs(t *testing.T) {
	t.Parallel()

	canonical, err := fingerprint.Canonicalize(sampleDoc(), fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if len(canonical.Cells) != 2 {
		t.Fatalf("len(cells) = %d, want 2", len(canonical.Cells))
	}

	for i, c := range canonical.Cells {
		if c.Kind != notebook.KindCode {
			t.Fatalf("cell %d kind = %q, want code", i, c.Kind)
		}

		if c.ExecutionCount != nil {
			t.Fatalf("cell %d execution_count = %v, want nil", i, *c.ExecutionCount)
		}

		if len(c.Outputs) != 0 {
			t.Fatalf("cell %d outputs not empty", i)
		}
	}

	if _, ok := canonical.Metadata["unrelated"]; ok {
		t.Fatal("unrelated metadata key leaked into canonical form")
	}

	if _, ok := canonical.Metadata["kernelspec"]; !ok {
		t.Fatal("kernelspec metadata key dropped from canonical form")
	}
}

func TestCanonicalize_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	doc.FormatMinor = notebook.MaxSupportedFormatMinor + 1

	_, err := fingerprint.Canonicalize(doc, fingerprint.DefaultOptions())
	if !errors.Is(err, fingerprint.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

// TestFingerprint_StableAcrossProseAndOutputChanges checks that modifying
// only prose cells or only code-cell outputs does not change the
// fingerprint.
func TestFingerprint_StableAcrossProseAndOutputChanges(t *testing.T) {
	t.Parallel()

	base := sampleDoc()

	baseResult, err := fingerprint.Fingerprint(base, fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	mutated := sampleDoc()
	mutated.Cells = append(mutated.Cells, notebook.Cell{Kind: notebook.KindProse, Source: "new prose"})
	mutated.Cells[1].Outputs = []notebook.Output{{Kind: notebook.OutputStream, Name: "stdout", Text: "different\n"}}
	mutated.Cells[1].ID = "changed-id"

	mutatedResult, err := fingerprint.Fingerprint(mutated, fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	if baseResult.Digest != mutatedResult.Digest {
		t.Fatalf("digest changed: %s != %s", baseResult.Digest, mutatedResult.Digest)
	}
}

// TestFingerprint_ChangesWithCodeSourceOrMetadata checks that editing code
// source or tracked metadata changes the digest.
func TestFingerprint_ChangesWithCodeSourceOrMetadata(t *testing.T) {
	t.Parallel()

	base := sampleDoc()

	baseResult, err := fingerprint.Fingerprint(base, fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	sourceChanged := sampleDoc()
	sourceChanged.Cells[2].Source = "b=a+2"

	sourceResult, err := fingerprint.Fingerprint(sourceChanged, fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	if baseResult.Digest == sourceResult.Digest {
		t.Fatal("digest unchanged after code source edit")
	}

	metaChanged := sampleDoc()
	metaChanged.Metadata["kernelspec"] = rawString("python2")

	metaResult, err := fingerprint.Fingerprint(metaChanged, fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	if baseResult.Digest == metaResult.Digest {
		t.Fatal("digest unchanged after kernelspec edit")
	}
}

// TestFingerprint_IdenticalCanonicalFormsMatch checks that byte-identical
// canonical forms produce the same digest.
func TestFingerprint_IdenticalCanonicalFormsMatch(t *testing.T) {
	t.Parallel()

	a, err := fingerprint.Fingerprint(sampleDoc(), fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("fingerprint a: %v", err)
	}

	b, err := fingerprint.Fingerprint(sampleDoc(), fingerprint.DefaultOptions())
	if err != nil {
		t.Fatalf("fingerprint b: %v", err)
	}

	if a.Digest != b.Digest {
		t.Fatalf("digests differ for byte-identical canonical forms: %s != %s", a.Digest, b.Digest)
	}
}

func TestFingerprint_DeterministicAcrossRepeatedCalls(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()

	digests := make(map[string]bool)

	for range 5 {
		result, err := fingerprint.Fingerprint(doc, fingerprint.DefaultOptions())
		if err != nil {
			t.Fatalf("fingerprint: %v", err)
		}

		digests[result.Digest] = true
	}

	if len(digests) != 1 {
		t.Fatalf("got %d distinct digests across repeated calls, want 1", len(digests))
	}
}
