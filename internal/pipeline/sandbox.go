package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// prepareSandbox resolves the working directory for one notebook
// execution. In-place mode reuses the notebook's own parent
// directory; temp-directory mode creates a fresh directory and copies
// every declared asset into it, preserving its path relative to the
// notebook's parent.
func prepareSandbox(mode SandboxMode, notebookURI string, assets []string) (dir string, cleanup func(), err error) {
	parent := filepath.Dir(notebookURI)

	if mode == SandboxInPlace {
		return parent, func() {}, nil
	}

	tmp, err := os.MkdirTemp("", "notecache-sandbox-*")
	if err != nil {
		return "", nil, fmt.Errorf("pipeline: create sandbox: %w", err)
	}

	cleanup = func() { _ = os.RemoveAll(tmp) }

	for _, asset := range assets {
		rel, relErr := filepath.Rel(parent, asset)
		if relErr != nil {
			cleanup()

			return "", nil, fmt.Errorf("pipeline: relative asset path %s: %w", asset, relErr)
		}

		dest := filepath.Join(tmp, rel)

		if copyErr := copyFile(asset, dest); copyErr != nil {
			cleanup()

			return "", nil, fmt.Errorf("pipeline: copy asset %s: %w", asset, copyErr)
		}
	}

	return tmp, cleanup, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	err = os.MkdirAll(filepath.Dir(dest), 0o750)
	if err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)

	return err
}
