package render

import (
	"fmt"
	"os"
	"path/filepath"
)

// IconExt is appended to every output path.
const IconExt = ".png"

// WriteIcon writes data to outputPath + IconExt, creating parent
// directories. It returns the file written.
func WriteIcon(outputPath string, data []byte) (string, error) {
	path := outputPath + IconExt
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return path, fmt.Errorf("create icon directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 icons are public artifacts
		return path, fmt.Errorf("write icon: %w", err)
	}
	return path, nil
}
