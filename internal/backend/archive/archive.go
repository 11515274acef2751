// Package archive bundles rendered images into a single ZIP download.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
)

// Entry is one file to place into the archive.
type Entry struct {
	Name string
	Data []byte
}

// Write streams entries into w as a ZIP archive, one member per entry in
// the given order.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		member, err := zw.Create(entry.Name)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", entry.Name, err)
		}
		if _, err = member.Write(entry.Data); err != nil {
			return fmt.Errorf("failed to write %s into archive: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}
