package unlinked

import (
	"bufio"
	"fmt"
	"io"
)

// Export writes one path per line.
func Export(w io.Writer, files []string) error {
	bw := bufio.NewWriter(w)
	for _, f := range files {
		if _, err := fmt.Fprintln(bw, f); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
