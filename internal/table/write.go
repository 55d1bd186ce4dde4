package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/scuartasr/tfm-tuberc/internal/utils"
)

// Write renders t as comma-separated UTF-8 with a header row.
func Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes t to path atomically, creating parent directories.
func WriteFile(path string, t *Table) error {
	var buf bytes.Buffer
	if err := Write(&buf, t); err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}
