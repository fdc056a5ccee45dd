// Package impexp reads and writes the dashboard's exchange formats: the full
// JSON backup of the ledger and the semicolon-separated bulk-entry sheet.
package impexp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"secovi/internal/core"
)

// BackupFilename is the download name of a backup taken at t.
func BackupFilename(t time.Time) string {
	return "database_secovi_backup_" + t.UTC().Format("2006-01-02") + ".json"
}

// ExportBackup writes the ledger as indented JSON.
func ExportBackup(w io.Writer, l core.Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// ParseBackup decodes a backup document. Anything that is not a JSON object
// shaped like a ledger is rejected with core.ErrInvalidBackup.
func ParseBackup(r io.Reader) (core.Ledger, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", core.ErrInvalidBackup)
	}
	var l core.Ledger
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidBackup, err)
	}
	for y, yd := range l {
		if yd == nil {
			return nil, fmt.Errorf("%w: year %d is null", core.ErrInvalidBackup, y)
		}
		for m, md := range yd {
			if md == nil {
				return nil, fmt.Errorf("%w: %s/%d is null", core.ErrInvalidBackup, m, y)
			}
		}
	}
	return l, nil
}
