// Package tabular reads and writes the small CSV tables the feature
// exporters produce: a header row followed by one row per region.
package tabular

import (
	"encoding/csv"
	"os"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when a table to be read does not exist.
var ErrNotFound = errors.New("tabular: file not found")

// WriteRows writes a header and rows to path as CSV, replacing any existing
// file wholesale. The file handle is released on every exit path; on a
// write error the partially written file is left for the caller's cleanup,
// never silently truncated to look complete.
func WriteRows(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "writing header to %s", path)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return errors.Wrapf(err, "writing row to %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "flushing %s", path)
	}
	return f.Close()
}

// ReadRows reads a CSV table back as its header and data rows.
func ReadRows(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(records) == 0 {
		return nil, nil, errors.Newf("tabular: %s has no header row", path)
	}
	return records[0], records[1:], nil
}
