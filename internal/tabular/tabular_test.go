package tabular

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
)

// TestWriteReadRoundTrip verifies rows come back in the order written.
func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roi_gmv.csv")
	header := []string{"ID", "Volume"}
	rows := [][]string{{"1", "104"}, {"2", "88.5"}, {"7", "0"}}

	if err := WriteRows(path, header, rows); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}
	gotHeader, gotRows, err := ReadRows(path)
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}

	if diff := cmp.Diff(header, gotHeader); diff != "" {
		t.Errorf("Unexpected header (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rows, gotRows); diff != "" {
		t.Errorf("Unexpected rows (-want +got):\n%s", diff)
	}
}

// TestWriteReplacesWholesale verifies a second write fully replaces the
// first, never appends.
func TestWriteReplacesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")

	if err := WriteRows(path, []string{"ID", "A"}, [][]string{{"1", "x"}, {"2", "y"}}); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}
	if err := WriteRows(path, []string{"ID", "B"}, [][]string{{"9", "z"}}); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}

	header, rows, err := ReadRows(path)
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if header[1] != "B" || len(rows) != 1 {
		t.Errorf("Expected the second table only, got header %v with %d rows", header, len(rows))
	}
}

// TestReadMissingFile verifies the not-found sentinel.
func TestReadMissingFile(t *testing.T) {
	_, _, err := ReadRows(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
