package catreport

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
)

const catReportXML = `<?xml version="1.0"?>
<S>
  <qualityratings>
    <res_RMS>2.5</res_RMS>
    <NCR>1.75</NCR>
    <ICR>2.0</ICR>
    <IQR>2.25</IQR>
  </qualityratings>
  <subjectmeasures>
    <vol_TIV>1520.5</vol_TIV>
    <vol_abs_CGW>[260.25 640.5 480.75]</vol_abs_CGW>
  </subjectmeasures>
</S>`

const catROIsXML = `<?xml version="1.0"?>
<S>
  <aparc_BN_Atlas>
    <names>
      <item>lA8m/9m_l</item>
      <item>rA8m/9m_r</item>
      <item>Hipp_sub</item>
    </names>
    <data>
      <thickness>2.81 NaN 3.05</thickness>
    </data>
  </aparc_BN_Atlas>
</S>`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Writing fixture failed: %v", err)
	}
	return path
}

// TestParseQuality verifies the grade-to-score conversion: each rating is
// reported as 10.5 minus the raw grade.
func TestParseQuality(t *testing.T) {
	path := writeFixture(t, "cat_t1.xml", catReportXML)

	q, err := ParseQuality(path)
	if err != nil {
		t.Fatalf("ParseQuality failed: %v", err)
	}
	want := Quality{Resolution: 8, Noise: 8.75, Bias: 8.5, IQR: 8.25}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("Unexpected quality (-want +got):\n%s", diff)
	}
}

// TestParseTotalVolumes verifies TIV extraction and the bracketed CGW list
// split into CSF, GMV and WMV.
func TestParseTotalVolumes(t *testing.T) {
	path := writeFixture(t, "cat_t1.xml", catReportXML)

	v, err := ParseTotalVolumes(path)
	if err != nil {
		t.Fatalf("ParseTotalVolumes failed: %v", err)
	}
	want := TotalVolumes{TIV: 1520.5, CSF: 260.25, GMV: 640.5, WMV: 480.75}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("Unexpected volumes (-want +got):\n%s", diff)
	}
}

// TestParseROIThickness verifies name/value zipping and the NaN sentinel
// replacement.
func TestParseROIThickness(t *testing.T) {
	path := writeFixture(t, "catROIs_t1.xml", catROIsXML)

	regions, err := ParseROIThickness(path, "aparc_BN_Atlas")
	if err != nil {
		t.Fatalf("ParseROIThickness failed: %v", err)
	}
	want := []RegionThickness{
		{Name: "lA8m/9m_l", Thickness: 2.81},
		{Name: "rA8m/9m_r", Thickness: MissingValue},
		{Name: "Hipp_sub", Thickness: 3.05},
	}
	if diff := cmp.Diff(want, regions); diff != "" {
		t.Errorf("Unexpected regions (-want +got):\n%s", diff)
	}
	for _, r := range regions {
		if math.IsNaN(r.Thickness) {
			t.Errorf("Region %s leaked a NaN through the sentinel rule", r.Name)
		}
	}
}

// TestParseROIThicknessMissingAtlas verifies the missing-node error.
func TestParseROIThicknessMissingAtlas(t *testing.T) {
	path := writeFixture(t, "catROIs_t1.xml", catROIsXML)

	_, err := ParseROIThickness(path, "hammers")
	if !errors.Is(err, ErrMissingNode) {
		t.Errorf("Expected ErrMissingNode, got %v", err)
	}
}

// TestParseQualityMissingFile verifies the not-found sentinel.
func TestParseQualityMissingFile(t *testing.T) {
	_, err := ParseQuality(filepath.Join(t.TempDir(), "absent.xml"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
