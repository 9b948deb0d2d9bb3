package graphmetrics

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"

	"neurofeat/pkg/matfile"
)

// wrappedGlobal builds the regular global payload: the scalar inside one
// extra cell level.
func wrappedGlobal(v float64) matfile.Node {
	return &matfile.Cell{
		Dims:  []int{1, 1},
		Elems: []matfile.Node{&matfile.Array{Dims: []int{1, 1}, Data: []float64{v}}},
	}
}

// metricSetNode builds one threshold's raw metric struct with a regular
// global+nodal metric, a global-only metric, and the irregular resilience
// payload.
func metricSetNode(global float64, nodal []float64) matfile.Node {
	return &matfile.Struct{
		Dims:       []int{1, 1},
		FieldNames: []string{"degree", "transitivity", "resilience"},
		Fields: map[string][]matfile.Node{
			"degree": {&matfile.Cell{
				Dims: []int{1, 2},
				Elems: []matfile.Node{
					wrappedGlobal(global),
					&matfile.Array{Dims: []int{1, len(nodal)}, Data: nodal},
				},
			}},
			"transitivity": {&matfile.Cell{
				Dims:  []int{1, 1},
				Elems: []matfile.Node{wrappedGlobal(global / 2)},
			}},
			// Resilience skips the wrapping cell entirely.
			"resilience": {&matfile.Cell{
				Dims: []int{1, 1},
				Elems: []matfile.Node{
					&matfile.Array{Dims: []int{1, 2}, Data: []float64{global * 10, 0.5}},
				},
			}},
		},
	}
}

// testFile builds a raw mat tree with intensity thresholds 0.1/0.3/0.5 and
// a single sparsity threshold 0.05.
func testFile() *matfile.File {
	return &matfile.File{Vars: map[string]matfile.Node{
		"thres_corr_use": &matfile.Array{Dims: []int{1, 3}, Data: []float64{0.1, 0.3, 0.5}},
		"calc_rsts_corr": &matfile.Cell{
			Dims: []int{3, 1},
			Elems: []matfile.Node{
				metricSetNode(11, []float64{1, 2, 3, 4}),
				metricSetNode(22, []float64{5, 6, 7, 8}),
				metricSetNode(33, []float64{9, 10, 11, 12}),
			},
		},
		"thres_spar_use": &matfile.Array{Dims: []int{1, 1}, Data: []float64{0.05}},
		"calc_rsts_spar": &matfile.Cell{
			Dims:  []int{1, 1},
			Elems: []matfile.Node{metricSetNode(44, []float64{13, 14, 15, 16})},
		},
	}}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := DecodeStore(testFile())
	if err != nil {
		t.Fatalf("DecodeStore failed: %v", err)
	}
	return store
}

// TestSelectGlobalExactMatch verifies that selection picks the metric set
// whose threshold value matches exactly.
func TestSelectGlobalExactMatch(t *testing.T) {
	store := testStore(t)

	v, series, err := store.Select("degree", Intensity, 0.3, ScopeGlobal)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if series != nil {
		t.Errorf("Global selection returned a series: %v", series)
	}
	if v != 22 {
		t.Errorf("Expected degree global 22 at threshold 0.3, got %v", v)
	}
}

// TestSelectThresholdMismatch verifies that any value other than a stored
// threshold fails hard, including a value off by 1e-8.
func TestSelectThresholdMismatch(t *testing.T) {
	store := testStore(t)

	_, _, err := store.Select("degree", Intensity, 0.30000001, ScopeGlobal)
	if !errors.Is(err, ErrThresholdNotFound) {
		t.Errorf("Expected ErrThresholdNotFound, got %v", err)
	}

	// The sparsity list does not contain the intensity thresholds.
	_, _, err = store.Select("degree", Sparsity, 0.3, ScopeGlobal)
	if !errors.Is(err, ErrThresholdNotFound) {
		t.Errorf("Expected ErrThresholdNotFound across families, got %v", err)
	}
}

// TestSelectNodalSeries verifies shape and values of a nodal selection.
func TestSelectNodalSeries(t *testing.T) {
	store := testStore(t)

	_, series, err := store.Select("degree", Intensity, 0.5, ScopeNodal)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if diff := cmp.Diff([]float64{9, 10, 11, 12}, series); diff != "" {
		t.Errorf("Unexpected nodal series (-want +got):\n%s", diff)
	}
}

// TestSelectNodalOfGlobalOnlyMetric verifies that asking for the nodal
// dimension of a global-only metric is reported as a caller error.
func TestSelectNodalOfGlobalOnlyMetric(t *testing.T) {
	store := testStore(t)

	_, _, err := store.Select("transitivity", Intensity, 0.1, ScopeNodal)
	if !errors.Is(err, ErrNoNodalDimension) {
		t.Errorf("Expected ErrNoNodalDimension, got %v", err)
	}
}

// TestSelectResilienceGlobal verifies the irregular unwrap path: the
// resilience global value comes from the bare array in slot 0.
func TestSelectResilienceGlobal(t *testing.T) {
	store := testStore(t)

	v, _, err := store.Select("resilience", Intensity, 0.1, ScopeGlobal)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != 110 {
		t.Errorf("Expected resilience global 110, got %v", v)
	}
}

// TestSelectUnknownMetric verifies the unknown-metric error.
func TestSelectUnknownMetric(t *testing.T) {
	store := testStore(t)

	_, _, err := store.Select("small_worldness", Intensity, 0.1, ScopeGlobal)
	if !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("Expected ErrUnknownMetric, got %v", err)
	}
}

// TestSelectSparsityFamily verifies the second thresholding family resolves
// independently of the first.
func TestSelectSparsityFamily(t *testing.T) {
	store := testStore(t)

	v, _, err := store.Select("degree", Sparsity, 0.05, ScopeGlobal)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != 44 {
		t.Errorf("Expected degree global 44 in sparsity family, got %v", v)
	}
}

// TestThresholds verifies the advertised value lists.
func TestThresholds(t *testing.T) {
	store := testStore(t)

	if diff := cmp.Diff([]float64{0.1, 0.3, 0.5}, store.Thresholds(Intensity)); diff != "" {
		t.Errorf("Unexpected intensity thresholds (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.05}, store.Thresholds(Sparsity)); diff != "" {
		t.Errorf("Unexpected sparsity thresholds (-want +got):\n%s", diff)
	}
}

// TestDecodeStoreLengthMismatch verifies that a results list shorter than
// the threshold list is rejected at decode time.
func TestDecodeStoreLengthMismatch(t *testing.T) {
	f := testFile()
	f.Vars["calc_rsts_corr"] = &matfile.Cell{
		Dims:  []int{1, 1},
		Elems: []matfile.Node{metricSetNode(11, []float64{1})},
	}
	if _, err := DecodeStore(f); !errors.Is(err, ErrSchema) {
		t.Errorf("Expected ErrSchema, got %v", err)
	}
}
