package graphmetrics

import (
	"testing"

	"neurofeat/pkg/matfile"
)

// TestNavigatorCachesStoreLoads verifies that the first selection for a mat
// path loads the store and that later selections reuse it regardless of
// threshold or scope.
func TestNavigatorCachesStoreLoads(t *testing.T) {
	loads := 0
	nav := newNavigator(func(path string) (*matfile.File, error) {
		loads++
		return testFile(), nil
	})

	if _, err := nav.Global("subject/brant.mat", "degree", Intensity, 0.3); err != nil {
		t.Fatalf("Global failed: %v", err)
	}
	if _, err := nav.Nodal("subject/brant.mat", "degree", Intensity, 0.5); err != nil {
		t.Fatalf("Nodal failed: %v", err)
	}
	if _, err := nav.Global("subject/brant.mat", "resilience", Sparsity, 0.05); err != nil {
		t.Fatalf("Global failed: %v", err)
	}
	if loads != 1 {
		t.Errorf("Expected 1 store load for one path, got %d", loads)
	}

	// A different path is a different store.
	if _, err := nav.Global("other/brant.mat", "degree", Intensity, 0.3); err != nil {
		t.Fatalf("Global failed: %v", err)
	}
	if loads != 2 {
		t.Errorf("Expected a second load for a second path, got %d", loads)
	}
}

// TestNavigatorSelectionErrorsAreNotCachedAsStores verifies that a failed
// selection still comes from a cached store, while load failures propagate.
func TestNavigatorSelectionErrorsAreNotCachedAsStores(t *testing.T) {
	loads := 0
	nav := newNavigator(func(path string) (*matfile.File, error) {
		loads++
		return testFile(), nil
	})

	if _, err := nav.Global("brant.mat", "degree", Intensity, 0.99); err == nil {
		t.Error("Expected a threshold mismatch error, got nil")
	}
	if _, err := nav.Global("brant.mat", "degree", Intensity, 0.3); err != nil {
		t.Fatalf("Global failed: %v", err)
	}
	if loads != 1 {
		t.Errorf("Expected the store to be cached despite the failed selection, got %d loads", loads)
	}
}
