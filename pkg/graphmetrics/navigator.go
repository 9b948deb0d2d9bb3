package graphmetrics

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"neurofeat/pkg/matfile"
)

// storeCacheSize bounds how many decoded stores a navigator keeps. A
// subject rarely has more than one or two metric mat files, so the bound
// exists only to keep a long-lived navigator from accumulating stores
// across subjects.
const storeCacheSize = 8

// Navigator loads metric stores on demand and answers metric selections
// against them. The first selection for a given mat path decodes the whole
// file; later selections against the same path reuse the cached store no
// matter which threshold or scope they ask for. There is no invalidation:
// a store is assumed immutable for the navigator's lifetime.
//
// A Navigator is not safe for concurrent use; each logical thread of
// control should own its own.
type Navigator struct {
	load  func(path string) (*matfile.File, error)
	cache *lru.Cache[string, *Store]
}

// NewNavigator returns a navigator reading stores from disk.
func NewNavigator() *Navigator {
	return newNavigator(matfile.Open)
}

func newNavigator(load func(path string) (*matfile.File, error)) *Navigator {
	cache, err := lru.New[string, *Store](storeCacheSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(err)
	}
	return &Navigator{load: load, cache: cache}
}

// Store returns the decoded store for a mat path, loading it on first use.
func (n *Navigator) Store(path string) (*Store, error) {
	if store, ok := n.cache.Get(path); ok {
		return store, nil
	}
	f, err := n.load(path)
	if err != nil {
		return nil, err
	}
	store, err := DecodeStore(f)
	if err != nil {
		return nil, err
	}
	n.cache.Add(path, store)
	return store, nil
}

// Global returns a metric's whole-network scalar at an exactly matching
// threshold value.
func (n *Navigator) Global(path, metric string, t ThresholdType, threshold float64) (float64, error) {
	store, err := n.Store(path)
	if err != nil {
		return 0, err
	}
	v, _, err := store.Select(metric, t, threshold, ScopeGlobal)
	return v, err
}

// Nodal returns a metric's per-region series at an exactly matching
// threshold value. The series length equals the region count of the mask
// the metrics were computed against.
func (n *Navigator) Nodal(path, metric string, t ThresholdType, threshold float64) ([]float64, error) {
	store, err := n.Store(path)
	if err != nil {
		return nil, err
	}
	_, series, err := store.Select(metric, t, threshold, ScopeNodal)
	return series, err
}
