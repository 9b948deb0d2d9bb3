// Package graphmetrics navigates precomputed graph-theory metric stores
// produced by connectome analysis toolboxes and saved as MAT files. A store
// holds, per thresholding family, a list of metric sets indexed by a parallel
// list of threshold values; each metric is either a single whole-network
// scalar or a scalar plus a per-region series.
package graphmetrics

import (
	"github.com/cockroachdb/errors"

	"neurofeat/pkg/matfile"
)

// ErrThresholdNotFound is returned when a requested threshold value has no
// exact match in the store's value list for the chosen family.
var ErrThresholdNotFound = errors.New("graphmetrics: no exact match for threshold value")

// ErrUnknownMetric is returned when a metric name is absent from the
// selected metric set.
var ErrUnknownMetric = errors.New("graphmetrics: unknown metric")

// ErrNoNodalDimension is returned when a nodal series is requested from a
// metric that only carries a whole-network scalar.
var ErrNoNodalDimension = errors.New("graphmetrics: metric has no nodal dimension")

// ErrSchema is returned when a mat file does not have the expected result
// layout.
var ErrSchema = errors.New("graphmetrics: unexpected store layout")

// ThresholdType selects which thresholding family of a store to search.
type ThresholdType int

const (
	// Intensity selects results thresholded by correlation intensity.
	Intensity ThresholdType = iota

	// Sparsity selects results thresholded by network sparsity.
	Sparsity
)

func (t ThresholdType) String() string {
	switch t {
	case Intensity:
		return "intensity"
	case Sparsity:
		return "sparsity"
	}
	return "unknown"
}

// ParseThresholdType converts a configuration string into a ThresholdType.
func ParseThresholdType(s string) (ThresholdType, error) {
	switch s {
	case "intensity":
		return Intensity, nil
	case "sparsity":
		return Sparsity, nil
	}
	return 0, errors.Newf("graphmetrics: unknown threshold type %q", s)
}

// matVarNames returns the workspace variable names carrying the family's
// threshold list and result list, as written by the analysis toolbox.
func (t ThresholdType) matVarNames() (values, results string) {
	if t == Sparsity {
		return "thres_spar_use", "calc_rsts_spar"
	}
	return "thres_corr_use", "calc_rsts_corr"
}

// Scope selects between a metric's whole-network scalar and its per-region
// series.
type Scope int

const (
	// ScopeGlobal requests the whole-network scalar.
	ScopeGlobal Scope = iota

	// ScopeNodal requests the per-region series.
	ScopeNodal
)

// Record is one metric's decoded payload: the global scalar is always
// present; the nodal series only for metrics computed per region. Which
// metrics carry a nodal series is a property of the producing toolbox that
// callers must know; Select reports ErrNoNodalDimension on a mismatch.
type Record struct {
	Global   float64
	Nodal    []float64
	HasNodal bool
}

// MetricSet is one threshold's worth of metrics, keyed by metric name.
type MetricSet map[string]Record

// family is one thresholding strategy's parallel (values, sets) lists.
type family struct {
	values []float64
	sets   []MetricSet
}

// Store is a fully decoded metric store: both thresholding families of one
// subject's connectome results.
type Store struct {
	intensity family
	sparsity  family
}

func (s *Store) family(t ThresholdType) *family {
	if t == Sparsity {
		return &s.sparsity
	}
	return &s.intensity
}

// Thresholds returns the stored threshold values for a family. Select
// matches against these bit-exactly, so callers choosing a threshold should
// pick from this list rather than re-deriving the value.
func (s *Store) Thresholds(t ThresholdType) []float64 {
	return s.family(t).values
}

// Select finds the metric set whose threshold value matches exactly, then
// returns the named metric in the requested scope. For ScopeGlobal the
// scalar return is set; for ScopeNodal the series return is set.
//
// The threshold lookup is a bit-exact float64 comparison with no tolerance,
// mirroring how the producing toolbox is driven from a fixed enumerated
// threshold list. A value that was recomputed rather than taken from
// Thresholds of the same store may miss.
func (s *Store) Select(metric string, t ThresholdType, threshold float64, scope Scope) (float64, []float64, error) {
	fam := s.family(t)
	idx := -1
	for i, v := range fam.values {
		if v == threshold {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, nil, errors.Wrapf(ErrThresholdNotFound, "%v in %s list %v", threshold, t, fam.values)
	}

	rec, ok := fam.sets[idx][metric]
	if !ok {
		return 0, nil, errors.Wrapf(ErrUnknownMetric, "%q at %s=%v", metric, t, threshold)
	}
	switch scope {
	case ScopeNodal:
		if !rec.HasNodal {
			return 0, nil, errors.Wrapf(ErrNoNodalDimension, "%q", metric)
		}
		return 0, rec.Nodal, nil
	default:
		return rec.Global, nil, nil
	}
}

// payloadShape tags how a metric's global slot nests in the raw mat tree.
type payloadShape int

const (
	// shapeWrappedGlobal is the regular layout: the global scalar sits
	// inside one extra cell level.
	shapeWrappedGlobal payloadShape = iota

	// shapeResilienceGlobal is the documented irregularity of the
	// "resilience" metric: its global payload nests one level shallower
	// than every other metric's.
	shapeResilienceGlobal
)

// metricResilience is the one metric name with an irregular global layout.
const metricResilience = "resilience"

func shapeFor(metric string) payloadShape {
	if metric == metricResilience {
		return shapeResilienceGlobal
	}
	return shapeWrappedGlobal
}

// DecodeStore builds a typed Store from a decoded mat file. The special
// cases of the raw layout (the resilience nesting depth) are resolved here,
// so Select never touches raw nodes.
func DecodeStore(f *matfile.File) (*Store, error) {
	store := &Store{}
	for _, t := range []ThresholdType{Intensity, Sparsity} {
		fam, err := decodeFamily(f, t)
		if err != nil {
			return nil, err
		}
		*store.family(t) = fam
	}
	return store, nil
}

func decodeFamily(f *matfile.File, t ThresholdType) (family, error) {
	valuesName, resultsName := t.matVarNames()

	valuesNode, ok := f.Var(valuesName)
	if !ok {
		return family{}, errors.Wrapf(ErrSchema, "missing variable %q", valuesName)
	}
	valuesArr, ok := valuesNode.(*matfile.Array)
	if !ok {
		return family{}, errors.Wrapf(ErrSchema, "%q is not a numeric array", valuesName)
	}

	resultsNode, ok := f.Var(resultsName)
	if !ok {
		return family{}, errors.Wrapf(ErrSchema, "missing variable %q", resultsName)
	}
	resultsCell, ok := resultsNode.(*matfile.Cell)
	if !ok {
		return family{}, errors.Wrapf(ErrSchema, "%q is not a cell array", resultsName)
	}
	if len(resultsCell.Elems) != len(valuesArr.Data) {
		return family{}, errors.Wrapf(ErrSchema, "%q has %d entries for %d threshold values",
			resultsName, len(resultsCell.Elems), len(valuesArr.Data))
	}

	fam := family{values: valuesArr.Data}
	for i, elem := range resultsCell.Elems {
		set, err := decodeSet(elem)
		if err != nil {
			return family{}, errors.Wrapf(err, "%s[%d]", resultsName, i)
		}
		fam.sets = append(fam.sets, set)
	}
	return fam, nil
}

func decodeSet(node matfile.Node) (MetricSet, error) {
	st, ok := node.(*matfile.Struct)
	if !ok {
		return nil, errors.Wrap(ErrSchema, "metric set is not a struct")
	}
	set := make(MetricSet, len(st.FieldNames))
	for _, name := range st.FieldNames {
		value, _ := st.Field(name)
		rec, err := decodeRecord(name, value)
		if err != nil {
			return nil, errors.Wrapf(err, "metric %q", name)
		}
		set[name] = rec
	}
	return set, nil
}

func decodeRecord(metric string, node matfile.Node) (Record, error) {
	cell, ok := node.(*matfile.Cell)
	if !ok || len(cell.Elems) == 0 {
		return Record{}, errors.Wrap(ErrSchema, "payload is not a non-empty cell")
	}

	var rec Record
	switch shapeFor(metric) {
	case shapeResilienceGlobal:
		// Resilience skips the wrapping cell; slot 0 is the array itself.
		arr, ok := cell.Elems[0].(*matfile.Array)
		if !ok || len(arr.Data) == 0 {
			return Record{}, errors.Wrap(ErrSchema, "resilience global slot is not an array")
		}
		rec.Global = arr.Data[0]
	default:
		inner, ok := cell.Elems[0].(*matfile.Cell)
		if !ok || len(inner.Elems) != 1 {
			return Record{}, errors.Wrap(ErrSchema, "global slot is not a singleton cell")
		}
		arr, ok := inner.Elems[0].(*matfile.Array)
		if !ok {
			return Record{}, errors.Wrap(ErrSchema, "global slot does not hold an array")
		}
		v, ok := arr.Scalar()
		if !ok {
			return Record{}, errors.Wrap(ErrSchema, "global slot is not scalar")
		}
		rec.Global = v
	}

	if len(cell.Elems) > 1 {
		arr, ok := cell.Elems[1].(*matfile.Array)
		if !ok {
			return Record{}, errors.Wrap(ErrSchema, "nodal slot does not hold an array")
		}
		rec.Nodal = arr.Data
		rec.HasNodal = true
	}
	return rec, nil
}
