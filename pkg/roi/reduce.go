package roi

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat"

	"neurofeat/internal/models"
)

// ErrShapeMismatch is returned when a scalar field does not share the
// mask's grid dimensions. The reducer performs no resampling; aligning the
// two spaces is the caller's responsibility.
var ErrShapeMismatch = errors.New("roi: mask and field dimensions differ")

// Statistic selects the per-region reduction applied by Reduce.
type Statistic int

const (
	// StatMean is the arithmetic mean of the field over the region.
	StatMean Statistic = iota

	// StatVolume is the region's voxel count scaled by the mask's unit
	// voxel volume. The field's values are ignored; only the mask's
	// partition matters.
	StatVolume
)

// String returns the statistic's name as used in feature-column defaults.
func (s Statistic) String() string {
	switch s {
	case StatMean:
		return "Mean"
	case StatVolume:
		return "Volume"
	}
	return "Unknown"
}

// Entry is one region's reduced value.
type Entry struct {
	// Label is the region's identifier as assigned by the mask.
	Label int

	// Value is the reduced statistic for the region.
	Value float64
}

// Result maps each mask label to its reduced statistic, in the mask's label
// iteration order. It is computed fresh on every Reduce call.
type Result []Entry

// Value returns the entry for a label and whether it exists.
func (r Result) Value(label int) (float64, bool) {
	for _, e := range r {
		if e.Label == label {
			return e.Value, true
		}
	}
	return 0, false
}

// Reduce computes one statistic per mask label over the given field. The
// result has exactly one entry per label, in the mask's label order, and is
// deterministic for a fixed (mask, field) pair.
//
// A label with no assigned voxels yields math.NaN() for StatMean and 0 for
// StatVolume. NaN (rather than omission or zero) keeps table shape stable
// across subjects sharing an atlas while staying distinguishable from a
// genuine zero mean.
func Reduce(m *Mask, field *models.Volume, statistic Statistic) (Result, error) {
	if !m.SameShape(field) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"mask %dx%dx%d vs field %dx%dx%d",
			m.nx, m.ny, m.nz, field.Nx, field.Ny, field.Nz)
	}

	result := make(Result, 0, len(m.labels))
	for _, label := range m.labels {
		positions := m.positions[label]
		var value float64
		switch statistic {
		case StatVolume:
			value = float64(len(positions)) * m.unitVolume
		case StatMean:
			if len(positions) == 0 {
				value = math.NaN()
				break
			}
			samples := make([]float64, len(positions))
			for i, p := range positions {
				samples[i] = field.Data[p]
			}
			value = stat.Mean(samples, nil)
		default:
			return nil, errors.Newf("roi: unknown statistic %d", statistic)
		}
		result = append(result, Entry{Label: label, Value: value})
	}
	return result, nil
}
