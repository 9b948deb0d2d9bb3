// Package roi implements the region-of-interest aggregation engine: a Mask
// partitions voxel space into labeled regions, and Reduce collapses a scalar
// field into one statistic per region.
package roi

import (
	"math"
	"sort"

	"neurofeat/internal/models"
)

// Mask is a partition of voxel positions into labeled regions, built once
// from an atlas label volume. Each voxel belongs to at most one label;
// zero-valued voxels are background and belong to none. A Mask is immutable
// after construction and is never mutated by Reduce, so one Mask may be
// shared across any number of reductions.
type Mask struct {
	labels     []int
	positions  map[int][]int
	nx, ny, nz int
	unitVolume float64
}

// NewMask builds a mask from an atlas volume. Voxel values are rounded to
// the nearest integer; every distinct nonzero integer becomes a label whose
// region is the set of voxels carrying it. Labels iterate in ascending
// numeric order, which fixes the row order of every downstream table.
func NewMask(atlas *models.Volume) *Mask {
	m := &Mask{
		positions:  make(map[int][]int),
		nx:         atlas.Nx,
		ny:         atlas.Ny,
		nz:         atlas.Nz,
		unitVolume: atlas.VoxelVolume(),
	}
	if m.unitVolume == 0 {
		m.unitVolume = 1
	}
	for i, v := range atlas.Data {
		if math.IsNaN(v) {
			continue
		}
		label := int(math.Round(v))
		if label == 0 {
			continue
		}
		m.positions[label] = append(m.positions[label], i)
	}
	m.labels = make([]int, 0, len(m.positions))
	for label := range m.positions {
		m.labels = append(m.labels, label)
	}
	sort.Ints(m.labels)
	return m
}

// NewMaskWithLabels builds a mask from an atlas volume but fixes the label
// universe explicitly, in the order given. Labels present in the universe
// but absent from the atlas volume get an empty region, so an atlas missing
// a region still yields a row for it (see Reduce for the empty-region
// policy). Atlas labels outside the universe are dropped.
func NewMaskWithLabels(atlas *models.Volume, labels []int) *Mask {
	full := NewMask(atlas)
	m := &Mask{
		positions:  make(map[int][]int, len(labels)),
		nx:         full.nx,
		ny:         full.ny,
		nz:         full.nz,
		unitVolume: full.unitVolume,
	}
	m.labels = append(m.labels, labels...)
	for _, label := range labels {
		m.positions[label] = full.positions[label]
	}
	return m
}

// Labels returns the label iteration order. The returned slice is shared;
// callers must not modify it.
func (m *Mask) Labels() []int {
	return m.labels
}

// Positions returns the flat voxel indices belonging to a label, nil when
// the label has no assigned voxels.
func (m *Mask) Positions(label int) []int {
	return m.positions[label]
}

// NumRegions returns the number of labels in the mask.
func (m *Mask) NumRegions() int {
	return len(m.labels)
}

// UnitVolume returns the physical volume of one voxel in mm³, captured from
// the atlas volume at construction (1.0 when the atlas carried no geometry).
func (m *Mask) UnitVolume() float64 {
	return m.unitVolume
}

// SameShape reports whether a scalar field shares the mask's grid.
func (m *Mask) SameShape(field *models.Volume) bool {
	return m.nx == field.Nx && m.ny == field.Ny && m.nz == field.Nz
}
