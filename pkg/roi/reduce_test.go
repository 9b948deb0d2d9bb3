package roi

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"neurofeat/internal/models"
)

// labelVolume builds a 3x3x3 atlas with label 1 at (0,0,0) and label 2 at
// (1,1,1) and (2,2,2), everything else background.
func labelVolume() *models.Volume {
	atlas := models.NewVolume(3, 3, 3)
	atlas.SetAt(0, 0, 0, 1)
	atlas.SetAt(1, 1, 1, 2)
	atlas.SetAt(2, 2, 2, 2)
	return atlas
}

// TestReduceMeanConcrete checks the worked scenario: values 5 at the label-1
// voxel and 3, 7 at the label-2 voxels reduce to means 5.0 and 5.0.
func TestReduceMeanConcrete(t *testing.T) {
	mask := NewMask(labelVolume())

	field := models.NewVolume(3, 3, 3)
	field.SetAt(0, 0, 0, 5)
	field.SetAt(1, 1, 1, 3)
	field.SetAt(2, 2, 2, 7)

	result, err := Reduce(mask, field, StatMean)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}

	want := Result{{Label: 1, Value: 5.0}, {Label: 2, Value: 5.0}}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Unexpected result (-want +got):\n%s", diff)
	}
}

// TestReduceVolumeCounts verifies that the volume statistic counts each
// label's positions and that the counts never exceed the total voxel count.
func TestReduceVolumeCounts(t *testing.T) {
	mask := NewMask(labelVolume())
	field := models.NewVolume(3, 3, 3)

	result, err := Reduce(mask, field, StatVolume)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}

	if len(result) != mask.NumRegions() {
		t.Errorf("Expected %d entries, got %d", mask.NumRegions(), len(result))
	}

	want := map[int]float64{1: 1, 2: 2}
	total := 0.0
	for _, e := range result {
		if e.Value != want[e.Label] {
			t.Errorf("Label %d: expected volume %v, got %v", e.Label, want[e.Label], e.Value)
		}
		total += e.Value
	}
	if total > float64(field.Len()) {
		t.Errorf("Summed volumes %v exceed total voxel count %d", total, field.Len())
	}
}

// TestReduceVolumeUnitScaling verifies that voxel geometry scales the
// volume statistic.
func TestReduceVolumeUnitScaling(t *testing.T) {
	atlas := labelVolume()
	atlas.VoxelSize.X = 2
	atlas.VoxelSize.Y = 2
	atlas.VoxelSize.Z = 2
	mask := NewMask(atlas)

	result, err := Reduce(mask, models.NewVolume(3, 3, 3), StatVolume)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if v, _ := result.Value(2); v != 16 {
		t.Errorf("Expected label 2 volume 2*8=16, got %v", v)
	}
}

// TestReduceMeanConstantField verifies that a constant field reduces to the
// constant for every label with at least one position.
func TestReduceMeanConstantField(t *testing.T) {
	mask := NewMask(labelVolume())

	const c = 3.25
	field := models.NewVolume(3, 3, 3)
	for i := range field.Data {
		field.Data[i] = c
	}

	result, err := Reduce(mask, field, StatMean)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	for _, e := range result {
		if e.Value != c {
			t.Errorf("Label %d: expected mean %v, got %v", e.Label, c, e.Value)
		}
	}
}

// TestReduceMeanEmptyLabel pins the empty-region policy: a label in the
// mask's universe with no voxels yields NaN for the mean and 0 for the
// volume, and keeps its row.
func TestReduceMeanEmptyLabel(t *testing.T) {
	mask := NewMaskWithLabels(labelVolume(), []int{1, 2, 3})
	field := models.NewVolume(3, 3, 3)

	result, err := Reduce(mask, field, StatMean)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(result))
	}
	if v, ok := result.Value(3); !ok || !math.IsNaN(v) {
		t.Errorf("Expected NaN mean for empty label 3, got %v (present=%v)", v, ok)
	}

	volumes, err := Reduce(mask, field, StatVolume)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if v, _ := volumes.Value(3); v != 0 {
		t.Errorf("Expected 0 volume for empty label 3, got %v", v)
	}
}

// TestReduceShapeMismatch verifies that a field on a different grid is
// rejected rather than silently misaligned.
func TestReduceShapeMismatch(t *testing.T) {
	mask := NewMask(labelVolume())
	field := models.NewVolume(2, 2, 2)

	if _, err := Reduce(mask, field, StatMean); err == nil {
		t.Error("Expected an error for mismatched shapes, got nil")
	}
}

// TestReduceDeterministicOrder verifies that repeated reductions return
// identical results in identical label order.
func TestReduceDeterministicOrder(t *testing.T) {
	atlas := models.NewVolume(4, 4, 4)
	for i := range atlas.Data {
		atlas.Data[i] = float64(i % 7)
	}
	mask := NewMask(atlas)

	field := models.NewVolume(4, 4, 4)
	for i := range field.Data {
		field.Data[i] = float64(i) * 0.5
	}

	first, err := Reduce(mask, field, StatMean)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := Reduce(mask, field, StatMean)
		if err != nil {
			t.Fatalf("Reduce failed: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Run %d differed (-first +again):\n%s", run, diff)
		}
	}

	labels := mask.Labels()
	for i := 1; i < len(labels); i++ {
		if labels[i-1] >= labels[i] {
			t.Errorf("Labels not in ascending order: %v", labels)
		}
	}
}

// TestMaskIgnoresBackground verifies that zero and NaN atlas voxels belong
// to no region.
func TestMaskIgnoresBackground(t *testing.T) {
	atlas := models.NewVolume(2, 2, 1)
	atlas.SetAt(0, 0, 0, math.NaN())
	atlas.SetAt(1, 0, 0, 0)
	atlas.SetAt(0, 1, 0, 4)
	mask := NewMask(atlas)

	if mask.NumRegions() != 1 {
		t.Fatalf("Expected 1 region, got %d", mask.NumRegions())
	}
	if n := len(mask.Positions(4)); n != 1 {
		t.Errorf("Expected 1 position for label 4, got %d", n)
	}
}
