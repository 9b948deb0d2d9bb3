// Package modality ties one subject's files for a given imaging modality
// (T1, ASL, DTI) to the extraction engines: ROI aggregation over masks,
// CAT12 report extraction, and graph-metric navigation. One Modal value
// owns one directory of one subject's data; modality-specific behavior is
// composed from small config structs rather than inherited.
package modality

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"neurofeat/internal/models"
	"neurofeat/internal/tabular"
	"neurofeat/pkg/graphmetrics"
	"neurofeat/pkg/nifti"
	"neurofeat/pkg/roi"
)

// markPlaceholder is the token in configured filenames that expands to the
// modality's mark, e.g. "cat_{}.xml" becomes "cat_t1.xml".
const markPlaceholder = "{}"

// GraphConfig locates a modality's graph-metric store and fixes the default
// threshold selection for metric queries.
type GraphConfig struct {
	// MatFile is the metric store filename inside the modality directory.
	MatFile string

	// ThresholdType is the default thresholding family.
	ThresholdType graphmetrics.ThresholdType

	// ThresholdValue is the default threshold value, matched bit-exactly
	// against the store's value list.
	ThresholdValue float64
}

// DefaultGraphConfig returns the store location and threshold selection the
// connectome pipeline produces by default.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		MatFile:        "brant.mat",
		ThresholdType:  graphmetrics.Intensity,
		ThresholdValue: 0.3,
	}
}

// Modal is one subject's file surface for one modality: a directory, the
// mark token naming this modality's files, and the lazily loaded metric
// navigator. A Modal is used from a single logical thread of control.
type Modal struct {
	// Dir is the modality's directory for this subject.
	Dir string

	// Mark is the filename token, e.g. "t1" for t1.nii and cat_t1.xml.
	Mark string

	// Graph configures metric store access for this modality.
	Graph GraphConfig

	log zerolog.Logger
	nav *graphmetrics.Navigator
}

// NewModal creates a modality surface over a directory.
func NewModal(dir, mark string, graph GraphConfig, log zerolog.Logger) *Modal {
	return &Modal{
		Dir:   dir,
		Mark:  mark,
		Graph: graph,
		log:   log.With().Str("modality", mark).Logger(),
		nav:   graphmetrics.NewNavigator(),
	}
}

// BuildPath resolves a configured filename inside the modality directory,
// expanding the {} placeholder to the mark when useMark is set.
func (m *Modal) BuildPath(filename string, useMark bool) string {
	if useMark {
		filename = strings.ReplaceAll(filename, markPlaceholder, m.Mark)
	}
	return filepath.Join(m.Dir, filename)
}

// LoadImage loads a volumetric image from the modality directory.
func (m *Modal) LoadImage(filename string, useMark bool) (*models.Volume, error) {
	return nifti.Load(m.BuildPath(filename, useMark))
}

// Rename renames a file inside the modality directory.
func (m *Modal) Rename(srcName, toName string, useMark bool) error {
	return os.Rename(m.BuildPath(srcName, useMark), m.BuildPath(toName, useMark))
}

// Remove deletes a file inside the modality directory.
func (m *Modal) Remove(filename string, useMark bool) error {
	return os.Remove(m.BuildPath(filename, useMark))
}

// LoadTable reads a CSV table from the modality directory.
func (m *Modal) LoadTable(filename string, useMark bool) (header []string, rows [][]string, err error) {
	return tabular.ReadRows(m.BuildPath(filename, useMark))
}

// ExportROITable computes one statistic per mask region over the image at
// imagePath and writes an "ID,<featureName>" table to outPath, one row per
// region in the mask's label order. The destination is replaced wholesale;
// nothing is written when loading or reduction fails.
func (m *Modal) ExportROITable(mask *roi.Mask, imagePath, outPath string, statistic roi.Statistic, featureName string) error {
	vol, err := nifti.Load(imagePath)
	if err != nil {
		return err
	}
	result, err := roi.Reduce(mask, vol, statistic)
	if err != nil {
		return err
	}
	if err := writeResult(outPath, featureName, result); err != nil {
		return err
	}
	m.log.Info().
		Str("image", imagePath).
		Str("feature", featureName).
		Int("regions", len(result)).
		Str("out", outPath).
		Msg("exported ROI table")
	return nil
}

// writeResult serializes an ROI result in the two-column table format.
func writeResult(path, featureName string, result roi.Result) error {
	rows := make([][]string, 0, len(result))
	for _, e := range result {
		rows = append(rows, []string{strconv.Itoa(e.Label), formatFloat(e.Value)})
	}
	return tabular.WriteRows(path, []string{"ID", featureName}, rows)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// GlobalMetric returns a whole-network graph metric from this modality's
// store at the configured default threshold.
func (m *Modal) GlobalMetric(name string) (float64, error) {
	return m.nav.Global(m.BuildPath(m.Graph.MatFile, false), name, m.Graph.ThresholdType, m.Graph.ThresholdValue)
}

// NodalMetric returns a per-region graph metric series from this modality's
// store at the configured default threshold.
func (m *Modal) NodalMetric(name string) ([]float64, error) {
	return m.nav.Nodal(m.BuildPath(m.Graph.MatFile, false), name, m.Graph.ThresholdType, m.Graph.ThresholdValue)
}

// GlobalMetricAt is GlobalMetric with an explicit threshold selection.
func (m *Modal) GlobalMetricAt(name string, t graphmetrics.ThresholdType, threshold float64) (float64, error) {
	return m.nav.Global(m.BuildPath(m.Graph.MatFile, false), name, t, threshold)
}

// NodalMetricAt is NodalMetric with an explicit threshold selection.
func (m *Modal) NodalMetricAt(name string, t graphmetrics.ThresholdType, threshold float64) ([]float64, error) {
	return m.nav.Nodal(m.BuildPath(m.Graph.MatFile, false), name, t, threshold)
}
