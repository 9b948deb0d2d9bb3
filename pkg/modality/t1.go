package modality

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"neurofeat/internal/tabular"
	"neurofeat/pkg/catreport"
	"neurofeat/pkg/roi"
)

// T1Config holds the structural modality's file layout: where CAT12 put its
// reports and which atlas section to read.
type T1Config struct {
	// Mark is the filename token, "t1" by default.
	Mark string

	// ReportFile is the cat_{}.xml path relative to the modality directory.
	ReportFile string

	// ROIFile is the catROIs_{}.xml path relative to the modality directory.
	ROIFile string

	// AtlasName is the atlas section of the ROI report to read.
	AtlasName string

	// CorticalIDFile maps atlas region names to numeric region IDs. It may
	// be an absolute path or relative to the working directory, since the
	// name-ID chart is shared across subjects.
	CorticalIDFile string

	// Graph configures metric store access.
	Graph GraphConfig
}

// DefaultT1Config returns the layout the CAT12 pipeline produces.
func DefaultT1Config() T1Config {
	return T1Config{
		Mark:           "t1",
		ReportFile:     "report/cat_{}.xml",
		ROIFile:        "label/catROIs_{}.xml",
		AtlasName:      "aparc_BN_Atlas",
		CorticalIDFile: "../data/mask/brainnetome/cortical_id.csv",
		Graph:          DefaultGraphConfig(),
	}
}

// T1 manages one subject's structural MRI features: ROI grey-matter volume
// and mean, CAT12 quality ratings and whole-brain volumes, and per-region
// cortical thickness.
type T1 struct {
	*Modal
	cfg T1Config
}

// NewT1 creates the structural modality surface for one subject directory.
func NewT1(dir string, cfg T1Config, log zerolog.Logger) *T1 {
	return &T1{
		Modal: NewModal(dir, cfg.Mark, cfg.Graph, log),
		cfg:   cfg,
	}
}

// ExportROIVolume writes per-region grey-matter volume for the image named
// imageName (mark-expanded) as an "ID,<featureName>" table.
func (t *T1) ExportROIVolume(mask *roi.Mask, imageName, outName, featureName string) error {
	return t.ExportROITable(mask,
		t.BuildPath(imageName, true),
		t.BuildPath(outName, true),
		roi.StatVolume, featureName)
}

// ExportROIMean writes per-region mean intensity for the image named
// imageName (mark-expanded) as an "ID,<featureName>" table.
func (t *T1) ExportROIMean(mask *roi.Mask, imageName, outName, featureName string) error {
	return t.ExportROITable(mask,
		t.BuildPath(imageName, true),
		t.BuildPath(outName, true),
		roi.StatMean, featureName)
}

// ImageQuality returns the CAT12 segmentation quality ratings.
func (t *T1) ImageQuality() (catreport.Quality, error) {
	return catreport.ParseQuality(t.BuildPath(t.cfg.ReportFile, true))
}

// TotalVolumes returns TIV and the whole-brain tissue volumes from the
// CAT12 report.
func (t *T1) TotalVolumes() (catreport.TotalVolumes, error) {
	return catreport.ParseTotalVolumes(t.BuildPath(t.cfg.ReportFile, true))
}

// ExportCorticalThickness reads per-region thickness from the CAT12 ROI
// report, maps atlas region names to numeric IDs via the cortical ID chart,
// and writes an "ID,CT" table. Regions whose names fail the atlas's
// hemisphere-tagging convention are skipped, mirroring how the chart only
// lists cortical regions.
func (t *T1) ExportCorticalThickness(outName string) error {
	regions, err := catreport.ParseROIThickness(t.BuildPath(t.cfg.ROIFile, true), t.cfg.AtlasName)
	if err != nil {
		return err
	}
	ids, err := loadCorticalIDs(t.cfg.CorticalIDFile)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(regions))
	for _, region := range regions {
		name, ok := normalizeAtlasName(region.Name)
		if !ok {
			continue
		}
		id, ok := ids[name]
		if !ok {
			return errors.Newf("modality: region %q missing from cortical ID chart", name)
		}
		rows = append(rows, []string{id, formatFloat(region.Thickness)})
	}
	outPath := t.BuildPath(outName, true)
	if err := tabular.WriteRows(outPath, []string{"ID", "CT"}, rows); err != nil {
		return err
	}
	t.log.Info().Int("regions", len(rows)).Str("out", outPath).Msg("exported cortical thickness")
	return nil
}

// normalizeAtlasName applies the Brainnetome naming convention: cortical
// regions are tagged with a leading hemisphere letter that matches the
// trailing one case-insensitively ("lA1/2" → "A1-2"). Names that do not
// match the convention are subcortical and carry no thickness.
func normalizeAtlasName(name string) (string, bool) {
	if len(name) < 2 {
		return "", false
	}
	first := strings.ToLower(name[:1])
	last := strings.ToLower(name[len(name)-1:])
	if first != last {
		return "", false
	}
	name = name[1:]
	return strings.ReplaceAll(name, "/", "-"), true
}

// loadCorticalIDs reads the shared name-ID chart: region names in the first
// column, the numeric ID in the column headed "ID".
func loadCorticalIDs(path string) (map[string]string, error) {
	header, rows, err := tabular.ReadRows(path)
	if err != nil {
		return nil, err
	}
	idCol := -1
	for i, h := range header {
		if h == "ID" {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return nil, errors.Newf("modality: no ID column in %s", path)
	}
	ids := make(map[string]string, len(rows))
	for _, row := range rows {
		if len(row) <= idCol {
			continue
		}
		ids[row[0]] = row[idCol]
	}
	return ids, nil
}
