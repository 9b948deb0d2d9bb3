package modality

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"neurofeat/internal/models"
	"neurofeat/pkg/nifti"
	"neurofeat/pkg/roi"
)

// ASLConfig holds the arterial spin labeling acquisition parameters that
// enter the CBF quantification model.
type ASLConfig struct {
	// Mark is the filename token, "asl" by default.
	Mark string

	// Lambda is the blood-brain partition coefficient in ml/g.
	Lambda float64

	// PLD is the post-labeling delay in seconds.
	PLD float64

	// BloodT1 is the longitudinal relaxation time of arterial blood in
	// seconds at the scanner's field strength.
	BloodT1 float64

	// Alpha is the labeling efficiency.
	Alpha float64

	// Tau is the label duration in seconds.
	Tau float64

	// Graph configures metric store access.
	Graph GraphConfig
}

// DefaultASLConfig returns the pCASL protocol parameters of the acquiring
// site.
func DefaultASLConfig() ASLConfig {
	return ASLConfig{
		Mark:    "asl",
		Lambda:  0.9,
		PLD:     2.0,
		BloodT1: 1.65,
		Alpha:   0.85,
		Tau:     1.8,
		Graph:   DefaultGraphConfig(),
	}
}

// ASL manages one subject's perfusion features: CBF quantification from the
// labeled/proton-density image pair, outlier clipping, and per-region mean
// CBF export.
type ASL struct {
	*Modal
	cfg ASLConfig

	// ratio is the single-compartment quantification factor in
	// ml/100g/min per unit signal ratio, fixed by the acquisition
	// parameters at construction.
	ratio float64
}

// NewASL creates the perfusion modality surface for one subject directory.
func NewASL(dir string, cfg ASLConfig, log zerolog.Logger) *ASL {
	a := &ASL{
		Modal: NewModal(dir, cfg.Mark, cfg.Graph, log),
		cfg:   cfg,
	}
	a.ratio = 100 * cfg.Lambda * math.Exp(cfg.PLD/cfg.BloodT1) /
		(2 * cfg.Alpha * cfg.BloodT1 * (1 - math.Exp(-cfg.Tau/cfg.BloodT1)))
	return a
}

// QuantificationRatio returns the fixed CBF scaling factor derived from the
// acquisition parameters.
func (a *ASL) QuantificationRatio() float64 {
	return a.ratio
}

// GenerateCBF quantifies cerebral blood flow from the normalized ASL
// difference image and the proton-density image, writing the CBF map next
// to them. Voxels where the division is undefined (zero or missing PD
// signal) are set to zero.
func (a *ASL) GenerateCBF(aslName, pdName, outName string) error {
	aslVol, err := a.LoadImage(aslName, false)
	if err != nil {
		return err
	}
	pdVol, err := a.LoadImage(pdName, false)
	if err != nil {
		return err
	}
	if !aslVol.SameShape(pdVol) {
		return roi.ErrShapeMismatch
	}

	cbf := models.NewVolume(aslVol.Nx, aslVol.Ny, aslVol.Nz)
	cbf.CopyGeometry(aslVol)
	for i := range cbf.Data {
		v := a.ratio * aslVol.Data[i] / pdVol.Data[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		cbf.Data[i] = v
	}

	outPath := a.BuildPath(outName, false)
	if err := nifti.Save(outPath, cbf); err != nil {
		return err
	}
	a.log.Info().Str("out", outPath).Float64("ratio", a.ratio).Msg("generated CBF map")
	return nil
}

// ThresholdCBF clips implausibly high CBF values: voxels above clipRatio
// times the median of the nonzero voxels are zeroed, and the result is
// written as a new image.
func (a *ASL) ThresholdCBF(cbfName, outName string, clipRatio float64) error {
	cbfVol, err := a.LoadImage(cbfName, false)
	if err != nil {
		return err
	}

	nonzero := make([]float64, 0, len(cbfVol.Data))
	for _, v := range cbfVol.Data {
		if v != 0 {
			nonzero = append(nonzero, v)
		}
	}
	out := models.NewVolume(cbfVol.Nx, cbfVol.Ny, cbfVol.Nz)
	out.CopyGeometry(cbfVol)
	if len(nonzero) > 0 {
		sort.Float64s(nonzero)
		threshold := clipRatio * stat.Quantile(0.5, stat.LinInterp, nonzero, nil)
		for i, v := range cbfVol.Data {
			if v <= threshold {
				out.Data[i] = v
			}
		}
	}

	outPath := a.BuildPath(outName, false)
	if err := nifti.Save(outPath, out); err != nil {
		return err
	}
	a.log.Info().Str("out", outPath).Msg("thresholded CBF map")
	return nil
}

// ExportROIMean writes per-region mean CBF as an "ID,<featureName>" table.
// ASL derivative filenames carry no mark token, so paths resolve verbatim.
func (a *ASL) ExportROIMean(mask *roi.Mask, imageName, outName, featureName string) error {
	return a.ExportROITable(mask,
		a.BuildPath(imageName, false),
		a.BuildPath(outName, false),
		roi.StatMean, featureName)
}
