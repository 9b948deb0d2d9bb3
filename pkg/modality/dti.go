package modality

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"neurofeat/pkg/matfile"
	"neurofeat/pkg/nifti"
	"neurofeat/pkg/roi"
)

// DTIConfig holds the diffusion modality's file layout: the individual-space
// atlas and the tractography outputs.
type DTIConfig struct {
	// Mark is the filename token, "dti" by default.
	Mark string

	// MaskFile is the individual-space label volume used for ROI volume
	// export.
	MaskFile string

	// NetworkFAFile, NetworkMDFile and NetworkNumFile are the text
	// connectivity matrices: mean fractional anisotropy, mean diffusivity
	// and streamline count per region pair.
	NetworkFAFile  string
	NetworkMDFile  string
	NetworkNumFile string

	// ControllabilityFile is the network controllability result store.
	ControllabilityFile string
}

// DefaultDTIConfig returns the layout the tractography pipeline produces.
func DefaultDTIConfig() DTIConfig {
	return DTIConfig{
		Mark:           "dti",
		MaskFile:       "BN_Atlas_246_1mm.nii.gz",
		NetworkFAFile:  "network_fa.txt",
		NetworkMDFile:  "network_md.txt",
		NetworkNumFile: "network_num.txt",
		// The upstream toolbox writes this misspelled filename; keep it.
		ControllabilityFile: "controllablity.mat",
	}
}

// DTI manages one subject's diffusion features: ROI volumes against the
// individual-space atlas, structural connectivity matrices, and network
// controllability.
type DTI struct {
	*Modal
	cfg DTIConfig

	// Connectivity matrices load once per instance; the text files do not
	// change under a running extraction.
	networkFA  *mat.Dense
	networkMD  *mat.Dense
	networkNum *mat.Dense
}

// NewDTI creates the diffusion modality surface for one subject directory.
func NewDTI(dir string, cfg DTIConfig, log zerolog.Logger) *DTI {
	return &DTI{
		Modal: NewModal(dir, cfg.Mark, DefaultGraphConfig(), log),
		cfg:   cfg,
	}
}

// LoadIndividualMask builds an ROI mask from the configured individual-space
// label volume.
func (d *DTI) LoadIndividualMask() (*roi.Mask, error) {
	vol, err := nifti.Load(d.BuildPath(d.cfg.MaskFile, false))
	if err != nil {
		return nil, err
	}
	return roi.NewMask(vol), nil
}

// ExportROIVolume writes per-region volume for an image in the modality
// directory, aggregated over the individual-space mask.
func (d *DTI) ExportROIVolume(imageName, outName, featureName string) error {
	mask, err := d.LoadIndividualMask()
	if err != nil {
		return err
	}
	return d.ExportROITable(mask,
		d.BuildPath(imageName, false),
		d.BuildPath(outName, false),
		roi.StatVolume, featureName)
}

// LoadNetwork reads a whitespace-separated text connectivity matrix.
func (d *DTI) LoadNetwork(filename string) (*mat.Dense, error) {
	path := d.BuildPath(filename, false)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(nifti.ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	var values []float64
	var rows, cols int
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, errors.Newf("modality: ragged matrix in %s: row %d has %d values, want %d",
				path, rows, len(fields), cols)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", path)
			}
			values = append(values, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.Newf("modality: empty matrix file %s", path)
	}
	return mat.NewDense(rows, cols, values), nil
}

// NetworkFA returns the mean-FA connectivity matrix, loading it on first use.
func (d *DTI) NetworkFA() (*mat.Dense, error) {
	if d.networkFA == nil {
		m, err := d.LoadNetwork(d.cfg.NetworkFAFile)
		if err != nil {
			return nil, err
		}
		d.networkFA = m
	}
	return d.networkFA, nil
}

// NetworkMD returns the mean-diffusivity connectivity matrix, loading it on
// first use.
func (d *DTI) NetworkMD() (*mat.Dense, error) {
	if d.networkMD == nil {
		m, err := d.LoadNetwork(d.cfg.NetworkMDFile)
		if err != nil {
			return nil, err
		}
		d.networkMD = m
	}
	return d.networkMD, nil
}

// NetworkNum returns the streamline-count connectivity matrix, loading it on
// first use.
func (d *DTI) NetworkNum() (*mat.Dense, error) {
	if d.networkNum == nil {
		m, err := d.LoadNetwork(d.cfg.NetworkNumFile)
		if err != nil {
			return nil, err
		}
		d.networkNum = m
	}
	return d.networkNum, nil
}

// AveControl returns per-region average controllability from the
// controllability store.
func (d *DTI) AveControl() ([]float64, error) {
	return d.controllability("ave")
}

// ModalControl returns per-region modal controllability from the
// controllability store.
func (d *DTI) ModalControl() ([]float64, error) {
	return d.controllability("modal")
}

func (d *DTI) controllability(field string) ([]float64, error) {
	path := d.BuildPath(d.cfg.ControllabilityFile, false)
	f, err := matfile.Open(path)
	if err != nil {
		return nil, err
	}
	// The store is a 1x1 struct named after the toolbox's output variable.
	node, ok := f.Var("controllablity")
	if !ok {
		return nil, errors.Newf("modality: no controllability variable in %s", path)
	}
	st, ok := node.(*matfile.Struct)
	if !ok {
		return nil, errors.Newf("modality: controllability variable in %s is not a struct", path)
	}
	value, ok := st.Field(field)
	if !ok {
		return nil, errors.Newf("modality: no %q field in %s", field, path)
	}
	arr, ok := value.(*matfile.Array)
	if !ok {
		return nil, errors.Newf("modality: %q field in %s is not numeric", field, path)
	}
	return arr.Data, nil
}
