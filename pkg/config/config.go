// Package config provides configuration loading and management for the
// neurofeat extraction pipeline. It handles loading configuration from YAML
// files and provides default values matching the acquisition protocols the
// pipeline was built around.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Pipeline-wide parameters
	Pipeline struct {
		// NumWorkers bounds how many subjects are processed in one run
		NumWorkers int `yaml:"numWorkers"`

		// Verbose controls the logging level
		Verbose bool `yaml:"verbose"`
	} `yaml:"pipeline"`

	// T1 structural MRI parameters
	T1 struct {
		// Mark is the filename token of this modality ("t1" in cat_t1.xml)
		Mark string `yaml:"mark"`

		// ReportFile is the CAT12 report path with a {} placeholder for Mark
		ReportFile string `yaml:"reportFile"`

		// ROIFile is the CAT12 per-region report path with a {} placeholder
		ROIFile string `yaml:"roiFile"`

		// AtlasName is the atlas section to read from the ROI report
		AtlasName string `yaml:"atlasName"`

		// CorticalIDFile maps atlas region names to numeric region IDs
		CorticalIDFile string `yaml:"corticalIDFile"`

		// MaskFile is the label volume used for ROI aggregation
		MaskFile string `yaml:"maskFile"`
	} `yaml:"t1"`

	// ASL perfusion parameters for CBF quantification
	ASL struct {
		// Mark is the filename token of this modality
		Mark string `yaml:"mark"`

		// Lambda is the blood-brain partition coefficient in ml/g
		Lambda float64 `yaml:"lambda"`

		// PLD is the post-labeling delay in seconds
		PLD float64 `yaml:"pld"`

		// BloodT1 is the longitudinal relaxation time of blood in seconds
		BloodT1 float64 `yaml:"bloodT1"`

		// Alpha is the labeling efficiency
		Alpha float64 `yaml:"alpha"`

		// Tau is the label duration in seconds
		Tau float64 `yaml:"tau"`
	} `yaml:"asl"`

	// DTI diffusion parameters
	DTI struct {
		// Mark is the filename token of this modality
		Mark string `yaml:"mark"`

		// MaskFile is the individual-space label volume
		MaskFile string `yaml:"maskFile"`

		// NetworkFAFile, NetworkMDFile and NetworkNumFile are the text
		// connectivity matrices written by the tractography step
		NetworkFAFile  string `yaml:"networkFAFile"`
		NetworkMDFile  string `yaml:"networkMDFile"`
		NetworkNumFile string `yaml:"networkNumFile"`

		// ControllabilityFile is the controllability result mat file
		ControllabilityFile string `yaml:"controllabilityFile"`
	} `yaml:"dti"`

	// Graph metric store parameters
	Graph struct {
		// MatFile is the default metric store filename
		MatFile string `yaml:"matFile"`

		// ThresholdType selects the default family: intensity or sparsity
		ThresholdType string `yaml:"thresholdType"`

		// ThresholdValue is the default threshold value
		ThresholdValue float64 `yaml:"thresholdValue"`
	} `yaml:"graph"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Pipeline.NumWorkers = runtime.NumCPU()
	cfg.Pipeline.Verbose = true

	cfg.T1.Mark = "t1"
	cfg.T1.ReportFile = "report/cat_{}.xml"
	cfg.T1.ROIFile = "label/catROIs_{}.xml"
	cfg.T1.AtlasName = "aparc_BN_Atlas"
	cfg.T1.CorticalIDFile = "../data/mask/brainnetome/cortical_id.csv"
	cfg.T1.MaskFile = "BN_Atlas_246_1mm.nii.gz"

	// Defaults follow the pCASL protocol of the acquiring site.
	cfg.ASL.Mark = "asl"
	cfg.ASL.Lambda = 0.9
	cfg.ASL.PLD = 2.0
	cfg.ASL.BloodT1 = 1.65
	cfg.ASL.Alpha = 0.85
	cfg.ASL.Tau = 1.8

	cfg.DTI.Mark = "dti"
	cfg.DTI.MaskFile = "BN_Atlas_246_1mm.nii.gz"
	cfg.DTI.NetworkFAFile = "network_fa.txt"
	cfg.DTI.NetworkMDFile = "network_md.txt"
	cfg.DTI.NetworkNumFile = "network_num.txt"
	// The upstream toolbox writes this misspelled filename; keep it verbatim.
	cfg.DTI.ControllabilityFile = "controllablity.mat"

	cfg.Graph.MatFile = "brant.mat"
	cfg.Graph.ThresholdType = "intensity"
	cfg.Graph.ThresholdValue = 0.3

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
