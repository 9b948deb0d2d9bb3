package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"neurofeat/pkg/config"
	"neurofeat/pkg/graphmetrics"
	"neurofeat/pkg/modality"
	"neurofeat/pkg/nifti"
	"neurofeat/pkg/roi"
)

func main() {
	// Parse command line arguments
	subjectDir := flag.String("subject", "", "Subject's modality directory")
	configPath := flag.String("config", "neurofeat.yaml", "Path to the YAML configuration file")
	modalityName := flag.String("modality", "t1", "Modality to process: t1, asl or dti")
	maskPath := flag.String("mask", "", "Atlas label volume (overrides the configured mask)")
	imageName := flag.String("image", "", "Image filename inside the subject directory")
	outName := flag.String("out", "", "Output CSV filename inside the subject directory")
	statName := flag.String("stat", "mean", "Reduction statistic: mean or volume")
	featureName := flag.String("feature", "", "Feature column name (default: the statistic's name)")
	metricName := flag.String("metric", "", "Graph metric to query instead of exporting a table")
	scopeName := flag.String("scope", "global", "Graph metric scope: global or nodal")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if !cfg.Pipeline.Verbose {
		level = zerolog.WarnLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	if *subjectDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	graphCfg, err := graphConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid graph configuration")
	}

	switch *modalityName {
	case "t1":
		t1cfg := modality.T1Config{
			Mark:           cfg.T1.Mark,
			ReportFile:     cfg.T1.ReportFile,
			ROIFile:        cfg.T1.ROIFile,
			AtlasName:      cfg.T1.AtlasName,
			CorticalIDFile: cfg.T1.CorticalIDFile,
			Graph:          graphCfg,
		}
		t1 := modality.NewT1(*subjectDir, t1cfg, log)
		if *metricName != "" {
			printMetric(log, t1.Modal, *metricName, *scopeName)
			return
		}
		mask := loadMask(log, pick(*maskPath, cfg.T1.MaskFile))
		runExport(log, func() error {
			statistic, feature, err := statAndFeature(*statName, *featureName)
			if err != nil {
				return err
			}
			return t1.ExportROITable(mask,
				t1.BuildPath(*imageName, true),
				t1.BuildPath(*outName, true),
				statistic, feature)
		})
	case "asl":
		aslCfg := modality.ASLConfig{
			Mark:    cfg.ASL.Mark,
			Lambda:  cfg.ASL.Lambda,
			PLD:     cfg.ASL.PLD,
			BloodT1: cfg.ASL.BloodT1,
			Alpha:   cfg.ASL.Alpha,
			Tau:     cfg.ASL.Tau,
			Graph:   graphCfg,
		}
		asl := modality.NewASL(*subjectDir, aslCfg, log)
		if *metricName != "" {
			printMetric(log, asl.Modal, *metricName, *scopeName)
			return
		}
		mask := loadMask(log, pick(*maskPath, cfg.T1.MaskFile))
		runExport(log, func() error {
			_, feature, err := statAndFeature("mean", *featureName)
			if err != nil {
				return err
			}
			return asl.ExportROIMean(mask, *imageName, *outName, feature)
		})
	case "dti":
		dtiCfg := modality.DTIConfig{
			Mark:                cfg.DTI.Mark,
			MaskFile:            pick(*maskPath, cfg.DTI.MaskFile),
			NetworkFAFile:       cfg.DTI.NetworkFAFile,
			NetworkMDFile:       cfg.DTI.NetworkMDFile,
			NetworkNumFile:      cfg.DTI.NetworkNumFile,
			ControllabilityFile: cfg.DTI.ControllabilityFile,
		}
		dti := modality.NewDTI(*subjectDir, dtiCfg, log)
		if *metricName != "" {
			printMetric(log, dti.Modal, *metricName, *scopeName)
			return
		}
		runExport(log, func() error {
			_, feature, err := statAndFeature("volume", *featureName)
			if err != nil {
				return err
			}
			return dti.ExportROIVolume(*imageName, *outName, feature)
		})
	default:
		log.Fatal().Str("modality", *modalityName).Msg("unknown modality")
	}
}

// graphConfig translates the YAML graph section into the typed form.
func graphConfig(cfg *config.Config) (modality.GraphConfig, error) {
	t, err := graphmetrics.ParseThresholdType(cfg.Graph.ThresholdType)
	if err != nil {
		return modality.GraphConfig{}, err
	}
	return modality.GraphConfig{
		MatFile:        cfg.Graph.MatFile,
		ThresholdType:  t,
		ThresholdValue: cfg.Graph.ThresholdValue,
	}, nil
}

// pick returns the override when set, the configured value otherwise.
func pick(override, configured string) string {
	if override != "" {
		return override
	}
	return configured
}

// statAndFeature parses the statistic flag and derives the feature column
// name when none was given.
func statAndFeature(statName, featureName string) (roi.Statistic, string, error) {
	var statistic roi.Statistic
	switch statName {
	case "mean":
		statistic = roi.StatMean
	case "volume":
		statistic = roi.StatVolume
	default:
		return 0, "", fmt.Errorf("unknown statistic %q", statName)
	}
	if featureName == "" {
		featureName = statistic.String()
	}
	return statistic, featureName, nil
}

func loadMask(log zerolog.Logger, path string) *roi.Mask {
	vol, err := nifti.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("mask", path).Msg("loading mask")
	}
	mask := roi.NewMask(vol)
	log.Info().Str("mask", path).Int("regions", mask.NumRegions()).Msg("mask loaded")
	return mask
}

func runExport(log zerolog.Logger, export func() error) {
	start := time.Now()
	if err := export(); err != nil {
		log.Fatal().Err(err).Msg("export failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("export complete")
}

func printMetric(log zerolog.Logger, m *modality.Modal, metric, scope string) {
	switch scope {
	case "global":
		v, err := m.GlobalMetric(metric)
		if err != nil {
			log.Fatal().Err(err).Str("metric", metric).Msg("metric query failed")
		}
		fmt.Printf("%s = %g\n", metric, v)
	case "nodal":
		series, err := m.NodalMetric(metric)
		if err != nil {
			log.Fatal().Err(err).Str("metric", metric).Msg("metric query failed")
		}
		for i, v := range series {
			fmt.Printf("%s[%d] = %g\n", metric, i+1, v)
		}
	default:
		log.Fatal().Str("scope", scope).Msg("unknown scope")
	}
}
