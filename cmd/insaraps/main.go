package main

import (
	"flag"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"insaraps/pkg/aps"
	"insaraps/pkg/config"
	"insaraps/pkg/inversion"
	"insaraps/pkg/work"
)

func main() {
	configPath := flag.String("config", "insaraps.yaml", "Path to YAML configuration file")
	obsDir := flag.String("obs", "", "Directory containing interferogram files (*.ifg)")
	workers := flag.Int("workers", 0, "Worker count override (default: from config)")
	scratchDir := flag.String("scratch", "", "Scratch directory override (default: from config)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{ForceColors: true})

	if *obsDir == "" {
		flag.Usage()
		log.Fatal("No observation directory given")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if *scratchDir != "" {
		cfg.Processing.ScratchDir = *scratchDir
	}
	if cfg.Output.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	paths, err := filepath.Glob(filepath.Join(*obsDir, "*.ifg"))
	if err != nil {
		log.Fatalf("Failed to list interferograms: %v", err)
	}
	if len(paths) == 0 {
		log.Fatalf("No interferograms found in %s", *obsDir)
	}

	pipeline, err := aps.NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	log.WithFields(log.Fields{
		"interferograms": len(paths),
		"workers":        cfg.Processing.NumWorkers,
	}).Info("Starting atmospheric phase screen correction")

	start := time.Now()
	group := work.NewGroup(cfg.Processing.NumWorkers)
	status, err := pipeline.Run(paths, group)
	if err != nil {
		log.Fatalf("Correction failed: %v", err)
	}

	log.WithFields(log.Fields{
		"status":  status.String(),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("Correction finished")
}
