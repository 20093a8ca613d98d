package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dvloznov/txloader/internal/app"
	"github.com/dvloznov/txloader/internal/loader"
	"github.com/dvloznov/txloader/internal/logger"
)

func main() {
	log := logger.New()

	// Parse CLI flags
	fileSource := flag.String("file-source", loader.KindLocal, "Where the batch lives: local, remote, gcs or s3")
	fileLocation := flag.String("file-location", "", "Path or object URI of the batch file (e.g. gs://bucket/batch.json)")
	dryRun := flag.Bool("dry-run", false, "Validate and route without writing to the store")
	configFile := flag.String("config", "", "Path to the YAML config file (default config.yaml if present)")
	flag.Parse()

	if *fileLocation == "" {
		log.Fatal().Msg("Error: --file-location is required")
	}

	a, err := app.Setup(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading config failed")
	}
	defer a.Close()
	log = a.Logger

	log.Info().
		Str("file_source", *fileSource).
		Str("file_location", *fileLocation).
		Bool("dry_run", *dryRun).
		Msg("Starting ingestion")

	state, err := a.RunBatch(context.Background(), *fileSource, *fileLocation, *dryRun)
	if state != nil {
		state.Summary.Print(os.Stdout)
	}
	if err != nil {
		a.Close()
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Println("Ingestion completed successfully.")
}
