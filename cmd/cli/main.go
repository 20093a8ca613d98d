package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dvloznov/txloader/internal/app"
	"github.com/dvloznov/txloader/internal/loader"
	"github.com/dvloznov/txloader/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runBatch(log, "ingest", false)
	case "validate":
		runBatch(log, "validate", true)
	case "init-db":
		runInitDB(log)
	case "upload":
		runUpload(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Transaction Loader CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Validate a batch and write it to the store")
	fmt.Println("  validate  Validate a batch and print the summary without writing")
	fmt.Println("  init-db   Create the transactions, error_logs and customers tables")
	fmt.Println("  upload    Upload a local batch file to gs:// or s3://")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup builds the App or exits.
func setup(log zerolog.Logger, configFile string) *app.App {
	a, err := app.Setup(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading config failed")
	}
	return a
}

func runBatch(log zerolog.Logger, name string, dryRun bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fileSource := fs.String("file-source", loader.KindLocal, "Where the batch lives: local, remote, gcs or s3")
	fileLocation := fs.String("file-location", "", "Path or object URI of the batch file")
	configFile := fs.String("config", "", "Path to the YAML config file")
	fs.Parse(os.Args[2:])

	if *fileLocation == "" {
		log.Fatal().Msg("Error: --file-location is required")
	}

	a := setup(log, *configFile)
	defer a.Close()

	a.Logger.Info().
		Str("file_source", *fileSource).
		Str("file_location", *fileLocation).
		Bool("dry_run", dryRun).
		Msg("Starting batch")

	state, err := a.RunBatch(context.Background(), *fileSource, *fileLocation, dryRun)
	if state != nil {
		state.Summary.Print(os.Stdout)
	}
	if err != nil {
		a.Close()
		a.Logger.Fatal().Err(err).Msg("Batch failed")
	}

	if dryRun {
		fmt.Println("Validation completed; nothing was written.")
		return
	}
	fmt.Println("Ingestion completed successfully.")
}

func runInitDB(log zerolog.Logger) {
	fs := flag.NewFlagSet("init-db", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to the YAML config file")
	fs.Parse(os.Args[2:])

	a := setup(log, *configFile)
	defer a.Close()

	if err := a.InitDB(context.Background()); err != nil {
		a.Close()
		a.Logger.Fatal().Err(err).Msg("Creating tables failed")
	}

	fmt.Printf("Tables ready in %s store.\n", a.Config.Store.Driver)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local batch file")
	uri := fs.String("uri", "", "Destination URI; a trailing / appends the file name (e.g. gs://bucket/incoming/)")
	configFile := fs.String("config", "", "Path to the YAML config file")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *uri == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH -uri gs://BUCKET/KEY")
	}

	a := setup(log, *configFile)
	defer a.Close()

	loc, err := a.Upload(context.Background(), *filePath, *uri)
	if err != nil {
		a.Close()
		a.Logger.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, loc)
}
