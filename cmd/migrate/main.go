package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/dvloznov/txloader/internal/app"
	"github.com/dvloznov/txloader/internal/logger"
)

var (
	configFile = flag.String("config", "", "Path to the YAML config file (default config.yaml if present)")
	driver     = flag.String("driver", "", "Override the configured store driver (postgres, sqlite, bigquery)")
)

func main() {
	log := logger.New()
	flag.Parse()

	driverName, err := run(context.Background(), *configFile, *driver)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	fmt.Printf("Tables ready in %s store.\n", driverName)
}

// run creates the transactions, error_logs and customers tables of the
// configured sink. It returns the driver it ran against.
func run(ctx context.Context, configFile, driverOverride string) (string, error) {
	a, err := app.Setup(configFile)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	defer a.Close()

	if driverOverride != "" {
		a.Config.Store.Driver = driverOverride
		if err := a.Config.Validate(); err != nil {
			return "", err
		}
	}

	a.Logger.Info().Str("store_driver", a.Config.Store.Driver).Msg("Creating tables")
	if err := a.InitDB(ctx); err != nil {
		return "", err
	}
	return a.Config.Store.Driver, nil
}
