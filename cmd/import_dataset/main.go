package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"rentalpricing/config"
	"rentalpricing/dataset"
	"rentalpricing/db"
	"rentalpricing/logging"
)

func main() {
	csvPath := flag.String("csv", "", "local CSV file to import (default: download dataset url)")
	url := flag.String("url", config.DefaultDatasetURL, "dataset CSV url, used when -csv is empty")
	encoding := flag.String("encoding", "", "CSV character encoding, e.g. iso-8859-1")
	driver := flag.String("driver", "sqlite3", "database driver: sqlite3 or postgres")
	dsn := flag.String("dsn", "rentals.db", "database DSN")
	table := flag.String("table", "rentals", "destination table")
	replace := flag.Bool("replace", false, "drop the table before importing")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall import timeout")
	flag.Parse()

	logger, err := logging.New(logging.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var source dataset.Source
	if *csvPath != "" {
		source = dataset.NewFileSource(*csvPath, *encoding)
	} else {
		source = dataset.NewHTTPSource(*url, *encoding, *timeout)
	}

	n, err := importDataset(ctx, source, *driver, *dsn, *table, *replace)
	if err != nil {
		logger.Fatal("import failed", zap.String("source", source.Name()), zap.Error(err))
	}
	logger.Info("dataset imported",
		zap.String("source", source.Name()),
		zap.String("driver", *driver),
		zap.String("table", *table),
		zap.Int("rows", n),
	)
	fmt.Printf("imported %d rows into %s\n", n, *table)
}

func importDataset(ctx context.Context, source dataset.Source, driver, dsn, table string, replace bool) (int, error) {
	frame, err := source.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", source.Name(), err)
	}

	database, err := db.Open(ctx, driver, dsn)
	if err != nil {
		return 0, err
	}
	defer database.Close()

	if replace {
		if err := db.DropTable(ctx, database, table); err != nil {
			return 0, err
		}
	}

	records := make([]map[string]any, len(frame.Rows))
	for i, row := range frame.Rows {
		records[i] = row
	}
	if err := db.WriteTable(ctx, database, table, frame.Columns, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
