// classify-file processes one workbook synchronously, without the HTTP
// server or the job store. Useful for one-off runs and smoke tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/avelichko/defect-classifier/internal/catindex"
	"github.com/avelichko/defect-classifier/internal/classify"
	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/entity"
	"github.com/avelichko/defect-classifier/internal/expand"
	"github.com/avelichko/defect-classifier/internal/llm"
	"github.com/avelichko/defect-classifier/internal/split"
	"github.com/avelichko/defect-classifier/internal/xlsx"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		in         = flag.String("in", "", "input XLSX file (required)")
		out        = flag.String("out", "", "output XLSX file (defaults to <in>_processed.xlsx)")
		categories = flag.String("categories", "", "category reference: .xlsx workbook or flat .txt, one name per line")
		column     = flag.String("column", "", "comment column header (defaults to configuration)")
	)
	flag.Parse()

	if *in == "" {
		printError("Error: --in is required\n")
		os.Exit(1)
	}
	if *out == "" {
		base := strings.TrimSuffix(*in, filepath.Ext(*in))
		*out = base + "_processed.xlsx"
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *categories == "" {
		*categories = cfg.Paths.CategoriesFile
	}
	if *column == "" {
		*column = cfg.Processing.CommentColumn
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	source, err := categorySource(*categories)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	index, err := catindex.New(source, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	client, err := llm.NewChatClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	splitter := split.NewService(client, split.Config{
		BatchSize:   cfg.Processing.SplitBatchSize,
		Concurrency: cfg.Processing.Concurrency,
		MaxRetries:  cfg.Processing.MaxRetries,
		BaseBackoff: cfg.Processing.RetryBaseBackoff,
	}, logger)
	classifier := classify.NewService(client, index, classify.Config{
		BatchSize:   cfg.Processing.ClassifyBatchSize,
		Concurrency: cfg.Processing.Concurrency,
		MaxRetries:  cfg.Processing.MaxRetries,
		BaseBackoff: cfg.Processing.RetryBaseBackoff,
		TopN:        cfg.Processing.CategoryTopN,
	}, logger)

	table, err := xlsx.ReadTable(*in, *column)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("cli.read", "file", *in, "rows", len(table.Rows))

	comments := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		comments[i] = table.Comment(row)
	}
	defectsPerRow := splitter.SplitAll(ctx, comments, func(done, total int) {
		logger.Info("cli.split_progress", "done", done, "total", total)
	})

	rows := expand.Table(table, defectsPerRow)
	defects := make([]entity.DefectText, len(rows))
	for i, r := range rows {
		defects[i] = r.Defect
	}
	classified := classifier.ClassifyAll(ctx, defects, func(done, total int) {
		logger.Info("cli.classify_progress", "done", done, "total", total)
	})
	for i := range rows {
		rows[i].Category = classified[i].Category
	}

	if err := xlsx.WriteResult(*out, table.Headers, rows); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("cli.done", "output", *out, "rows", len(rows))
}

// categorySource picks the reference loader by extension: workbooks go
// through the sheet parser, anything else is treated as one name per line.
func categorySource(path string) (catindex.Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" || ext == ".xlsm" {
		return &catindex.XLSXSource{Path: path}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var names []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return &catindex.StaticSource{Names: names, Version: catindex.FingerprintBytes(raw)}, nil
}
