package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/listingd/config"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/pipeline"
	"github.com/use-agent/listingd/scraper"
)

var (
	staticMode bool
	debugOut   bool
	fieldsFile string
	timeout    time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extract the fields of one listing and print them as JSON",
	Example: `  # Render in headless Chrome (default)
  listingctl extract https://www.example.fr/annonces/42

  # Plain HTTP fetch, no JavaScript
  listingctl extract https://www.example.fr/annonces/42 --http

  # Try a field table before deploying it, with per-field outcomes
  listingctl extract https://www.example.fr/annonces/42 --fields ./fields.json --debug`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().BoolVar(&staticMode, "http", false, "Fetch over plain HTTP instead of a headless browser")
	extractCmd.Flags().BoolVar(&debugOut, "debug", false, "Include per-field outcomes")
	extractCmd.Flags().StringVarP(&fieldsFile, "fields", "f", "", "Field table JSON file (default: embedded table)")
	extractCmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Overall deadline (default: LISTING_REQUEST_TIMEOUT)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	cfg.Browser.PoolSize = 0
	cfg.Browser.MaxSessions = 1
	if fieldsFile != "" {
		cfg.Fields.File = fieldsFile
	}
	cfg.Fields.Watch = false
	if timeout > 0 {
		cfg.Extract.RequestTimeout = timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sc, closePool, err := scraper.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePool()

	req := &models.ExtractRequest{URL: args[0], Debug: debugOut}
	if staticMode {
		req.FetchMode = models.FetchModeHTTP
	}
	if err := req.Validate(); err != nil {
		return printJSON(cmd, pipeline.AssembleError(err), err)
	}
	req.Defaults()

	res, err := sc.Extract(ctx, req)
	if err != nil {
		return printJSON(cmd, pipeline.AssembleError(err), err)
	}
	return printJSON(cmd, pipeline.Assemble(res, req.Debug), nil)
}

// printJSON writes v to stdout and returns failure so the exit code is non-zero.
func printJSON(cmd *cobra.Command, v any, failure error) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return failure
}
