package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

var (
	apiURL    = flag.String("api-url", "http://localhost:8080", "listingd base URL")
	apiKey    = flag.String("api-key", "", "API key, sent as X-API-Key")
	runs      = flag.Int("runs", 3, "runs per URL")
	urlsFile  = flag.String("urls", "", "file with one listing URL per line (# comments allowed)")
	fetchMode = flag.String("fetch-mode", "browser", "browser or http")
	output    = flag.String("output", "benchmark-results.json", "JSON report path")
)

// metaKeys are response keys that are not extracted fields.
var metaKeys = map[string]bool{"url": true, "redirected_url": true, "field_outcomes": true}

type runResult struct {
	Run        int      `json:"run"`
	LatencyMs  int64    `json:"latency_ms"`
	StatusCode int      `json:"status_code"`
	Fields     int      `json:"fields"`
	Filled     int      `json:"filled"`
	Missing    []string `json:"missing,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (r runResult) ok() bool { return r.StatusCode == http.StatusOK }

type urlResult struct {
	URL          string      `json:"url"`
	Runs         []runResult `json:"runs"`
	AvgLatencyMs float64     `json:"avg_latency_ms"`
	Coverage     float64     `json:"coverage"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	FetchMode  string      `json:"fetch_mode"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	targets, err := loadURLs(*urlsFile, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no URLs given (use -urls or pass them as arguments)")
		os.Exit(2)
	}

	fmt.Println("=== listingd benchmark ===")
	fmt.Printf("API URL:    %s\n", *apiURL)
	fmt.Printf("Fetch mode: %s\n", *fetchMode)
	fmt.Printf("Runs/URL:   %d\n\n", *runs)

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		FetchMode:  *fetchMode,
		RunsPerURL: *runs,
	}

	client := &http.Client{Timeout: 90 * time.Second}
	for _, u := range targets {
		fmt.Printf("%s\n", u)
		ur := urlResult{URL: u}
		for i := 1; i <= *runs; i++ {
			rr := extractOnce(client, u, i)
			if rr.ok() {
				fmt.Printf("  run %d: %dms  %d/%d fields\n", i, rr.LatencyMs, rr.Filled, rr.Fields)
			} else {
				fmt.Printf("  run %d: %d %s\n", i, rr.StatusCode, rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}
		ur.AvgLatencyMs, ur.Coverage = summarize(ur.Runs)
		report.Results = append(report.Results, ur)
	}

	fmt.Println()
	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func loadURLs(path string, args []string) ([]string, error) {
	urls := append([]string(nil), args...)
	if path == "" {
		return urls, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func extractOnce(client *http.Client, target string, run int) runResult {
	rr := runResult{Run: run}

	body, _ := json.Marshal(map[string]string{"url": target, "fetch_mode": *fetchMode})
	req, err := http.NewRequest(http.MethodPost, *apiURL+"/extract", bytes.NewReader(body))
	if err != nil {
		rr.Error = err.Error()
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	rr.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		rr.Error = err.Error()
		return rr
	}
	defer resp.Body.Close()
	rr.StatusCode = resp.StatusCode

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		rr.Error = fmt.Sprintf("decode: %v", err)
		return rr
	}
	if !rr.ok() {
		rr.Error, _ = out["error"].(string)
		return rr
	}

	for k, v := range out {
		if metaKeys[k] {
			continue
		}
		rr.Fields++
		if v == nil {
			rr.Missing = append(rr.Missing, k)
			continue
		}
		rr.Filled++
	}
	sort.Strings(rr.Missing)
	return rr
}

// summarize returns the mean latency and the mean share of filled fields
// over successful runs.
func summarize(runs []runResult) (float64, float64) {
	var n, latency, coverage float64
	for _, r := range runs {
		if !r.ok() || r.Fields == 0 {
			continue
		}
		n++
		latency += float64(r.LatencyMs)
		coverage += float64(r.Filled) / float64(r.Fields)
	}
	if n == 0 {
		return 0, 0
	}
	return latency / n, coverage / n
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("-", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tCoverage\tOK Runs\n")
	for _, r := range results {
		okRuns := 0
		for _, run := range r.Runs {
			if run.ok() {
				okRuns++
			}
		}
		if okRuns == 0 {
			fmt.Fprintf(w, "%s\tFAILED\t-\t0/%d\n", truncateURL(r.URL, 50), len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%.0f%%\t%d/%d\n",
			truncateURL(r.URL, 50), int64(r.AvgLatencyMs), r.Coverage*100, okRuns, len(r.Runs))
	}
	w.Flush()
	fmt.Println(strings.Repeat("-", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
