package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// extractRequest mirrors the POST /extract body.
type extractRequest struct {
	URL       string `json:"url"`
	FetchMode string `json:"fetch_mode,omitempty"`
	MaxAge    int    `json:"max_age,omitempty"`
	Debug     bool   `json:"debug,omitempty"`
}

func main() {
	apiURL := os.Getenv("LISTING_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("LISTING_API_KEY")

	s := server.NewMCPServer(
		"listingd",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractTool := mcp.NewTool("extract_listing",
		mcp.WithDescription("Extract structured fields (price, rooms, surfaces, location, description, energy rating, heating) from a French real-estate listing URL. Fields that cannot be found are null."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The listing page URL; short links and redirects are followed"),
		),
		mcp.WithString("fetch_mode",
			mcp.Description("'browser' (default, renders JavaScript) or 'http' (plain fetch, faster, no JavaScript)"),
			mcp.Enum("browser", "http"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result up to this many milliseconds old (default: 0, no cache)"),
		),
		mcp.WithBoolean("debug",
			mcp.Description("Include per-field outcomes (ok, not_found, timeout, error)"),
		),
	)
	s.AddTool(extractTool, handleExtract(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleExtract(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 90 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := extractRequest{
			URL:       url,
			FetchMode: request.GetString("fetch_mode", ""),
			MaxAge:    request.GetInt("max_age", 0),
			Debug:     request.GetBool("debug", false),
		}
		status, respBody, err := apiPost(ctx, client, apiURL, apiKey, "/extract", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if status != http.StatusOK {
			var e struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
				return mcp.NewToolResultError(fmt.Sprintf("extraction failed (%d): %s", status, e.Error)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("extraction failed with status %d", status)), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}

// apiPost sends a POST request to the listingd API and returns the status and body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
