// Package scalyr implements the dataset_scalyr_query builtin against the
// DataSet (Scalyr) log query API.
package scalyr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultServer   = "https://app.scalyr.com"
	DefaultTokenEnv = "SCALYR_API_TOKEN"

	DefaultStartTime = "4h"
	DefaultEndTime   = "0h"
	DefaultMaxCount  = 100
	MaxMaxCount      = 5000
)

// Query holds the parameters of one log query.
type Query struct {
	Filter            string
	StartTime         string
	EndTime           string
	MaxCount          int
	Columns           string
	ContinuationToken string
}

type queryBody struct {
	Token             string `json:"token"`
	QueryType         string `json:"queryType"`
	Filter            string `json:"filter"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	MaxCount          int    `json:"maxCount"`
	Columns           string `json:"columns"`
	ContinuationToken string `json:"continuationToken,omitempty"`
}

// Client posts queries to <Server>/api/query. API failures are returned as
// data ({"error": ...}), never as Go errors.
type Client struct {
	Server   string
	TokenEnv string
	HTTP     *http.Client

	lookupEnv func(string) (string, bool)
}

// NewClient returns a client with defaults filled in.
func NewClient(server, tokenEnv string, httpClient *http.Client) *Client {
	if strings.TrimSpace(server) == "" {
		server = DefaultServer
	}
	if strings.TrimSpace(tokenEnv) == "" {
		tokenEnv = DefaultTokenEnv
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		Server:    strings.TrimRight(server, "/"),
		TokenEnv:  tokenEnv,
		HTTP:      httpClient,
		lookupEnv: os.LookupEnv,
	}
}

// Query runs q and returns the decoded API response or an error object.
func (c *Client) Query(ctx context.Context, q Query) map[string]any {
	token, _ := c.lookupEnv(c.TokenEnv)
	if token == "" {
		return map[string]any{"error": fmt.Sprintf("%s environment variable not set", c.TokenEnv)}
	}

	body := queryBody{
		Token:             token,
		QueryType:         "log",
		Filter:            q.Filter,
		StartTime:         q.StartTime,
		EndTime:           q.EndTime,
		MaxCount:          q.MaxCount,
		Columns:           q.Columns,
		ContinuationToken: q.ContinuationToken,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return unexpected(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Server+"/api/query", bytes.NewReader(payload))
	if err != nil {
		return unexpected(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return map[string]any{"error": fmt.Sprintf("URL Error: %v", urlErr.Err)}
		}
		return unexpected(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return unexpected(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var details any
		if err := json.Unmarshal(raw, &details); err != nil {
			details = string(raw)
		}
		return map[string]any{
			"error":   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			"details": details,
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return unexpected(err)
	}
	return decoded
}

func unexpected(err error) map[string]any {
	return map[string]any{"error": fmt.Sprintf("Unexpected error: %v", err)}
}
