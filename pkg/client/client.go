package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultMaxResponseBytes bounds how much of a response body is read.
const DefaultMaxResponseBytes = 32 << 20

// Client is a thin HTTP wrapper for the cloud record summary API.
type Client struct {
	URL        string
	Token      string
	HTTPClient *http.Client
	// MaxResponseBytes caps a response body; larger responses are an error.
	MaxResponseBytes int64
}

// New creates a new client that authenticates with the given bearer token.
func New(url, token string) *Client {
	return &Client{
		URL:              strings.TrimRight(url, "/"),
		Token:            token,
		MaxResponseBytes: DefaultMaxResponseBytes,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// SummaryQuery selects summaries. From is required by the server.
type SummaryQuery struct {
	Group   string
	Service string
	From    string
	To      string
	Page    int
}

// Values encodes q as request parameters. Empty fields are omitted.
func (q SummaryQuery) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if strings.TrimSpace(val) != "" {
			v.Set(k, strings.TrimSpace(val))
		}
	}
	set("group", q.Group)
	set("service", q.Service)
	set("from", q.From)
	set("to", q.To)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}

// SummaryPage is one page of summary rows. Rows only carry the fields the
// server is configured to return.
type SummaryPage struct {
	Count    int              `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []map[string]any `json:"results"`
}

// StatusError is returned for non-2xx responses. The server sends no body
// on failure, so the status code is all there is.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Summary fetches one page of summaries.
func (c *Client) Summary(ctx context.Context, q SummaryQuery) (*SummaryPage, error) {
	path := "/cloud/record/summary"
	if enc := q.Values().Encode(); enc != "" {
		path += "?" + enc
	}
	var page SummaryPage
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchPage follows a next or previous link returned in a SummaryPage.
func (c *Client) FetchPage(ctx context.Context, link string) (*SummaryPage, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parse page link: %w", err)
	}
	var page SummaryPage
	if err := c.get(ctx, u.RequestURI(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SummaryAll walks every page starting at q and returns all rows.
func (c *Client) SummaryAll(ctx context.Context, q SummaryQuery) ([]map[string]any, error) {
	page, err := c.Summary(ctx, q)
	if err != nil {
		return nil, err
	}
	rows := append([]map[string]any(nil), page.Results...)
	for page.Next != nil {
		if page, err = c.FetchPage(ctx, *page.Next); err != nil {
			return nil, err
		}
		rows = append(rows, page.Results...)
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode}
	}
	limit := c.MaxResponseBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("response body exceeds %d bytes", limit)
	}
	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}
