package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/cloudsummary/internal/config"
	"github.com/user/cloudsummary/internal/iam"
	"github.com/user/cloudsummary/internal/server"
	"github.com/user/cloudsummary/internal/store"
)

type tokenVerifier map[string]iam.Identity

func (v tokenVerifier) Verify(ctx context.Context, token string) (iam.Identity, error) {
	id, ok := v[token]
	if !ok {
		return "", &iam.AuthError{Reason: iam.ReasonMissingClientID}
	}
	return id, nil
}

func testClient(t *testing.T, token string, perPage int) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "summaries.db")
	var records []store.SummaryRecord
	for i := 0; i < 5; i++ {
		records = append(records, store.SummaryRecord{
			SiteName:          "TestSite",
			VOGroup:           "TestGroup",
			EarliestStartTime: time.Date(2016, 7, 20+i, 0, 0, 0, 0, time.UTC),
			WallDuration:      int64(100 * (i + 1)),
		})
	}
	if err := store.SeedSQLite(path, records); err != nil {
		t.Fatalf("SeedSQLite: %v", err)
	}

	srv := server.New(server.Options{
		Verifier:  tokenVerifier{"good": "TestService", "other": "FakeService"},
		AllowList: iam.NewAllowList([]string{"TestService"}),
		OpenStore: func(ctx context.Context) (*store.Store, error) {
			return store.Open(ctx, config.DB{Backend: "sqlite", Name: path})
		},
		ReturnHeaders:  []string{"WallDuration", "Day"},
		ResultsPerPage: perPage,
	}, ":0")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL, token)
}

func TestClientSummary(t *testing.T) {
	c := testClient(t, "good", 100)
	page, err := c.Summary(context.Background(), SummaryQuery{Group: "TestGroup", From: "20000101", To: "20191231"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if page.Count != 5 || len(page.Results) != 5 {
		t.Fatalf("count = %d, results = %d", page.Count, len(page.Results))
	}
	if page.Next != nil || page.Previous != nil {
		t.Errorf("single page should have no links: %v %v", page.Next, page.Previous)
	}
	row := page.Results[0]
	if row["WallDuration"] != float64(100) || row["Day"] != float64(20) {
		t.Errorf("first row = %v", row)
	}
	if _, ok := row["SiteName"]; ok {
		t.Errorf("row has field outside return headers: %v", row)
	}
}

func TestClientSummaryAll(t *testing.T) {
	c := testClient(t, "good", 2)
	rows, err := c.SummaryAll(context.Background(), SummaryQuery{Group: "TestGroup", From: "20000101", To: "20191231"})
	if err != nil {
		t.Fatalf("SummaryAll: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	for i, row := range rows {
		if want := float64(100 * (i + 1)); row["WallDuration"] != want {
			t.Errorf("row %d WallDuration = %v, want %v", i, row["WallDuration"], want)
		}
	}
}

func TestClientStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		query  SummaryQuery
		status int
	}{
		{"no token", "", SummaryQuery{Group: "TestGroup", From: "20000101"}, http.StatusUnauthorized},
		{"unknown token", "bad", SummaryQuery{Group: "TestGroup", From: "20000101"}, http.StatusUnauthorized},
		{"not allowed", "other", SummaryQuery{Group: "TestGroup", From: "20000101"}, http.StatusForbidden},
		{"no from", "good", SummaryQuery{Group: "TestGroup"}, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, tt.token, 100)
			_, err := c.Summary(context.Background(), tt.query)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want StatusError", err)
			}
			if se.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", se.StatusCode, tt.status)
			}
		})
	}
}

func TestSummaryQueryValues(t *testing.T) {
	q := SummaryQuery{Group: " TestGroup ", From: "20000101", Page: 3}
	got := q.Values().Encode()
	if want := "from=20000101&group=TestGroup&page=3"; got != want {
		t.Errorf("Values = %q, want %q", got, want)
	}
}

func TestClientResponseLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"count":1,"next":null,"previous":null,"results":[{"Site":"%s"}]}`, strings.Repeat("x", 512))
	}))
	defer ts.Close()

	c := New(ts.URL, "good")
	c.MaxResponseBytes = 256
	if _, err := c.Summary(context.Background(), SummaryQuery{From: "20000101"}); err == nil {
		t.Fatal("expected error for oversized response")
	}

	c.MaxResponseBytes = 4096
	page, err := c.Summary(context.Background(), SummaryQuery{From: "20000101"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if page.Count != 1 {
		t.Errorf("count = %d, want 1", page.Count)
	}
}
