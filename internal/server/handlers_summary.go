package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/cloudsummary/internal/iam"
	"github.com/user/cloudsummary/internal/store"
	"github.com/user/cloudsummary/internal/summary"
)

var tracer = otel.Tracer("github.com/user/cloudsummary/internal/server")

// handleCloudRecordSummary returns daily cloud usage summaries.
//
//	/cloud/record/summary?group=<group>&from=<date>&to=<date>
//	/cloud/record/summary?service=<site>&from=<date>&to=<date>
//	/cloud/record/summary?from=<date>
//
// The first form returns the summaries of a group across all services, the
// second those of a service across all groups, the last the whole
// infrastructure from <date> onwards.
func (s *Server) handleCloudRecordSummary(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "cloud_record_summary")
	defer span.End()

	token, err := iam.TokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			slog.Error("no Authorization header provided, authentication failed")
		} else {
			slog.Error("Authorization header provided, but not of expected form")
		}
		fail(w, span, http.StatusUnauthorized, "extract_token")
		return
	}

	id, err := s.verifyIdentity(ctx, token)
	if err != nil {
		slog.Error("could not verify token", "stage", "verify_identity", "reason", iam.ReasonOf(err), "error", err)
		fail(w, span, http.StatusUnauthorized, "verify_identity")
		return
	}
	span.SetAttributes(attribute.String("cloudsummary.client_id", string(id)))
	slog.Debug("token identified", "client_id", id)

	if !s.allow.Allows(id) {
		slog.Error("client does not have permission to view summaries", "stage", "authorize", "client_id", id)
		fail(w, span, http.StatusForbidden, "authorize")
		return
	}
	slog.Info("client authorized", "client_id", id)

	q := summary.ParseQuery(r.URL.Query(), s.now())
	if !q.HasFrom() {
		slog.Error("query without from is not supported", "stage", "parse_parameters", "client_id", id, "query", r.URL.RawQuery)
		fail(w, span, http.StatusNotImplemented, "parse_parameters")
		return
	}
	filter, err := q.Filter()
	if err != nil {
		slog.Error("invalid query parameters", "stage", "parse_parameters", "client_id", id, "error", err)
		fail(w, span, http.StatusBadRequest, "parse_parameters")
		return
	}

	slog.Debug("summary query parsed", "client_id", id,
		"group", filter.Group, "service", filter.Service, "from", q.From, "to", q.To, "to_defaulted", q.ToDefaulted)

	rs, err := s.loadSummaries(ctx, filter)
	if err != nil {
		slog.Error("could not load summaries", "stage", "query", "client_id", id,
			"unavailable", store.IsUnavailable(err), "query_failed", store.IsQueryError(err), "error", err)
		fail(w, span, http.StatusInternalServerError, "query")
		return
	}

	span.SetAttributes(attribute.Int("cloudsummary.rows", rs.Len()))
	rows := summary.Project(rs, s.returnHeaders)
	page := summary.Paginate(rows, s.perPage, q.Page, pageLinker(r))
	span.SetAttributes(attribute.Int("cloudsummary.count", page.Count))
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) verifyIdentity(ctx context.Context, token string) (iam.Identity, error) {
	ctx, span := tracer.Start(ctx, "iam.verify")
	defer span.End()
	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, string(iam.ReasonOf(err)))
	}
	return id, err
}

// loadSummaries opens a connection for this request, runs the query and
// closes the connection again.
func (s *Server) loadSummaries(ctx context.Context, f store.SummaryFilter) (*store.ResultSet, error) {
	ctx, span := tracer.Start(ctx, "store.summaries", trace.WithAttributes(
		attribute.String("cloudsummary.group", f.Group),
		attribute.String("cloudsummary.service", f.Service),
	))
	defer span.End()

	st, err := s.openStore(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "connect")
		return nil, err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("close summary store", "error", err)
		}
	}()

	rs, err := st.Summaries(ctx, f)
	if err != nil {
		span.SetStatus(codes.Error, "query")
		return nil, err
	}
	return rs, nil
}

func fail(w http.ResponseWriter, span trace.Span, status int, stage string) {
	span.SetAttributes(attribute.String("cloudsummary.failed_stage", stage))
	span.SetStatus(codes.Error, http.StatusText(status))
	writeStatus(w, status)
}

// pageLinker builds absolute links to other pages of the current request.
func pageLinker(r *http.Request) summary.PageLinker {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	base := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
	query := r.URL.Query()
	return func(n int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(n))
		u := base
		u.RawQuery = q.Encode()
		return u.String()
	}
}
