package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Sumatoshi-tech/scanreport/pkg/chunkparser"
	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/report"
	"github.com/Sumatoshi-tech/scanreport/pkg/session"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// Request errors.
var (
	errBadParam   = errors.New("invalid query parameter")
	errNoSession  = errors.New("no active session")
	errBadIssueID = errors.New("issue id must be an integer")
)

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

// loadResponse is returned by POST /v1/report.
type loadResponse struct {
	Session  session.Stats `json:"session"`
	Warnings []string      `json:"warnings,omitempty"`
}

func (s *Server) handleLoad(rw http.ResponseWriter, hr *http.Request) {
	var body io.Reader = hr.Body
	if s.opts.MaxReportBytes > 0 {
		body = http.MaxBytesReader(rw, hr.Body, s.opts.MaxReportBytes)
	}

	stats, err := s.manager.Load(hr.Context(), body, s.opts.FragmentSize)
	if err != nil {
		s.writeError(hr.Context(), rw, loadStatus(err), err)

		return
	}

	resp := loadResponse{Session: stats}

	if active := s.manager.Active(); active != nil && active.ID() == stats.ID {
		for _, w := range active.Warnings() {
			resp.Warnings = append(resp.Warnings, w.String())
		}
	}

	writeJSON(hr.Context(), rw, http.StatusOK, resp)
}

func loadStatus(err error) int {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chunkparser.ErrMalformedStream), errors.Is(err, report.ErrInvalidReportVersion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSessionCancelled):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSession(rw http.ResponseWriter, hr *http.Request) {
	active := s.manager.Active()
	if active == nil {
		s.writeError(hr.Context(), rw, http.StatusNotFound, errNoSession)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, active.Stats())
}

func (s *Server) handleCancel(rw http.ResponseWriter, hr *http.Request) {
	s.manager.Cancel(hr.Context())
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(rw http.ResponseWriter, hr *http.Request) {
	rep, err := s.engine.GetReport(hr.Context())
	if errors.Is(err, query.ErrReportNotAvailable) {
		s.writeError(hr.Context(), rw, http.StatusNotFound, err)

		return
	}

	if err != nil {
		s.writeError(hr.Context(), rw, http.StatusInternalServerError, err)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, rep)
}

func (s *Server) handleIssues(rw http.ResponseWriter, hr *http.Request) {
	params := hr.URL.Query()

	page, perPage, err := s.pageParams(params.Get("page"), params.Get("perPage"))
	if err != nil {
		s.writeError(hr.Context(), rw, http.StatusBadRequest, err)

		return
	}

	filter, err := parseFilter(params.Get("path"), params.Get("type"), params.Get("method"))
	if err != nil {
		s.writeError(hr.Context(), rw, http.StatusBadRequest, err)

		return
	}

	sort := query.Sort{Field: params.Get("sort"), Order: query.ParseOrder(params.Get("order"))}

	result, err := s.engine.GetIssuesPage(hr.Context(), page, perPage, sort, filter)
	if err != nil {
		s.writeError(hr.Context(), rw, queryStatus(err), err)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, result)
}

func (s *Server) handleIssue(rw http.ResponseWriter, hr *http.Request) {
	id, err := strconv.ParseInt(hr.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(hr.Context(), rw, http.StatusBadRequest, errBadIssueID)

		return
	}

	issue, err := s.engine.GetIssue(hr.Context(), id)
	if err != nil {
		s.writeError(hr.Context(), rw, queryStatus(err), err)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, issue)
}

func (s *Server) handlePaths(rw http.ResponseWriter, hr *http.Request) {
	params := hr.URL.Query()

	page, perPage, err := s.pageParams(params.Get("page"), params.Get("perPage"))
	if err != nil {
		s.writeError(hr.Context(), rw, http.StatusBadRequest, err)

		return
	}

	result, err := s.engine.GetPaths(hr.Context(), page, perPage, query.PathFilter{Contains: params.Get("contains")})
	if err != nil {
		s.writeError(hr.Context(), rw, queryStatus(err), err)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, result)
}

func (s *Server) handleSkipped(rw http.ResponseWriter, hr *http.Request) {
	ops, err := s.engine.GetSkippedOperations(hr.Context())
	if err != nil {
		s.writeError(hr.Context(), rw, queryStatus(err), err)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, ops)
}

func queryStatus(err error) int {
	switch {
	case errors.Is(err, query.ErrInvalidPageSize):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNotOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// pageParams parses page and perPage. Missing values select the first page
// and the default page size.
func (s *Server) pageParams(rawPage, rawPerPage string) (page, perPage int, err error) {
	page, perPage = 1, s.opts.DefaultPerPage

	if rawPage != "" {
		page, err = strconv.Atoi(rawPage)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: page %q", errBadParam, rawPage)
		}
	}

	if rawPerPage != "" {
		perPage, err = strconv.Atoi(rawPerPage)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: perPage %q", errBadParam, rawPerPage)
		}
	}

	return page, perPage, nil
}

func parseFilter(path, issueType, method string) (query.Filter, error) {
	filter := query.Filter{Path: path}

	if issueType != "" {
		filter.IssueType = report.ParseIssueType(issueType)
		if filter.IssueType == report.IssueTypeUnknown {
			return filter, fmt.Errorf("%w: type %q", errBadParam, issueType)
		}
	}

	if method != "" {
		filter.Method = report.ParseMethod(method)
		if filter.Method == report.MethodUnknown {
			return filter, fmt.Errorf("%w: method %q", errBadParam, method)
		}
	}

	return filter, nil
}

// writeJSON encodes value as the JSON response body.
func writeJSON(ctx context.Context, rw http.ResponseWriter, code int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	encodeErr := json.NewEncoder(rw).Encode(value)
	if encodeErr != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", encodeErr)
	}
}

func (s *Server) writeError(ctx context.Context, rw http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.opts.Logger.ErrorContext(ctx, "request failed", "status", code, "error", err)
	} else {
		s.opts.Logger.DebugContext(ctx, "request rejected", "status", code, "error", err)
	}

	writeJSON(ctx, rw, code, errorResponse{Error: err.Error()})
}
