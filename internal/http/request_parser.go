package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"budgetflow/internal/core"
)

const (
	maxBodyBytes    = 1 << 20
	clientIDHeader  = "X-Client-ID"
	defaultClientID = "default"
	maxClientIDLen  = 128
)

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON object into dst. Malformed bodies map to
// 400; values the domain codecs reject keep their sentinel so they map to 422.
func decodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type must be application/json", errBadRequest)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return err
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return core.NewValidationError(typeErr.Field, "has the wrong type")
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

// monthParam parses the {month} path segment in YYYY-MM form.
func monthParam(r *http.Request) (core.YearMonth, error) {
	return core.ParseYearMonth(chi.URLParam(r, "month"))
}

// ParseMonthQuery reads year and month query values, defaulting each
// missing one to the month containing now.
func ParseMonthQuery(query url.Values, now time.Time) (core.YearMonth, error) {
	year, month := now.Year(), int(now.Month())
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.YearMonth{}, fmt.Errorf("%w: year %q", core.ErrInvalidMonth, v)
		}
		year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.YearMonth{}, fmt.Errorf("%w: month %q", core.ErrInvalidMonth, v)
		}
		month = m
	}
	return core.NewYearMonth(year, month)
}

// clientID identifies the caller for per-client state such as dismissals.
func clientID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(clientIDHeader))
	if id == "" || len(id) > maxClientIDLen {
		return defaultClientID
	}
	return id
}
