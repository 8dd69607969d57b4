// Package remote implements the catalog ports against the upstream
// personal-finance API over JSON/HTTP, guarded by a circuit breaker.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
)

var _ catalog.Catalog = (*Client)(nil)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// StatusError is a non-2xx answer from the upstream API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: upstream returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("remote catalog: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("remote catalog: invalid base URL: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "remote-catalog",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    hc,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return &core.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func (c *Client) ListEnvelopes(ctx context.Context) ([]core.Envelope, error) {
	var out []core.Envelope
	if err := c.do(ctx, http.MethodGet, "/envelopes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ApplyAllocations(ctx context.Context, allocations []core.EnvelopeAllocation) error {
	body := struct {
		Allocations []core.EnvelopeAllocation `json:"allocations"`
	}{allocations}
	err := c.do(ctx, http.MethodPost, "/envelopes/allocations", body, nil)
	// The upstream answers 404 with the unknown envelope id as plain body.
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return &core.NotFoundError{Kind: "envelope", ID: se.Body}
	}
	return err
}

// incomeSourceDTO carries monthly amounts keyed by month name.
type incomeSourceDTO struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Reliability string                `json:"reliability"`
	AccountID   string                `json:"linkedAccountId"`
	ExpectedDay int                   `json:"expectedDay"`
	Active      *bool                 `json:"active"`
	Amounts     map[string]core.Money `json:"amounts"`
}

func (d incomeSourceDTO) toDomain() (core.IncomeSource, error) {
	rel, err := core.ParseReliability(d.Reliability)
	if err != nil {
		return core.IncomeSource{}, fmt.Errorf("income source %s: %w", d.ID, err)
	}
	src := core.IncomeSource{
		ID:          d.ID,
		Name:        d.Name,
		Reliability: rel,
		AccountID:   d.AccountID,
		ExpectedDay: d.ExpectedDay,
		Active:      d.Active == nil || *d.Active,
	}
	for name, amount := range d.Amounts {
		idx, ok := core.MonthIndex(name)
		if !ok {
			return core.IncomeSource{}, fmt.Errorf("income source %s: unknown month %q", d.ID, name)
		}
		src.Amounts[idx] = amount
	}
	return src, nil
}

func (c *Client) ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	var dtos []incomeSourceDTO
	if err := c.do(ctx, http.MethodGet, "/income-sources", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]core.IncomeSource, 0, len(dtos))
	for _, d := range dtos {
		src, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (c *Client) ListAccounts(ctx context.Context) ([]core.Account, error) {
	var out []core.Account
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error) {
	var out []core.Transaction
	path := "/transactions?month=" + url.QueryEscape(month.String())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListIncomeTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error) {
	var out []core.Transaction
	path := "/transactions?income=true&month=" + url.QueryEscape(month.String())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var out core.Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, &out); err != nil {
		return core.Transaction{}, notFound(err, "transaction", id)
	}
	return out, nil
}

func (c *Client) ListRules(ctx context.Context) ([]core.DistributionRule, error) {
	var out []core.DistributionRule
	if err := c.do(ctx, http.MethodGet, "/distribution-rules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRule(ctx context.Context, id string) (core.DistributionRule, error) {
	var out core.DistributionRule
	if err := c.do(ctx, http.MethodGet, "/distribution-rules/"+url.PathEscape(id), nil, &out); err != nil {
		return core.DistributionRule{}, notFound(err, "rule", id)
	}
	return out, nil
}

func (c *Client) CreateRule(ctx context.Context, r core.DistributionRule) (core.DistributionRule, error) {
	var out core.DistributionRule
	if err := c.do(ctx, http.MethodPost, "/distribution-rules", r, &out); err != nil {
		return core.DistributionRule{}, err
	}
	return out, nil
}

func (c *Client) UpdateRule(ctx context.Context, r core.DistributionRule) (core.DistributionRule, error) {
	var out core.DistributionRule
	if err := c.do(ctx, http.MethodPut, "/distribution-rules/"+url.PathEscape(r.ID), r, &out); err != nil {
		return core.DistributionRule{}, notFound(err, "rule", r.ID)
	}
	return out, nil
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return notFound(c.do(ctx, http.MethodDelete, "/distribution-rules/"+url.PathEscape(id), nil, nil), "rule", id)
}

type overrideDTO struct {
	Amount *core.Money `json:"amount"`
}

func (c *Client) GetIncomeOverride(ctx context.Context, month core.YearMonth) (*core.Money, error) {
	var out overrideDTO
	err := c.do(ctx, http.MethodGet, "/income-overrides/"+month.String(), nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.Amount, nil
}

func (c *Client) SetIncomeOverride(ctx context.Context, month core.YearMonth, amount core.Money) error {
	return c.do(ctx, http.MethodPut, "/income-overrides/"+month.String(), overrideDTO{Amount: &amount}, nil)
}

func (c *Client) ClearIncomeOverride(ctx context.Context, month core.YearMonth) error {
	err := c.do(ctx, http.MethodDelete, "/income-overrides/"+month.String(), nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) ListBankConnections(ctx context.Context) ([]core.BankConnection, error) {
	var out []core.BankConnection
	if err := c.do(ctx, http.MethodGet, "/bank-connections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPendingLinkSuggestions(ctx context.Context) ([]core.LinkSuggestion, error) {
	var out []core.LinkSuggestion
	if err := c.do(ctx, http.MethodGet, "/link-suggestions?status=pending", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// State reports the breaker state for readiness checks.
func (c *Client) State() string {
	return c.breaker.State().String()
}
