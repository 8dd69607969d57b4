package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
)

var (
	_ catalog.Catalog       = (*Store)(nil)
	_ catalog.KeyValueStore = (*Store)(nil)
)

// Seed is the JSON document accepted by NewFromFile.
type Seed struct {
	Accounts        []core.Account          `json:"accounts"`
	Envelopes       []core.Envelope         `json:"envelopes"`
	IncomeSources   []core.IncomeSource     `json:"incomeSources"`
	Transactions    []core.Transaction      `json:"transactions"`
	Rules           []core.DistributionRule `json:"rules"`
	Overrides       map[string]core.Money   `json:"overrides"`
	BankConnections []core.BankConnection   `json:"bankConnections"`
	LinkSuggestions []core.LinkSuggestion   `json:"linkSuggestions"`
}

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	accounts    []core.Account
	envelopes   []core.Envelope
	sources     []core.IncomeSource
	txs         []core.Transaction
	rules       []core.DistributionRule
	overrides   map[core.YearMonth]core.Money
	connections []core.BankConnection
	links       []core.LinkSuggestion
	kv          map[string]string
}

func New(seed Seed) *Store {
	s := &Store{
		now:         time.Now,
		accounts:    append([]core.Account(nil), seed.Accounts...),
		envelopes:   append([]core.Envelope(nil), seed.Envelopes...),
		sources:     append([]core.IncomeSource(nil), seed.IncomeSources...),
		txs:         append([]core.Transaction(nil), seed.Transactions...),
		rules:       append([]core.DistributionRule(nil), seed.Rules...),
		overrides:   map[core.YearMonth]core.Money{},
		connections: append([]core.BankConnection(nil), seed.BankConnections...),
		links:       append([]core.LinkSuggestion(nil), seed.LinkSuggestions...),
		kv:          map[string]string{},
	}
	for k, v := range seed.Overrides {
		if ym, err := core.ParseYearMonth(k); err == nil {
			s.overrides[ym] = v
		}
	}
	return s
}

// NewFromFile loads a JSON seed. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	seed, err := LoadSeed(path)
	if err != nil {
		return nil, err
	}
	return New(seed), nil
}

// LoadSeed reads a JSON seed document. A blank or missing path yields an empty seed.
func LoadSeed(path string) (Seed, error) {
	if strings.TrimSpace(path) == "" {
		return Seed{}, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Seed{}, nil
	}
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	var flags seedActiveFlags
	if err := json.Unmarshal(b, &flags); err != nil {
		return Seed{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for i := range seed.IncomeSources {
		seed.IncomeSources[i].Active = flags.IncomeSources[i].isActive()
	}
	for i := range seed.Rules {
		seed.Rules[i].Active = flags.Rules[i].isActive()
	}
	return seed, nil
}

// seedActiveFlags tells an omitted "active" key, which means active, apart
// from an explicit false.
type seedActiveFlags struct {
	IncomeSources []activeFlag `json:"incomeSources"`
	Rules         []activeFlag `json:"rules"`
}

type activeFlag struct {
	Active *bool `json:"active"`
}

func (f activeFlag) isActive() bool {
	return f.Active == nil || *f.Active
}

// SetClock replaces the time source used for rule timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) ListEnvelopes(_ context.Context) ([]core.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Envelope(nil), s.envelopes...), nil
}

func (s *Store) ApplyAllocations(_ context.Context, allocations []core.EnvelopeAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := make(map[string]int, len(s.envelopes))
	for i, e := range s.envelopes {
		idx[e.ID] = i
	}
	for _, a := range allocations {
		if _, ok := idx[a.EnvelopeID]; !ok {
			return &core.NotFoundError{Kind: "envelope", ID: a.EnvelopeID}
		}
	}
	for _, a := range allocations {
		i := idx[a.EnvelopeID]
		s.envelopes[i].Balance = s.envelopes[i].Balance.Add(a.Amount)
	}
	return nil
}

func (s *Store) ListIncomeSources(_ context.Context) ([]core.IncomeSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.IncomeSource(nil), s.sources...), nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Account(nil), s.accounts...), nil
}

func (s *Store) ListTransactions(_ context.Context, month core.YearMonth) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if month.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ListIncomeTransactions(ctx context.Context, month core.YearMonth) ([]core.Transaction, error) {
	all, err := s.ListTransactions(ctx, month)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, tx := range all {
		if tx.IsIncome {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, &core.NotFoundError{Kind: "transaction", ID: id}
}

// AddTransaction records a transaction, mainly for tests and seeding.
func (s *Store) AddTransaction(tx core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
}

func (s *Store) ListRules(_ context.Context) ([]core.DistributionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.DistributionRule, len(s.rules))
	for i, r := range s.rules {
		out[i] = cloneRule(r)
	}
	return out, nil
}

func (s *Store) GetRule(_ context.Context, id string) (core.DistributionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			return cloneRule(r), nil
		}
	}
	return core.DistributionRule{}, &core.NotFoundError{Kind: "rule", ID: id}
}

func (s *Store) CreateRule(_ context.Context, r core.DistributionRule) (core.DistributionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	s.rules = append(s.rules, cloneRule(r))
	return r, nil
}

func (s *Store) UpdateRule(_ context.Context, r core.DistributionRule) (core.DistributionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.ID == r.ID {
			r.CreatedAt = existing.CreatedAt
			r.UpdatedAt = s.now().UTC()
			s.rules[i] = cloneRule(r)
			return r, nil
		}
	}
	return core.DistributionRule{}, &core.NotFoundError{Kind: "rule", ID: r.ID}
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{Kind: "rule", ID: id}
}

func (s *Store) GetIncomeOverride(_ context.Context, month core.YearMonth) (*core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.overrides[month]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) SetIncomeOverride(_ context.Context, month core.YearMonth, amount core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[month] = amount
	return nil
}

func (s *Store) ClearIncomeOverride(_ context.Context, month core.YearMonth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, month)
	return nil
}

func (s *Store) ListBankConnections(_ context.Context) ([]core.BankConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.BankConnection(nil), s.connections...), nil
}

func (s *Store) ListPendingLinkSuggestions(_ context.Context) ([]core.LinkSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LinkSuggestion(nil), s.links...), nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *Store) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.kv {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func cloneRule(r core.DistributionRule) core.DistributionRule {
	if r.ExpectedAmount != nil {
		v := *r.ExpectedAmount
		r.ExpectedAmount = &v
	}
	r.TargetEnvelopeIDs = append([]string(nil), r.TargetEnvelopeIDs...)
	return r
}
