package core

import (
	"strings"
	"time"
)

const (
	PurposeSinkingFund    EnvelopePurpose = "sinking_fund"
	PurposeSpendingBudget EnvelopePurpose = "spending_budget"

	TierEssential     PriorityTier = "essential"
	TierImportant     PriorityTier = "important"
	TierDiscretionary PriorityTier = "discretionary"

	EnvelopeActive   EnvelopeStatus = "active"
	EnvelopeArchived EnvelopeStatus = "archived"

	ReliabilityGuaranteed Reliability = "guaranteed"
	ReliabilityExpected   Reliability = "expected"
	ReliabilityUncertain  Reliability = "uncertain"

	StrategyPriority     StrategyName = "priority"
	StrategyProportional StrategyName = "proportional"
	StrategyEqual        StrategyName = "equal"

	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired"
	ConnectionError   ConnectionStatus = "error"
)

type (
	EnvelopePurpose  string
	PriorityTier     string
	EnvelopeStatus   string
	Reliability      string
	StrategyName     string
	ConnectionStatus string

	// Envelope is a named pot that income is assigned into.
	Envelope struct {
		ID                  string          `json:"id"`
		Name                string          `json:"name"`
		Purpose             EnvelopePurpose `json:"purpose"`
		Target              Money           `json:"targetAmount"`
		MonthlyContribution Money           `json:"monthlyContribution"`
		Balance             Money           `json:"currentBalance"`
		Priority            PriorityTier    `json:"priority"`
		AccountID           string          `json:"linkedAccountId,omitempty"`
		Status              EnvelopeStatus  `json:"status"`
		StartMonth          *YearMonth      `json:"startMonth,omitempty"`
		EndMonth            *YearMonth      `json:"endMonth,omitempty"`
	}

	// IncomeSource is a planned inflow with one amount per calendar month.
	IncomeSource struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		Reliability Reliability `json:"reliability"`
		Amounts     [12]Money   `json:"monthlyAmounts"`
		AccountID   string      `json:"linkedAccountId,omitempty"`
		ExpectedDay int         `json:"expectedDay,omitempty"`
		Active      bool        `json:"active"`
	}

	Account struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Transaction is a read-only view of a bank movement. Positive amounts are inflows.
	Transaction struct {
		ID          string    `json:"id"`
		Date        time.Time `json:"date"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		CategoryID  string    `json:"categoryId,omitempty"`
		AccountID   string    `json:"accountId,omitempty"`
		IsIncome    bool      `json:"isIncome"`
	}

	// DistributionRule recognizes incoming funds and names how to split them.
	DistributionRule struct {
		ID                 string       `json:"id"`
		Name               string       `json:"name"`
		ExpectedAmount     *Money       `json:"expectedAmount,omitempty"`
		AmountTolerance    float64      `json:"amountTolerance"`
		DescriptionPattern string       `json:"descriptionPattern,omitempty"`
		CategoryID         string       `json:"categoryId,omitempty"`
		AccountID          string       `json:"accountId,omitempty"`
		AutoDistribute     bool         `json:"autoDistribute"`
		Strategy           StrategyName `json:"strategy"`
		TargetEnvelopeIDs  []string     `json:"targetEnvelopeIds,omitempty"`
		Active             bool         `json:"active"`
		CreatedAt          time.Time    `json:"createdAt"`
		UpdatedAt          time.Time    `json:"updatedAt"`
	}

	BankConnection struct {
		ID           string           `json:"id"`
		Institution  string           `json:"institution"`
		Status       ConnectionStatus `json:"status"`
		LastSyncedAt time.Time        `json:"lastSyncedAt"`
	}

	// LinkSuggestion proposes attaching a transaction to an envelope.
	LinkSuggestion struct {
		ID            string    `json:"id"`
		TransactionID string    `json:"transactionId"`
		EnvelopeID    string    `json:"envelopeId"`
		Confidence    float64   `json:"confidence"`
		CreatedAt     time.Time `json:"createdAt"`
	}
)

// Rank orders tiers from most to least important.
func (t PriorityTier) Rank() int {
	switch t {
	case TierEssential:
		return 0
	case TierImportant:
		return 1
	case TierDiscretionary:
		return 2
	default:
		return 3
	}
}

func (t PriorityTier) Valid() bool {
	return t.Rank() < 3
}

func (e Envelope) IsActive() bool {
	return e.Status == EnvelopeActive
}

// ActiveIn reports whether the envelope is active and its window covers ym.
func (e Envelope) ActiveIn(ym YearMonth) bool {
	if !e.IsActive() {
		return false
	}
	if e.StartMonth != nil && ym.Before(*e.StartMonth) {
		return false
	}
	if e.EndMonth != nil && ym.After(*e.EndMonth) {
		return false
	}
	return true
}

// RemainingNeed is how far the balance is from the target, never negative.
func (e Envelope) RemainingNeed() Money {
	return Max(Money{}, e.Target.Sub(e.Balance))
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	switch e.Purpose {
	case PurposeSinkingFund, PurposeSpendingBudget:
	default:
		return NewValidationError("purpose", "must be sinking_fund or spending_budget")
	}
	if !e.Priority.Valid() {
		return NewValidationError("priority", "must be essential, important or discretionary")
	}
	if e.Target.IsNegative() {
		return NewValidationError("targetAmount", "must not be negative")
	}
	if e.MonthlyContribution.IsNegative() {
		return NewValidationError("monthlyContribution", "must not be negative")
	}
	if e.StartMonth != nil && e.EndMonth != nil && e.EndMonth.Before(*e.StartMonth) {
		return NewValidationError("endMonth", "must not precede startMonth")
	}
	return nil
}

// ParseReliability is the only way a reliability enters the domain.
func ParseReliability(s string) (Reliability, error) {
	switch r := Reliability(strings.ToLower(strings.TrimSpace(s))); r {
	case ReliabilityGuaranteed, ReliabilityExpected, ReliabilityUncertain:
		return r, nil
	default:
		return "", NewValidationError("reliability", "must be guaranteed, expected or uncertain")
	}
}

// BudgetSafe reports whether income of this reliability may be planned against.
func (r Reliability) BudgetSafe() bool {
	return r == ReliabilityGuaranteed || r == ReliabilityExpected
}

func (r *Reliability) UnmarshalText(b []byte) error {
	parsed, err := ParseReliability(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AmountFor returns the planned amount for the month.
func (s IncomeSource) AmountFor(ym YearMonth) Money {
	return s.Amounts[ym.Index()]
}

func (s IncomeSource) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	if _, err := ParseReliability(string(s.Reliability)); err != nil {
		return err
	}
	if s.ExpectedDay < 0 || s.ExpectedDay > 31 {
		return NewValidationError("expectedDay", "must be between 1 and 31")
	}
	for i, a := range s.Amounts {
		if a.IsNegative() {
			return NewValidationError(MonthNames[i], "must not be negative")
		}
	}
	return nil
}

// ParseStrategyName accepts the three known strategy names, any case.
func ParseStrategyName(s string) (StrategyName, error) {
	switch n := StrategyName(strings.ToLower(strings.TrimSpace(s))); n {
	case StrategyPriority, StrategyProportional, StrategyEqual:
		return n, nil
	default:
		return "", NewValidationError("strategy", "must be priority, proportional or equal")
	}
}

func (r DistributionRule) HasAmountCriterion() bool {
	return r.ExpectedAmount != nil
}

func (r DistributionRule) HasDescriptionCriterion() bool {
	return strings.TrimSpace(r.DescriptionPattern) != ""
}

// Specificity ranks rules: amount and description 2, one of them 1, neither 0.
func (r DistributionRule) Specificity() int {
	n := 0
	if r.HasAmountCriterion() {
		n++
	}
	if r.HasDescriptionCriterion() {
		n++
	}
	return n
}

func (r DistributionRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	if !r.HasAmountCriterion() && !r.HasDescriptionCriterion() {
		return NewValidationError("criteria", "at least one of expectedAmount or descriptionPattern is required")
	}
	if r.ExpectedAmount != nil && !r.ExpectedAmount.IsPositive() {
		return NewValidationError("expectedAmount", "must be greater than zero")
	}
	if r.AmountTolerance < 0 || r.AmountTolerance > 100 {
		return NewValidationError("amountTolerance", "must be between 0 and 100")
	}
	if _, err := ParseStrategyName(string(r.Strategy)); err != nil {
		return err
	}
	if len(r.TargetEnvelopeIDs) > 0 && r.Strategy != StrategyPriority {
		return NewValidationError("targetEnvelopeIds", "only allowed with the priority strategy")
	}
	return nil
}
