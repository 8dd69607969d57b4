package core

import "time"

const (
	IncomeManual   IncomeMode = "manual"
	IncomeDetected IncomeMode = "detected"

	StatusGreen  StatusColor = "green"
	StatusYellow StatusColor = "yellow"
	StatusRed    StatusColor = "red"

	TransferTransferable TransferStatus = "transferable"
	TransferTight        TransferStatus = "tight"
	TransferInsufficient TransferStatus = "insufficient"

	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"

	AlertAllocation     AlertKind = "allocation"
	AlertTransfer       AlertKind = "transfer"
	AlertBankConnection AlertKind = "bank_connection"
	AlertDuplicate      AlertKind = "duplicate"
	AlertLinkSuggestion AlertKind = "link_suggestion"
)

type (
	IncomeMode     string
	StatusColor    string
	TransferStatus string
	Severity       string
	AlertKind      string

	// AllocationState is the zero-based budget view of one month.
	AllocationState struct {
		Month                   YearMonth     `json:"month"`
		Income                  Money         `json:"income"`
		IncomeMode              IncomeMode    `json:"incomeMode"`
		DetectedIncome          Money         `json:"detectedIncome"`
		ManualOverride          *Money        `json:"manualOverride"`
		IncomeTransactions      []Transaction `json:"incomeTransactions"`
		TotalAssigned           Money         `json:"totalAssigned"`
		Remainder               Money         `json:"remainder"`
		Complete                bool          `json:"complete"`
		Status                  StatusColor   `json:"status"`
		PlannedIncome           Money         `json:"plannedIncome"`
		BudgetSafePlannedIncome Money         `json:"budgetSafePlannedIncome"`
	}

	EnvelopeAllocation struct {
		EnvelopeID string `json:"envelopeId"`
		Name       string `json:"name"`
		Amount     Money  `json:"amount"`
	}

	// DistributionResult splits an amount across envelopes. Allocations plus
	// Unassigned always add up to Amount.
	DistributionResult struct {
		Strategy    StrategyName         `json:"strategy"`
		Amount      Money                `json:"amount"`
		Allocations []EnvelopeAllocation `json:"allocations"`
		Unassigned  Money                `json:"unassigned"`
	}

	IncomeContribution struct {
		SourceID    string      `json:"sourceId"`
		Name        string      `json:"name"`
		Reliability Reliability `json:"reliability"`
		Amount      Money       `json:"amount"`
	}

	DirectObligation struct {
		EnvelopeID string `json:"envelopeId"`
		Name       string `json:"name"`
		Amount     Money  `json:"amount"`
	}

	SharedObligation struct {
		EnvelopeID string `json:"envelopeId"`
		Name       string `json:"name"`
		FullAmount Money  `json:"fullAmount"`
		Share      Money  `json:"share"`
	}

	// TransferSuggestion is the advisory for one income-receiving account.
	TransferSuggestion struct {
		AccountID         string               `json:"accountId"`
		AccountName       string               `json:"accountName"`
		IncomeSources     []IncomeContribution `json:"incomeSources"`
		TotalIncome       Money                `json:"totalIncome"`
		BudgetSafeIncome  Money                `json:"budgetSafeIncome"`
		DirectObligations []DirectObligation   `json:"directObligations"`
		DirectTotal       Money                `json:"directTotal"`
		SharedObligations []SharedObligation   `json:"sharedObligations"`
		SharedShare       Money                `json:"sharedShare"`
		SafetyMargin      Money                `json:"safetyMargin"`
		Surplus           Money                `json:"surplus"`
		SuggestedTransfer Money                `json:"suggestedTransfer"`
		Status            TransferStatus       `json:"status"`
	}

	TransferReport struct {
		Month                      YearMonth            `json:"month"`
		Suggestions                []TransferSuggestion `json:"suggestions"`
		DistinctIncomeAccountCount int                  `json:"distinctIncomeAccountCount"`
		Note                       string               `json:"note"`
	}

	Alert struct {
		ID          string    `json:"id"`
		Kind        AlertKind `json:"kind"`
		Severity    Severity  `json:"severity"`
		Title       string    `json:"title"`
		Message     string    `json:"message"`
		CreatedAt   time.Time `json:"createdAt"`
		Dismissible bool      `json:"dismissible"`
	}
)

// Rank orders severities high first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}
