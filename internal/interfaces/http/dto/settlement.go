package dto

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	appsettlement "github.com/propledger/backend/internal/application/settlement"
	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/propledger/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Amount is a money value as sent by clients: a JSON string or number.
// Blank or unparsable values read as zero.
type Amount string

// UnmarshalJSON accepts "1,234.50", 1234.5 and null
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(raw)
	return nil
}

// Decimal parses the amount leniently
func (a Amount) Decimal() decimal.Decimal {
	return valueobject.ParseAmount(string(a))
}

// PeriodRequest is one accounting month
type PeriodRequest struct {
	Year  int `json:"year" binding:"required,gte=1"`
	Month int `json:"month" binding:"required,gte=1,lte=12"`
}

func (p PeriodRequest) toDomain() settlement.Period {
	return settlement.NewPeriod(p.Year, p.Month)
}

// LedgerEntryRequest is one income or expense line
type LedgerEntryRequest struct {
	Amount         Amount `json:"amount"`
	PersonInCharge string `json:"person_in_charge"`
}

// FinancialReportRequest is one property's month
type FinancialReportRequest struct {
	PropertyID     string               `json:"property_id" binding:"required"`
	Year           int                  `json:"year" binding:"required,gte=1"`
	Month          int                  `json:"month" binding:"required,gte=1,lte=12"`
	TotalIncome    Amount               `json:"total_income"`
	TotalExpenses  Amount               `json:"total_expenses"`
	IncomeEntries  []LedgerEntryRequest `json:"income_entries"`
	ExpenseEntries []LedgerEntryRequest `json:"expense_entries"`
}

// OwnershipRequest is an investor's percentage of a property
type OwnershipRequest struct {
	PropertyID string `json:"property_id" binding:"required"`
	InvestorID string `json:"investor_id" binding:"required,investor_id"`
	Percentage Amount `json:"percentage"`
}

// PriorSettlementRequest records amounts already exchanged for a property-month
type PriorSettlementRequest struct {
	InvestorID      string `json:"investor_id" binding:"required,investor_id"`
	PropertyID      string `json:"property_id" binding:"required"`
	Year            int    `json:"year" binding:"required,gte=1"`
	Month           int    `json:"month" binding:"required,gte=1,lte=12"`
	AlreadyPaid     Amount `json:"already_paid"`
	AlreadyReceived Amount `json:"already_received"`
}

// PlanBatchRequest carries a complete input batch
type PlanBatchRequest struct {
	Reports     []FinancialReportRequest `json:"reports" binding:"required,min=1,dive"`
	Ownership   []OwnershipRequest       `json:"ownership" binding:"dive"`
	Priors      []PriorSettlementRequest `json:"priors" binding:"dive"`
	InvestorIDs []string                 `json:"investor_ids"`
}

// ToBatch converts the request into engine input, keeping request order
func (r PlanBatchRequest) ToBatch() settlement.Batch {
	batch := settlement.Batch{
		Reports:   make([]settlement.FinancialReport, 0, len(r.Reports)),
		Ownership: make([]settlement.OwnershipRecord, 0, len(r.Ownership)),
		Priors:    make([]settlement.PriorSettlementRecord, 0, len(r.Priors)),
	}
	for _, rep := range r.Reports {
		batch.Reports = append(batch.Reports, settlement.FinancialReport{
			PropertyID:     rep.PropertyID,
			Period:         settlement.NewPeriod(rep.Year, rep.Month),
			TotalIncome:    rep.TotalIncome.Decimal(),
			TotalExpenses:  rep.TotalExpenses.Decimal(),
			IncomeEntries:  toEntries(rep.IncomeEntries),
			ExpenseEntries: toEntries(rep.ExpenseEntries),
		})
	}
	for _, o := range r.Ownership {
		batch.Ownership = append(batch.Ownership, settlement.OwnershipRecord{
			PropertyID: o.PropertyID,
			InvestorID: o.InvestorID,
			Percentage: o.Percentage.Decimal(),
		})
	}
	for _, p := range r.Priors {
		batch.Priors = append(batch.Priors, settlement.PriorSettlementRecord{
			InvestorID:      p.InvestorID,
			PropertyID:      p.PropertyID,
			Period:          settlement.NewPeriod(p.Year, p.Month),
			AlreadyPaid:     p.AlreadyPaid.Decimal(),
			AlreadyReceived: p.AlreadyReceived.Decimal(),
		})
	}
	return batch
}

func toEntries(in []LedgerEntryRequest) []settlement.LedgerEntry {
	entries := make([]settlement.LedgerEntry, 0, len(in))
	for _, e := range in {
		entries = append(entries, settlement.LedgerEntry{
			Amount:         e.Amount.Decimal(),
			PersonInCharge: strings.TrimSpace(e.PersonInCharge),
		})
	}
	return entries
}

// SelectionRequest chooses stored property-months to settle together
type SelectionRequest struct {
	PropertyIDs []string        `json:"property_ids" binding:"required,min=1,dive,required"`
	Periods     []PeriodRequest `json:"periods" binding:"required,min=1,dive"`
	InvestorIDs []string        `json:"investor_ids"`
}

// ToSelection converts the request for the given tenant
func (r SelectionRequest) ToSelection(tenantID string) appsettlement.Selection {
	periods := make([]settlement.Period, 0, len(r.Periods))
	for _, p := range r.Periods {
		periods = append(periods, p.toDomain())
	}
	return appsettlement.Selection{
		TenantID:    tenantID,
		PropertyIDs: r.PropertyIDs,
		Periods:     periods,
		InvestorIDs: r.InvestorIDs,
	}
}

// BreakdownResponse is the part of a transfer attributed to one property
type BreakdownResponse struct {
	PropertyID string `json:"property_id"`
	Amount     string `json:"amount"`
}

// TransactionResponse is one transfer between investors
type TransactionResponse struct {
	FromInvestorID    string              `json:"from_investor_id"`
	ToInvestorID      string              `json:"to_investor_id"`
	Amount            string              `json:"amount"`
	Unattributed      string              `json:"unattributed"`
	PropertyBreakdown []BreakdownResponse `json:"property_breakdown"`
}

// UnsettledResponse is a residual left by an imbalanced plan
type UnsettledResponse struct {
	InvestorID string `json:"investor_id"`
	Side       string `json:"side"`
	Remaining  string `json:"remaining"`
}

// SummaryResponse condenses a plan
type SummaryResponse struct {
	TransactionCount int    `json:"transaction_count"`
	TotalTransferred string `json:"total_transferred"`
	TotalAttributed  string `json:"total_attributed"`
	UnsettledCount   int    `json:"unsettled_count"`
	Imbalance        string `json:"imbalance"`
	Balanced         bool   `json:"balanced"`
}

// PlanResponse is a computed settlement plan
type PlanResponse struct {
	ID           uuid.UUID                     `json:"id"`
	TenantID     string                        `json:"tenant_id,omitempty"`
	Source       string                        `json:"source"`
	Digest       string                        `json:"digest"`
	Cached       bool                          `json:"cached"`
	GeneratedAt  time.Time                     `json:"generated_at"`
	Transactions []TransactionResponse         `json:"transactions"`
	Unsettled    []UnsettledResponse           `json:"unsettled_investors"`
	TotalCredits string                        `json:"total_credits"`
	TotalDebits  string                        `json:"total_debits"`
	Summary      SummaryResponse               `json:"summary"`
	Balances     []settlement.InvestorBalance  `json:"balances"`
	Aggregates   []settlement.AggregateBalance `json:"aggregates"`
}

// StatementResponse pairs a plan with its stored statement
type StatementResponse struct {
	Plan      PlanResponse                   `json:"plan"`
	Statement *appsettlement.StatementExport `json:"statement"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(valueobject.CurrencyPlaces)
}

// NewPlanResponse renders a plan result with amounts fixed to two decimals
func NewPlanResponse(result *appsettlement.PlanResult) PlanResponse {
	resp := PlanResponse{
		ID:           result.ID,
		TenantID:     result.TenantID,
		Source:       result.Source,
		Digest:       result.Digest,
		Cached:       result.Cached,
		GeneratedAt:  result.GeneratedAt,
		Transactions: make([]TransactionResponse, 0),
		Unsettled:    make([]UnsettledResponse, 0),
		TotalCredits: money(decimal.Zero),
		TotalDebits:  money(decimal.Zero),
		Summary: SummaryResponse{
			TransactionCount: result.Summary.TransactionCount,
			TotalTransferred: money(result.Summary.TotalTransferred),
			TotalAttributed:  money(result.Summary.TotalAttributed),
			UnsettledCount:   result.Summary.UnsettledCount,
			Imbalance:        money(result.Summary.Imbalance),
			Balanced:         result.Summary.Balanced,
		},
		Balances:   result.Balances,
		Aggregates: result.Aggregates,
	}
	if result.Plan == nil {
		return resp
	}
	resp.TotalCredits = money(result.Plan.TotalCredits)
	resp.TotalDebits = money(result.Plan.TotalDebits)
	for _, tx := range result.Plan.Transactions {
		breakdown := make([]BreakdownResponse, 0, len(tx.PropertyBreakdown))
		for _, item := range tx.PropertyBreakdown {
			breakdown = append(breakdown, BreakdownResponse{PropertyID: item.PropertyID, Amount: money(item.Amount)})
		}
		resp.Transactions = append(resp.Transactions, TransactionResponse{
			FromInvestorID:    tx.FromInvestorID,
			ToInvestorID:      tx.ToInvestorID,
			Amount:            money(tx.Amount),
			Unattributed:      money(tx.BreakdownShortfall()),
			PropertyBreakdown: breakdown,
		})
	}
	for _, u := range result.Plan.UnsettledInvestors {
		resp.Unsettled = append(resp.Unsettled, UnsettledResponse{
			InvestorID: u.InvestorID,
			Side:       string(u.Side),
			Remaining:  money(u.Remaining),
		})
	}
	return resp
}
