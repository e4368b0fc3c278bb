// Package settlement computes investor profit shares for rental properties,
// aggregates them across property-months and plans the pairwise transfers
// that settle every investor to zero, with per-property attribution.
//
// Everything in this package is a pure transform over caller-supplied
// snapshots: nothing is persisted, cached or shared between calls.
package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ExternalParty marks a ledger entry handled by someone outside the investor group
const ExternalParty = "external"

// Period identifies one accounting month
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod creates a Period
func NewPeriod(year, month int) Period {
	return Period{Year: year, Month: month}
}

// String returns the period as YYYY-MM
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// IsValid reports whether the month is in 1..12 and the year is positive
func (p Period) IsValid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}

// Before reports whether p is earlier than other
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// LedgerEntry is one income or expense line of a monthly report
type LedgerEntry struct {
	Amount decimal.Decimal `json:"amount"`
	// PersonInCharge is the investor who physically paid or collected the
	// amount, or ExternalParty / empty when nobody in the group did.
	PersonInCharge string `json:"person_in_charge"`
}

// HandledBy reports whether the entry was paid or collected by the investor
func (e LedgerEntry) HandledBy(investorID string) bool {
	return investorID != "" && investorID != ExternalParty && e.PersonInCharge == investorID
}

// FinancialReport is one property's income and expenses for one month
type FinancialReport struct {
	PropertyID     string          `json:"property_id"`
	Period         Period          `json:"period"`
	TotalIncome    decimal.Decimal `json:"total_income"`
	TotalExpenses  decimal.Decimal `json:"total_expenses"`
	IncomeEntries  []LedgerEntry   `json:"income_entries"`
	ExpenseEntries []LedgerEntry   `json:"expense_entries"`
}

// NetProfit returns TotalIncome - TotalExpenses
func (r FinancialReport) NetProfit() decimal.Decimal {
	return r.TotalIncome.Sub(r.TotalExpenses)
}

// OwnershipRecord is an investor's percentage (0-100) of a property.
// Percentages are not validated.
type OwnershipRecord struct {
	PropertyID string          `json:"property_id"`
	InvestorID string          `json:"investor_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// PriorSettlementRecord holds what an investor already paid or received for
// one property-month outside the plan
type PriorSettlementRecord struct {
	InvestorID      string          `json:"investor_id"`
	PropertyID      string          `json:"property_id"`
	Period          Period          `json:"period"`
	AlreadyPaid     decimal.Decimal `json:"already_paid"`
	AlreadyReceived decimal.Decimal `json:"already_received"`
}

// InvestorBalance is an investor's position for one property-month.
// FinalBalance > 0 means the investor is owed money, < 0 means they owe.
type InvestorBalance struct {
	InvestorID               string          `json:"investor_id"`
	PropertyID               string          `json:"property_id"`
	Period                   Period          `json:"period"`
	Percentage               decimal.Decimal `json:"percentage"`
	ProfitShare              decimal.Decimal `json:"profit_share"`
	ExpensesPaidByInvestor   decimal.Decimal `json:"expenses_paid_by_investor"`
	IncomeReceivedByInvestor decimal.Decimal `json:"income_received_by_investor"`
	AlreadyPaid              decimal.Decimal `json:"already_paid"`
	AlreadyReceived          decimal.Decimal `json:"already_received"`
	FinalBalance             decimal.Decimal `json:"final_balance"`
}

// Contribution is one property-month's final balance inside an aggregate
type Contribution struct {
	PropertyID string          `json:"property_id"`
	Period     Period          `json:"period"`
	Amount     decimal.Decimal `json:"amount"`
}

// AggregateBalance is an investor's position summed over a chosen set of
// property-months. Contributions keep input order for the audit trail.
type AggregateBalance struct {
	InvestorID    string          `json:"investor_id"`
	TotalFinal    decimal.Decimal `json:"total_final"`
	Contributions []Contribution  `json:"contributions"`
}

// BreakdownItem is the part of a transaction attributed to one property
type BreakdownItem struct {
	PropertyID string          `json:"property_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// Transaction is a single transfer from a debtor to a creditor
type Transaction struct {
	FromInvestorID    string          `json:"from_investor_id"`
	ToInvestorID      string          `json:"to_investor_id"`
	Amount            decimal.Decimal `json:"amount"`
	PropertyBreakdown []BreakdownItem `json:"property_breakdown"`
}

// AttributedAmount returns the sum of the property breakdown
func (t Transaction) AttributedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range t.PropertyBreakdown {
		total = total.Add(item.Amount)
	}
	return total
}

// BreakdownShortfall returns the part of the transaction that could not be
// attributed to a property shared by both parties. Never negative.
func (t Transaction) BreakdownShortfall() decimal.Decimal {
	shortfall := t.Amount.Sub(t.AttributedAmount())
	if shortfall.IsNegative() {
		return decimal.Zero
	}
	return shortfall
}

// Side tells whether an unsettled investor was owed money or owed it
type Side string

const (
	SideCreditor Side = "CREDITOR"
	SideDebtor   Side = "DEBTOR"
)

// UnsettledInvestor is the residual left when total credits and debits differ
type UnsettledInvestor struct {
	InvestorID string          `json:"investor_id"`
	Side       Side            `json:"side"`
	Remaining  decimal.Decimal `json:"remaining"`
}

// Plan is the settlement result: ordered transfers plus any residual
type Plan struct {
	Transactions       []Transaction       `json:"transactions"`
	UnsettledInvestors []UnsettledInvestor `json:"unsettled_investors"`
	TotalCredits       decimal.Decimal     `json:"total_credits"`
	TotalDebits        decimal.Decimal     `json:"total_debits"`
}
