package settlement

import (
	"sort"

	"github.com/propledger/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// workingRecord tracks how much of one investor's balance is still open
// during a single planning pass. Records live in a per-call slice; the
// caller's aggregates are never modified.
type workingRecord struct {
	investorID string
	remaining  decimal.Decimal
}

// PlanTransactions turns signed aggregate balances into an ordered list of
// debtor -> creditor transfers using a greedy largest-first match.
//
// Investors with |TotalFinal| below one cent are treated as settled.
// Creditors and debtors are each sorted by magnitude, largest first, with
// ties kept in input order. Every emitted amount is rounded to cents. When
// total credits and debits differ, whatever one side could not be matched
// against is reported in UnsettledInvestors; no transfer is invented to cover
// it. The heuristic keeps transfer counts low in practice but does not
// guarantee the minimum.
//
// The returned transactions carry no property breakdown; see Settle or
// ResolveAttribution.
func PlanTransactions(aggregates []AggregateBalance) (*Plan, error) {
	if err := validateAggregates(aggregates); err != nil {
		return nil, err
	}

	creditors, debtors := partition(aggregates)

	plan := &Plan{
		Transactions:       make([]Transaction, 0),
		UnsettledInvestors: make([]UnsettledInvestor, 0),
		TotalCredits:       valueobject.Round2(sumRemaining(creditors)),
		TotalDebits:        valueobject.Round2(sumRemaining(debtors)),
	}

	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		creditor, debtor := &creditors[i], &debtors[j]

		amount := valueobject.Round2(decimal.Min(creditor.remaining, debtor.remaining))
		if amount.GreaterThanOrEqual(valueobject.Tolerance) {
			plan.Transactions = append(plan.Transactions, Transaction{
				FromInvestorID:    debtor.investorID,
				ToInvestorID:      creditor.investorID,
				Amount:            amount,
				PropertyBreakdown: make([]BreakdownItem, 0),
			})
		}

		creditor.remaining = creditor.remaining.Sub(amount)
		debtor.remaining = debtor.remaining.Sub(amount)

		// The smaller side always drops below a cent here, so the loop advances.
		if creditor.remaining.LessThan(valueobject.Tolerance) {
			i++
		}
		if debtor.remaining.LessThan(valueobject.Tolerance) {
			j++
		}
	}

	plan.UnsettledInvestors = append(plan.UnsettledInvestors, residuals(creditors[i:], SideCreditor)...)
	plan.UnsettledInvestors = append(plan.UnsettledInvestors, residuals(debtors[j:], SideDebtor)...)

	return plan, nil
}

// Settle plans the transfers for the aggregates and attributes each one to
// the properties both parties share.
func Settle(aggregates []AggregateBalance) (*Plan, error) {
	plan, err := PlanTransactions(aggregates)
	if err != nil {
		return nil, err
	}
	return ResolveAttribution(plan, aggregates)
}

// SettleBalances settles raw property-month balances, each treated as a
// one-element aggregate. Used when a single property is settled on its own.
func SettleBalances(balances []InvestorBalance) (*Plan, error) {
	aggregates := make([]AggregateBalance, 0, len(balances))
	for _, b := range balances {
		aggregates = append(aggregates, AggregateFromBalance(b))
	}
	return Settle(aggregates)
}

func validateAggregates(aggregates []AggregateBalance) error {
	seen := make(map[string]struct{}, len(aggregates))
	for i, a := range aggregates {
		if a.InvestorID == "" {
			return NewInvalidInputError("investor_id", "aggregate %d has no investor id", i)
		}
		if _, dup := seen[a.InvestorID]; dup {
			return NewInvalidInputError("investor_id", "investor %s appears more than once; aggregate balances first", a.InvestorID)
		}
		seen[a.InvestorID] = struct{}{}
	}
	return nil
}

// partition splits aggregates into creditors and debtors, each sorted by
// descending magnitude with ties in input order
func partition(aggregates []AggregateBalance) (creditors, debtors []workingRecord) {
	creditors = make([]workingRecord, 0)
	debtors = make([]workingRecord, 0)
	negTolerance := valueobject.Tolerance.Neg()

	for _, a := range aggregates {
		switch {
		case a.TotalFinal.GreaterThanOrEqual(valueobject.Tolerance):
			creditors = append(creditors, workingRecord{investorID: a.InvestorID, remaining: a.TotalFinal})
		case a.TotalFinal.LessThanOrEqual(negTolerance):
			debtors = append(debtors, workingRecord{investorID: a.InvestorID, remaining: a.TotalFinal.Abs()})
		}
	}

	byRemainingDesc := func(records []workingRecord) func(i, j int) bool {
		return func(i, j int) bool {
			return records[i].remaining.GreaterThan(records[j].remaining)
		}
	}
	sort.SliceStable(creditors, byRemainingDesc(creditors))
	sort.SliceStable(debtors, byRemainingDesc(debtors))
	return creditors, debtors
}

func residuals(records []workingRecord, side Side) []UnsettledInvestor {
	out := make([]UnsettledInvestor, 0)
	for _, r := range records {
		if r.remaining.LessThan(valueobject.Tolerance) {
			continue
		}
		out = append(out, UnsettledInvestor{
			InvestorID: r.investorID,
			Side:       side,
			Remaining:  valueobject.Round2(r.remaining),
		})
	}
	return out
}

func sumRemaining(records []workingRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.remaining)
	}
	return total
}
