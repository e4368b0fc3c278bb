package settlement

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateProfitShares converts one property-month report into a signed
// final balance for every investor holding a nonzero percentage of the
// property.
//
// Ownership records for other properties are ignored and several records for
// the same investor are summed. Prior settlement records are matched on
// investor, property and period; missing ones count as zero. A property with
// no ownership yields no balances.
func CalculateProfitShares(report FinancialReport, ownership []OwnershipRecord, priors []PriorSettlementRecord) []InvestorBalance {
	owners, percentages := ownersOf(report.PropertyID, ownership)
	if len(owners) == 0 {
		return []InvestorBalance{}
	}

	netProfit := report.NetProfit()
	balances := make([]InvestorBalance, 0, len(owners))
	for _, investorID := range owners {
		pct := percentages[investorID]
		if pct.IsZero() {
			continue
		}

		paid, received := priorFor(investorID, report.PropertyID, report.Period, priors)
		b := InvestorBalance{
			InvestorID:               investorID,
			PropertyID:               report.PropertyID,
			Period:                   report.Period,
			Percentage:               pct,
			ProfitShare:              netProfit.Mul(pct).Div(hundred),
			ExpensesPaidByInvestor:   sumHandledBy(report.ExpenseEntries, investorID),
			IncomeReceivedByInvestor: sumHandledBy(report.IncomeEntries, investorID),
			AlreadyPaid:              paid,
			AlreadyReceived:          received,
		}
		b.FinalBalance = b.ProfitShare.
			Sub(b.AlreadyPaid).
			Add(b.AlreadyReceived).
			Add(b.ExpensesPaidByInvestor).
			Sub(b.IncomeReceivedByInvestor)
		balances = append(balances, b)
	}
	return balances
}

// ownersOf returns the investors of a property in first-seen order together
// with their summed percentages
func ownersOf(propertyID string, ownership []OwnershipRecord) ([]string, map[string]decimal.Decimal) {
	order := make([]string, 0)
	percentages := make(map[string]decimal.Decimal)
	for _, o := range ownership {
		if o.PropertyID != propertyID || o.InvestorID == "" {
			continue
		}
		if _, seen := percentages[o.InvestorID]; !seen {
			order = append(order, o.InvestorID)
			percentages[o.InvestorID] = decimal.Zero
		}
		percentages[o.InvestorID] = percentages[o.InvestorID].Add(o.Percentage)
	}
	return order, percentages
}

func priorFor(investorID, propertyID string, period Period, priors []PriorSettlementRecord) (paid, received decimal.Decimal) {
	paid, received = decimal.Zero, decimal.Zero
	for _, p := range priors {
		if p.InvestorID == investorID && p.PropertyID == propertyID && p.Period == period {
			paid = paid.Add(p.AlreadyPaid)
			received = received.Add(p.AlreadyReceived)
		}
	}
	return paid, received
}

func sumHandledBy(entries []LedgerEntry, investorID string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.HandledBy(investorID) {
			total = total.Add(e.Amount)
		}
	}
	return total
}
