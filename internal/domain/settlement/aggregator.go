package settlement

import (
	"github.com/shopspring/decimal"
)

// Aggregate sums any collection of property-month balances into one
// AggregateBalance per investor. Investors appear in first-seen order and
// each aggregate keeps its contributions in input order, so identical input
// ordering always produces identical output.
func Aggregate(balances []InvestorBalance) []AggregateBalance {
	index := make(map[string]int)
	aggregates := make([]AggregateBalance, 0)

	for _, b := range balances {
		i, ok := index[b.InvestorID]
		if !ok {
			i = len(aggregates)
			index[b.InvestorID] = i
			aggregates = append(aggregates, AggregateBalance{
				InvestorID:    b.InvestorID,
				TotalFinal:    decimal.Zero,
				Contributions: make([]Contribution, 0, 1),
			})
		}
		agg := &aggregates[i]
		agg.TotalFinal = agg.TotalFinal.Add(b.FinalBalance)
		agg.Contributions = append(agg.Contributions, Contribution{
			PropertyID: b.PropertyID,
			Period:     b.Period,
			Amount:     b.FinalBalance,
		})
	}
	return aggregates
}

// AggregateFromBalance wraps a single property-month balance as a
// one-contribution aggregate, for single-property settlement.
func AggregateFromBalance(b InvestorBalance) AggregateBalance {
	return AggregateBalance{
		InvestorID: b.InvestorID,
		TotalFinal: b.FinalBalance,
		Contributions: []Contribution{
			{PropertyID: b.PropertyID, Period: b.Period, Amount: b.FinalBalance},
		},
	}
}

// FilterBalances keeps the balances accepted by keep, preserving order
func FilterBalances(balances []InvestorBalance, keep func(InvestorBalance) bool) []InvestorBalance {
	out := make([]InvestorBalance, 0, len(balances))
	for _, b := range balances {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// ForInvestors returns a filter accepting only the given investors.
// An empty list accepts everyone.
func ForInvestors(investorIDs ...string) func(InvestorBalance) bool {
	if len(investorIDs) == 0 {
		return func(InvestorBalance) bool { return true }
	}
	set := make(map[string]struct{}, len(investorIDs))
	for _, id := range investorIDs {
		set[id] = struct{}{}
	}
	return func(b InvestorBalance) bool {
		_, ok := set[b.InvestorID]
		return ok
	}
}
