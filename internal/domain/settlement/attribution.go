package settlement

import (
	"github.com/propledger/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

type workingContribution struct {
	propertyID string
	remaining  decimal.Decimal
}

// Attribute decomposes a transaction into per-property line items by
// matching the debtor's deficits with the creditor's surpluses on the same
// property.
//
// The debtor's contributions are walked in order; each is matched against
// the creditor's contributions for the identical property ID, allocating
// min(debtor remaining, creditor remaining, transaction remaining). Portions
// that have no shared property are left out, so the breakdown may sum to less
// than the transaction amount (see Transaction.BreakdownShortfall). Items for
// the same property are merged and listed in first-allocation order.
func Attribute(tx Transaction, debtor, creditor AggregateBalance) []BreakdownItem {
	deficits := workingCopy(debtor.Contributions, true)
	surpluses := workingCopy(creditor.Contributions, false)
	settlementRemaining := tx.Amount

	breakdown := make([]BreakdownItem, 0)
	position := make(map[string]int)

	for di := range deficits {
		if settlementRemaining.LessThan(valueobject.Tolerance) {
			break
		}
		d := &deficits[di]
		if !d.remaining.GreaterThan(valueobject.Tolerance) {
			continue
		}

		for ci := range surpluses {
			c := &surpluses[ci]
			if c.propertyID != d.propertyID || !c.remaining.GreaterThan(valueobject.Tolerance) {
				continue
			}

			alloc := valueobject.Round2(decimal.Min(d.remaining, c.remaining, settlementRemaining))
			if k, ok := position[d.propertyID]; ok {
				breakdown[k].Amount = breakdown[k].Amount.Add(alloc)
			} else {
				position[d.propertyID] = len(breakdown)
				breakdown = append(breakdown, BreakdownItem{PropertyID: d.propertyID, Amount: alloc})
			}

			d.remaining = d.remaining.Sub(alloc)
			c.remaining = c.remaining.Sub(alloc)
			settlementRemaining = settlementRemaining.Sub(alloc)

			if settlementRemaining.LessThan(valueobject.Tolerance) || !d.remaining.GreaterThan(valueobject.Tolerance) {
				break
			}
		}
	}
	return breakdown
}

// ResolveAttribution returns a copy of plan whose transactions carry a
// property breakdown built from the matching aggregates. A transaction that
// names an investor missing from aggregates, or pays itself, is rejected
// with an InvalidInputError.
func ResolveAttribution(plan *Plan, aggregates []AggregateBalance) (*Plan, error) {
	if plan == nil {
		return nil, NewInvalidInputError("plan", "plan is required")
	}

	byInvestor := make(map[string]AggregateBalance, len(aggregates))
	for _, a := range aggregates {
		byInvestor[a.InvestorID] = a
	}

	resolved := &Plan{
		Transactions:       make([]Transaction, 0, len(plan.Transactions)),
		UnsettledInvestors: append(make([]UnsettledInvestor, 0, len(plan.UnsettledInvestors)), plan.UnsettledInvestors...),
		TotalCredits:       plan.TotalCredits,
		TotalDebits:        plan.TotalDebits,
	}

	for _, tx := range plan.Transactions {
		if tx.FromInvestorID == tx.ToInvestorID {
			return nil, NewInvalidInputError("transaction", "investor %s cannot pay themselves", tx.FromInvestorID)
		}
		debtor, ok := byInvestor[tx.FromInvestorID]
		if !ok {
			return nil, NewInvalidInputError("from_investor_id", "investor %s has no balance", tx.FromInvestorID)
		}
		creditor, ok := byInvestor[tx.ToInvestorID]
		if !ok {
			return nil, NewInvalidInputError("to_investor_id", "investor %s has no balance", tx.ToInvestorID)
		}

		tx.PropertyBreakdown = Attribute(tx, debtor, creditor)
		resolved.Transactions = append(resolved.Transactions, tx)
	}
	return resolved, nil
}

// workingCopy converts contributions into positive remaining amounts: the
// magnitudes of deficits for a debtor, surpluses for a creditor. Entries of
// the opposite sign start at zero.
func workingCopy(contributions []Contribution, deficits bool) []workingContribution {
	out := make([]workingContribution, 0, len(contributions))
	for _, c := range contributions {
		remaining := c.Amount
		if deficits {
			remaining = remaining.Neg()
		}
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		out = append(out, workingContribution{propertyID: c.PropertyID, remaining: remaining})
	}
	return out
}
