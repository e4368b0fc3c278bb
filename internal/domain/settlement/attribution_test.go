package settlement

import (
	"errors"
	"testing"

	"github.com/propledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contributions(investorID string, pairs ...string) AggregateBalance {
	balances := make([]InvestorBalance, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		balances = append(balances, balance(investorID, pairs[i], 1+i/2, pairs[i+1]))
	}
	return Aggregate(balances)[0]
}

func assertBreakdown(t *testing.T, tx Transaction, pairs ...string) {
	t.Helper()
	require.Len(t, tx.PropertyBreakdown, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		item := tx.PropertyBreakdown[i/2]
		assert.Equal(t, pairs[i], item.PropertyID)
		assertAmount(t, pairs[i+1], item.Amount)
	}
}

func TestSettle_Attribution(t *testing.T) {
	t.Run("breakdown follows shared properties", func(t *testing.T) {
		a := contributions("A", "P1", "80", "P2", "20")
		b := contributions("B", "P1", "-80")
		c := contributions("C", "P2", "-20")

		plan, err := Settle([]AggregateBalance{a, b, c})
		require.NoError(t, err)

		require.Len(t, plan.Transactions, 2)
		assertTransaction(t, plan.Transactions[0], "B", "A", "80")
		assertBreakdown(t, plan.Transactions[0], "P1", "80")
		assertTransaction(t, plan.Transactions[1], "C", "A", "20")
		assertBreakdown(t, plan.Transactions[1], "P2", "20")
	})

	t.Run("breakdown is capped by the creditor's surplus on the property", func(t *testing.T) {
		a := contributions("A", "P1", "50", "P2", "50")
		b := contributions("B", "P1", "-80")
		c := contributions("C", "P2", "-20")

		plan, err := Settle([]AggregateBalance{a, b, c})
		require.NoError(t, err)

		require.Len(t, plan.Transactions, 2)
		assertTransaction(t, plan.Transactions[0], "B", "A", "80")
		assertBreakdown(t, plan.Transactions[0], "P1", "50")
		assertAmount(t, "30", plan.Transactions[0].BreakdownShortfall())

		assertTransaction(t, plan.Transactions[1], "C", "A", "20")
		assertBreakdown(t, plan.Transactions[1], "P2", "20")
		assertAmount(t, "0", plan.Transactions[1].BreakdownShortfall())
	})

	t.Run("no shared property leaves the breakdown empty", func(t *testing.T) {
		plan, err := Settle([]AggregateBalance{
			contributions("A", "P1", "40"),
			contributions("B", "P2", "-40"),
		})
		require.NoError(t, err)

		require.Len(t, plan.Transactions, 1)
		assert.NotNil(t, plan.Transactions[0].PropertyBreakdown)
		assert.Empty(t, plan.Transactions[0].PropertyBreakdown)
		assertAmount(t, "40", plan.Transactions[0].BreakdownShortfall())
	})

	t.Run("several months of one property merge into one item", func(t *testing.T) {
		a := contributions("A", "P1", "30", "P1", "50")
		b := contributions("B", "P1", "-60", "P1", "-20")

		plan, err := Settle([]AggregateBalance{a, b})
		require.NoError(t, err)

		require.Len(t, plan.Transactions, 1)
		assertBreakdown(t, plan.Transactions[0], "P1", "80")
	})

	t.Run("opposite-sign contributions are not attributed", func(t *testing.T) {
		// A is a net creditor but lost money on P2; B is a net debtor but
		// earned on P2.
		a := contributions("A", "P1", "100", "P2", "-30")
		b := contributions("B", "P1", "-100", "P2", "30")

		plan, err := Settle([]AggregateBalance{a, b})
		require.NoError(t, err)

		require.Len(t, plan.Transactions, 1)
		assertTransaction(t, plan.Transactions[0], "B", "A", "70")
		assertBreakdown(t, plan.Transactions[0], "P1", "70")
	})
}

func TestAttribute_FreshCopyPerTransaction(t *testing.T) {
	creditor := contributions("A", "P1", "50")
	first := Attribute(Transaction{FromInvestorID: "B", ToInvestorID: "A", Amount: dec("50")}, contributions("B", "P1", "-50"), creditor)
	second := Attribute(Transaction{FromInvestorID: "C", ToInvestorID: "A", Amount: dec("50")}, contributions("C", "P1", "-50"), creditor)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assertAmount(t, "50", first[0].Amount)
	assertAmount(t, "50", second[0].Amount)
	assertAmount(t, "50", creditor.Contributions[0].Amount)
}

func TestResolveAttribution_InvalidInput(t *testing.T) {
	aggregates := []AggregateBalance{agg("A", "10"), agg("B", "-10")}

	tests := []struct {
		name  string
		plan  *Plan
		field string
	}{
		{
			name:  "nil plan",
			plan:  nil,
			field: "plan",
		},
		{
			name:  "self payment",
			plan:  &Plan{Transactions: []Transaction{{FromInvestorID: "A", ToInvestorID: "A", Amount: dec("10")}}},
			field: "transaction",
		},
		{
			name:  "unknown debtor",
			plan:  &Plan{Transactions: []Transaction{{FromInvestorID: "Z", ToInvestorID: "A", Amount: dec("10")}}},
			field: "from_investor_id",
		},
		{
			name:  "unknown creditor",
			plan:  &Plan{Transactions: []Transaction{{FromInvestorID: "B", ToInvestorID: "Z", Amount: dec("10")}}},
			field: "to_investor_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveAttribution(tt.plan, aggregates)
			require.Error(t, err)

			var invalid *InvalidInputError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.field, invalid.Field)
			assert.True(t, errors.Is(err, shared.ErrInvalidInput))
			assert.False(t, errors.Is(err, shared.ErrNotFound))
		})
	}
}

func TestResolveAttribution_DoesNotModifyPlan(t *testing.T) {
	aggregates := []AggregateBalance{agg("A", "10"), agg("B", "-10")}
	plan, err := PlanTransactions(aggregates)
	require.NoError(t, err)

	resolved, err := ResolveAttribution(plan, aggregates)
	require.NoError(t, err)

	assert.Empty(t, plan.Transactions[0].PropertyBreakdown)
	assertBreakdown(t, resolved.Transactions[0], "P1", "10")
}
