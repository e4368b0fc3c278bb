package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/propledger/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Batch is a pre-assembled snapshot of engine inputs. How and when it was
// fetched is the caller's concern.
type Batch struct {
	Reports   []FinancialReport       `json:"reports"`
	Ownership []OwnershipRecord       `json:"ownership"`
	Priors    []PriorSettlementRecord `json:"priors"`
}

// Balances runs CalculateProfitShares for every report, in report order
func (b Batch) Balances() []InvestorBalance {
	balances := make([]InvestorBalance, 0)
	for _, report := range b.Reports {
		balances = append(balances, CalculateProfitShares(report, b.Ownership, b.Priors)...)
	}
	return balances
}

// Digest returns a stable fingerprint of the batch content. Identical
// batches (including ordering) yield identical digests.
func (b Batch) Digest(extra ...string) (string, error) {
	payload, err := json.Marshal(struct {
		Batch Batch    `json:"batch"`
		Extra []string `json:"extra"`
	}{Batch: b, Extra: extra})
	if err != nil {
		return "", fmt.Errorf("failed to encode batch: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Summary condenses a plan for logs and report headers
type Summary struct {
	TransactionCount int             `json:"transaction_count"`
	TotalTransferred decimal.Decimal `json:"total_transferred"`
	TotalAttributed  decimal.Decimal `json:"total_attributed"`
	UnsettledCount   int             `json:"unsettled_count"`
	Imbalance        decimal.Decimal `json:"imbalance"`
	Balanced         bool            `json:"balanced"`
}

// Summary returns totals over the plan's transactions
func (p *Plan) Summary() Summary {
	s := Summary{
		TransactionCount: len(p.Transactions),
		TotalTransferred: decimal.Zero,
		TotalAttributed:  decimal.Zero,
		UnsettledCount:   len(p.UnsettledInvestors),
		Imbalance:        p.TotalCredits.Sub(p.TotalDebits),
		Balanced:         p.Balanced(),
	}
	for _, tx := range p.Transactions {
		s.TotalTransferred = s.TotalTransferred.Add(tx.Amount)
		s.TotalAttributed = s.TotalAttributed.Add(tx.AttributedAmount())
	}
	return s
}

// Balanced reports whether total credits and debits agree within a cent
func (p *Plan) Balanced() bool {
	return valueobject.IsNegligible(p.TotalCredits.Sub(p.TotalDebits))
}
