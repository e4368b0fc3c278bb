// Package export renders settlement plans as CSV statements.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/propledger/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ContentType is the MIME type of rendered statements
const ContentType = "text/csv; charset=utf-8"

// Section names the kind of a statement row
type Section string

const (
	SectionTransaction Section = "transaction"
	SectionBreakdown   Section = "breakdown"
	SectionUnsettled   Section = "unsettled"
	SectionBalance     Section = "balance"
	SectionSummary     Section = "summary"
)

// Header is the first row of every statement
var Header = []string{
	"section", "investor_id", "counterparty_id", "property_id", "period",
	"side", "amount", "amount_display", "currency",
}

// Statement is everything a rendered statement shows
type Statement struct {
	ID          string
	TenantID    string
	GeneratedAt time.Time
	Balances    []settlement.InvestorBalance
	Plan        *settlement.Plan
}

// Writer renders statements for one currency and locale
type Writer struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewWriter creates a Writer. currencyCode is an ISO 4217 code and locale a
// BCP 47 tag such as "en-US".
func NewWriter(currencyCode, locale string) (*Writer, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(currencyCode)))
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", currencyCode, err)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return &Writer{unit: unit, printer: message.NewPrinter(tag)}, nil
}

// Currency returns the ISO code of the writer's currency
func (w *Writer) Currency() string {
	return w.unit.String()
}

// FormatAmount renders d rounded to cents with the locale's separators
func (w *Writer) FormatAmount(d decimal.Decimal) string {
	f, _ := valueobject.Round2(d).Float64()
	return w.printer.Sprint(number.Decimal(f, number.Scale(int(valueobject.CurrencyPlaces))))
}

// Render returns the statement as CSV bytes
func (w *Writer) Render(st Statement) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf, st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the statement as CSV: transactions each followed by their
// property breakdown, then unsettled residuals, per-month balances and a
// closing summary row
func (w *Writer) Write(out io.Writer, st Statement) error {
	if st.Plan == nil {
		return fmt.Errorf("statement %s has no plan", st.ID)
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write statement header: %w", err)
	}

	for _, tx := range st.Plan.Transactions {
		if err := cw.Write(w.row(SectionTransaction, tx.FromInvestorID, tx.ToInvestorID, "", "", "", tx.Amount)); err != nil {
			return fmt.Errorf("failed to write transaction row: %w", err)
		}
		for _, item := range tx.PropertyBreakdown {
			if err := cw.Write(w.row(SectionBreakdown, tx.FromInvestorID, tx.ToInvestorID, item.PropertyID, "", "", item.Amount)); err != nil {
				return fmt.Errorf("failed to write breakdown row: %w", err)
			}
		}
	}

	for _, u := range st.Plan.UnsettledInvestors {
		if err := cw.Write(w.row(SectionUnsettled, u.InvestorID, "", "", "", string(u.Side), u.Remaining)); err != nil {
			return fmt.Errorf("failed to write unsettled row: %w", err)
		}
	}

	for _, b := range st.Balances {
		if err := cw.Write(w.row(SectionBalance, b.InvestorID, "", b.PropertyID, b.Period.String(), string(sideOf(b.FinalBalance)), b.FinalBalance)); err != nil {
			return fmt.Errorf("failed to write balance row: %w", err)
		}
	}

	summary := st.Plan.Summary()
	if err := cw.Write(w.row(SectionSummary, "", "", "", "", balancedLabel(summary.Balanced), summary.TotalTransferred)); err != nil {
		return fmt.Errorf("failed to write summary row: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush statement: %w", err)
	}
	return nil
}

func (w *Writer) row(section Section, investor, counterparty, property, period, side string, amount decimal.Decimal) []string {
	return []string{
		string(section), investor, counterparty, property, period, side,
		valueobject.Round2(amount).StringFixed(valueobject.CurrencyPlaces),
		w.FormatAmount(amount),
		w.unit.String(),
	}
}

func sideOf(balance decimal.Decimal) settlement.Side {
	switch {
	case valueobject.IsNegligible(balance):
		return ""
	case balance.IsPositive():
		return settlement.SideCreditor
	default:
		return settlement.SideDebtor
	}
}

func balancedLabel(balanced bool) string {
	if balanced {
		return "BALANCED"
	}
	return "IMBALANCED"
}

// ObjectKey returns where a statement is stored:
// <prefix>/<tenant>/<yyyy>/<mm>/<id>.csv, with "shared" for an empty tenant
func ObjectKey(prefix, tenantID, statementID string, generatedAt time.Time) string {
	if tenantID == "" {
		tenantID = "shared"
	}
	utc := generatedAt.UTC()
	return path.Join(prefix, tenantID, fmt.Sprintf("%04d", utc.Year()), fmt.Sprintf("%02d", int(utc.Month())), statementID+".csv")
}
