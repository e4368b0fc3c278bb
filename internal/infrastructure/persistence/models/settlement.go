package models

import (
	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// LedgerEntryKind distinguishes income lines from expense lines
type LedgerEntryKind string

const (
	LedgerEntryIncome  LedgerEntryKind = "INCOME"
	LedgerEntryExpense LedgerEntryKind = "EXPENSE"
)

// FinancialReportModel is one property's report for one month
type FinancialReportModel struct {
	TenantModel
	PropertyID    string             `gorm:"type:varchar(64);not null;index:idx_report_property_period,priority:1"`
	Year          int                `gorm:"not null;index:idx_report_property_period,priority:2"`
	Month         int                `gorm:"not null;index:idx_report_property_period,priority:3"`
	TotalIncome   decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	TotalExpenses decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	Entries       []LedgerEntryModel `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (FinancialReportModel) TableName() string {
	return "financial_reports"
}

// ToDomain converts the model and its preloaded entries. Entries keep their
// Position order within each kind.
func (m *FinancialReportModel) ToDomain() settlement.FinancialReport {
	report := settlement.FinancialReport{
		PropertyID:     m.PropertyID,
		Period:         settlement.NewPeriod(m.Year, m.Month),
		TotalIncome:    m.TotalIncome,
		TotalExpenses:  m.TotalExpenses,
		IncomeEntries:  make([]settlement.LedgerEntry, 0),
		ExpenseEntries: make([]settlement.LedgerEntry, 0),
	}
	for _, e := range m.Entries {
		entry := settlement.LedgerEntry{Amount: e.Amount, PersonInCharge: e.PersonInCharge}
		switch e.Kind {
		case LedgerEntryIncome:
			report.IncomeEntries = append(report.IncomeEntries, entry)
		case LedgerEntryExpense:
			report.ExpenseEntries = append(report.ExpenseEntries, entry)
		}
	}
	return report
}

// LedgerEntryModel is one income or expense line of a report
type LedgerEntryModel struct {
	BaseModel
	ReportID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind           LedgerEntryKind `gorm:"type:varchar(10);not null"`
	Position       int             `gorm:"not null;default:0"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PersonInCharge string          `gorm:"type:varchar(64);not null;default:''"`
	Description    string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// OwnershipModel is an investor's percentage of a property
type OwnershipModel struct {
	TenantModel
	PropertyID string          `gorm:"type:varchar(64);not null;index"`
	InvestorID string          `gorm:"type:varchar(64);not null"`
	Position   int             `gorm:"not null;default:0"`
	Percentage decimal.Decimal `gorm:"type:decimal(9,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (OwnershipModel) TableName() string {
	return "property_ownerships"
}

// ToDomain converts the model
func (m *OwnershipModel) ToDomain() settlement.OwnershipRecord {
	return settlement.OwnershipRecord{
		PropertyID: m.PropertyID,
		InvestorID: m.InvestorID,
		Percentage: m.Percentage,
	}
}

// PriorSettlementModel records what an investor already paid or received
// for a property-month
type PriorSettlementModel struct {
	TenantModel
	InvestorID      string          `gorm:"type:varchar(64);not null"`
	PropertyID      string          `gorm:"type:varchar(64);not null;index"`
	Year            int             `gorm:"not null"`
	Month           int             `gorm:"not null"`
	AlreadyPaid     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AlreadyReceived decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (PriorSettlementModel) TableName() string {
	return "prior_settlements"
}

// ToDomain converts the model
func (m *PriorSettlementModel) ToDomain() settlement.PriorSettlementRecord {
	return settlement.PriorSettlementRecord{
		InvestorID:      m.InvestorID,
		PropertyID:      m.PropertyID,
		Period:          settlement.NewPeriod(m.Year, m.Month),
		AlreadyPaid:     m.AlreadyPaid,
		AlreadyReceived: m.AlreadyReceived,
	}
}

// SettlementInputModels lists the models for AutoMigrate in tests
func SettlementInputModels() []any {
	return []any{
		&FinancialReportModel{},
		&LedgerEntryModel{},
		&OwnershipModel{},
		&PriorSettlementModel{},
	}
}
