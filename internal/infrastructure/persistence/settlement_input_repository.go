package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSettlementInputRepository implements settlement.InputRepository using GORM
type GormSettlementInputRepository struct {
	db *gorm.DB
}

// NewGormSettlementInputRepository creates a new GormSettlementInputRepository
func NewGormSettlementInputRepository(db *gorm.DB) *GormSettlementInputRepository {
	return &GormSettlementInputRepository{db: db}
}

// LoadBatch loads reports, ownership and prior settlements for the query.
// Property-months without a stored report are skipped.
func (r *GormSettlementInputRepository) LoadBatch(ctx context.Context, query settlement.InputQuery) (*settlement.Batch, error) {
	tenantID, err := uuid.Parse(query.TenantID)
	if err != nil {
		return nil, settlement.NewInvalidInputError("tenant_id", "invalid tenant ID %q", query.TenantID)
	}
	if len(query.PropertyIDs) == 0 {
		return nil, settlement.NewInvalidInputError("property_ids", "at least one property is required")
	}
	if len(query.Periods) == 0 {
		return nil, settlement.NewInvalidInputError("periods", "at least one period is required")
	}

	periodKeys := make([]int, 0, len(query.Periods))
	for _, p := range query.Periods {
		if !p.IsValid() {
			return nil, settlement.NewInvalidInputError("periods", "invalid period %s", p)
		}
		periodKeys = append(periodKeys, periodKey(p))
	}

	db := r.db.WithContext(ctx)

	var reports []models.FinancialReportModel
	if err := db.
		Preload("Entries", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Where("tenant_id = ?", tenantID).
		Where("property_id IN ?", query.PropertyIDs).
		Where("year * 100 + month IN ?", periodKeys).
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to load financial reports: %w", err)
	}

	var ownership []models.OwnershipModel
	if err := db.
		Where("tenant_id = ?", tenantID).
		Where("property_id IN ?", query.PropertyIDs).
		Order("property_id ASC").
		Order("position ASC").
		Find(&ownership).Error; err != nil {
		return nil, fmt.Errorf("failed to load property ownership: %w", err)
	}

	var priors []models.PriorSettlementModel
	if err := db.
		Where("tenant_id = ?", tenantID).
		Where("property_id IN ?", query.PropertyIDs).
		Where("year * 100 + month IN ?", periodKeys).
		Order("year ASC").
		Order("month ASC").
		Order("investor_id ASC").
		Find(&priors).Error; err != nil {
		return nil, fmt.Errorf("failed to load prior settlements: %w", err)
	}

	batch := &settlement.Batch{
		Reports:   orderReports(reports, query),
		Ownership: make([]settlement.OwnershipRecord, 0, len(ownership)),
		Priors:    make([]settlement.PriorSettlementRecord, 0, len(priors)),
	}
	for i := range ownership {
		batch.Ownership = append(batch.Ownership, ownership[i].ToDomain())
	}
	for i := range priors {
		batch.Priors = append(batch.Priors, priors[i].ToDomain())
	}
	return batch, nil
}

// orderReports arranges reports by the query's period order, then by its
// property order. Duplicate periods or properties in the query are emitted once.
func orderReports(rows []models.FinancialReportModel, query settlement.InputQuery) []settlement.FinancialReport {
	type reportKey struct {
		property string
		period   int
	}
	byKey := make(map[reportKey]*models.FinancialReportModel, len(rows))
	for i := range rows {
		byKey[reportKey{rows[i].PropertyID, rows[i].Year*100 + rows[i].Month}] = &rows[i]
	}

	reports := make([]settlement.FinancialReport, 0, len(rows))
	seen := make(map[reportKey]bool, len(rows))
	for _, p := range query.Periods {
		for _, propertyID := range query.PropertyIDs {
			key := reportKey{propertyID, periodKey(p)}
			row, ok := byKey[key]
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			reports = append(reports, row.ToDomain())
		}
	}
	return reports
}

func periodKey(p settlement.Period) int {
	return p.Year*100 + p.Month
}
