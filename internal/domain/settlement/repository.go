package settlement

import "context"

// InputQuery selects the property-months whose inputs should be loaded.
// Choosing them is a business decision made by the caller.
type InputQuery struct {
	TenantID    string
	PropertyIDs []string
	Periods     []Period
}

// InputRepository loads engine inputs from the reporting store
type InputRepository interface {
	// LoadBatch returns the reports for the query's property-months together
	// with the ownership of those properties and any prior settlement records.
	// Reports are ordered by period, then by the order of PropertyIDs.
	LoadBatch(ctx context.Context, query InputQuery) (*Batch, error)
}
