// Package models contains GORM persistence models for settlement inputs.
// They are kept apart from the domain types so that the settlement engine
// stays free of ORM concerns; ToDomain methods do the mapping.
//
// Tables:
//   - financial_reports / ledger_entries: one property's income and expenses for one month
//   - property_ownerships: investor percentages per property
//   - prior_settlements: amounts already paid or received outside a plan
package models
