package settlement

import (
	"fmt"

	"github.com/propledger/backend/internal/domain/shared"
)

// InvalidInputError reports structurally invalid engine input, such as a
// transaction naming an investor that has no balance. Business-data oddities
// (bad percentages, imbalances, unparsable amounts) never produce it.
type InvalidInputError struct {
	*shared.DomainError
	Field string
}

// NewInvalidInputError creates an InvalidInputError for the given field
func NewInvalidInputError(field, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{
		DomainError: shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf(format, args...)),
		Field:       field,
	}
}

// Unwrap exposes the underlying DomainError to errors.Is / errors.As
func (e *InvalidInputError) Unwrap() error {
	return e.DomainError
}
