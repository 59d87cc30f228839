package docservice

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/munin/internal/apperr"
)

// Policy selects the validation rules of the API dialect that invoked
// the coordinator.
type Policy int

const (
	// Permissive accepts content-only or metadata-only documents
	// (legacy dialect).
	Permissive Policy = iota
	// Strict requires non-empty content and non-empty metadata,
	// together, on every write (Mind dialect).
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "permissive"
}

// Validate checks a document payload against the policy. It is pure:
// failures never reach the stores.
func (p Policy) Validate(content string, metadata map[string]any) error {
	switch p {
	case Strict:
		if err := validation.Validate(strings.TrimSpace(content), validation.Required); err != nil {
			return apperr.Validation(apperr.ReasonMissingContent)
		}
		if len(metadata) == 0 {
			return apperr.Validation(apperr.ReasonMissingMetadata)
		}
	default:
		if strings.TrimSpace(content) == "" && len(metadata) == 0 {
			return apperr.Validation(apperr.ReasonEmptyDocument)
		}
	}
	return nil
}
