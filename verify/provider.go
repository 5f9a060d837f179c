// Package verify resolves whether a person is deceased. Providers answer
// single lookups; the bulk service drives CSV uploads through a provider
// row by row.
package verify

import (
	"context"

	"github.com/goliatone/go-errors"
)

// Query identifies the person to check. DateOfBirth uses YYYY-MM-DD.
type Query struct {
	FirstName   string `json:"first_name"`
	MiddleName  string `json:"middle_name,omitempty"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	City        string `json:"city"`
	State       string `json:"state"`
}

// Result is the provider's answer. MatchScore is 0 to 1; Source names the
// upstream registry the answer came from.
type Result struct {
	Deceased   bool    `json:"deceased"`
	MatchScore float64 `json:"match_score"`
	Source     string  `json:"source"`
}

// Provider answers deceased-status lookups.
type Provider interface {
	Lookup(ctx context.Context, q Query) (Result, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, q Query) (Result, error)

func (f ProviderFunc) Lookup(ctx context.Context, q Query) (Result, error) {
	return f(ctx, q)
}

// Validate checks the query has the fields every provider requires.
func (q Query) Validate() error {
	missing := []string{}
	if q.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if q.LastName == "" {
		missing = append(missing, "last_name")
	}
	if q.DateOfBirth == "" {
		missing = append(missing, "date_of_birth")
	}
	if q.City == "" {
		missing = append(missing, "city")
	}
	if q.State == "" {
		missing = append(missing, "state")
	}

	if len(missing) > 0 {
		return errors.New("verification query is missing required fields", errors.CategoryValidation).
			WithTextCode("INCOMPLETE_QUERY").
			WithCode(errors.CodeBadRequest).
			WithMetadata(map[string]any{"missing": missing})
	}

	return nil
}
