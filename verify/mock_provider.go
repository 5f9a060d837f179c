package verify

import (
	"context"
	"hash/fnv"
	"strings"
)

// MockProvider answers lookups deterministically from a hash of the query,
// so the same person always gets the same answer. It backs local
// development and demos where no upstream registry is configured.
type MockProvider struct {
	source string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{source: "mock"}
}

func (p *MockProvider) Lookup(ctx context.Context, q Query) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.Join([]string{
		q.FirstName, q.MiddleName, q.LastName, q.DateOfBirth, q.City, q.State,
	}, "|"))))
	sum := h.Sum32()

	// Roughly a third of lookups come back deceased, with a score that is
	// stable per person.
	deceased := sum%3 == 0
	score := 0.5 + float64(sum%50)/100.0

	return Result{
		Deceased:   deceased,
		MatchScore: score,
		Source:     p.source,
	}, nil
}
