package common

import (
	"fmt"

	"gorm.io/gorm"
)

// NextPosition returns max(column)+1 over the rows matched by query, or 0
// when none match.
func NextPosition(tx *gorm.DB, model any, column, query string, args ...any) (int, error) {
	var max int
	err := tx.Model(model).
		Where(query, args...).
		Select(fmt.Sprintf("COALESCE(MAX(%s), -1)", column)).
		Row().Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// SamePermutation checks that got names every id of want exactly once.
func SamePermutation(field string, want, got []uint) error {
	if len(want) != len(got) {
		return Invalid(field, "expected %d ids, got %d", len(want), len(got))
	}
	known := make(map[uint]bool, len(want))
	for _, id := range want {
		known[id] = true
	}
	seen := make(map[uint]bool, len(got))
	for _, id := range got {
		if !known[id] {
			return Invalid(field, "id %d does not belong here", id)
		}
		if seen[id] {
			return Invalid(field, "id %d listed twice", id)
		}
		seen[id] = true
	}
	return nil
}
