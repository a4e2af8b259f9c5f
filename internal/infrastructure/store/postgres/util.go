package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const (
	codeUniqueViolation  = "23505"
	codeInvalidTextInput = "22P02"
)

// isInvalidText matches malformed input such as a non-uuid id
func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeInvalidTextInput
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation &&
		(constraint == "" || pqErr.Constraint == constraint)
}
