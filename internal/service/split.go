package service

import (
	"github.com/shopspring/decimal"

	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

// ValidateSplit checks that two non-negative parts sum exactly to the total.
func ValidateSplit(total, professorPart, institutionPart decimal.Decimal) error {
	if professorPart.IsNegative() || institutionPart.IsNegative() {
		return appErrors.Clone(appErrors.ErrInvalidSplit, "split parts cannot be negative")
	}
	if !professorPart.Add(institutionPart).Equal(total) {
		return appErrors.Clone(appErrors.ErrInvalidSplit, "split parts must sum to the total amount")
	}
	return nil
}

// SplitFor derives the default received amounts when settling a payment.
// When the settled amount matches the expected split, the expected parts are
// used as-is; otherwise the professor part is scaled proportionally and the
// institution takes the remainder, so the parts always sum to the amount.
func SplitFor(amount, expectedProfessor, expectedInstitution decimal.Decimal) (professor, institution decimal.Decimal) {
	expectedTotal := expectedProfessor.Add(expectedInstitution)
	if expectedTotal.Equal(amount) {
		return expectedProfessor, expectedInstitution
	}
	if expectedTotal.IsZero() || amount.IsZero() {
		return decimal.Zero, amount
	}
	professor = amount.Mul(expectedProfessor).DivRound(expectedTotal, 2)
	institution = amount.Sub(professor)
	return professor, institution
}
