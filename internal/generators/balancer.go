package generators

import (
	"synthledger/pkg/decimal"
	"synthledger/pkg/errors"
)

// Balance appends an offsetting line to lines so the resulting JournalEntry
// balances exactly. offsetAccount
// is credited if the running lines are net-debit, debited otherwise.
func Balance(lines []JELine, offsetAccount, offsetDescription string, scale int32) []JELine {
	debit := decimal.Zero(scale)
	credit := decimal.Zero(scale)
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	diff := debit.Sub(credit)
	offset := JELine{Account: offsetAccount, Description: offsetDescription}
	switch diff.Sign() {
	case 1:
		offset.Credit = diff
	case -1:
		offset.Debit = diff.Neg()
	default:
		return lines
	}
	return append(append([]JELine{}, lines...), offset)
}

// ValidateBalanced enforces Invariant 1: a JournalEntry that fails to
// balance is a fatal Generation error for the record, never silently posted.
func ValidateBalanced(je JournalEntry) error {
	if !je.IsBalanced() {
		return errors.GenerationError("validate_balanced",
			"journal entry "+je.ID+" does not balance: debits="+je.DebitTotal().String()+" credits="+je.CreditTotal().String())
	}
	return nil
}
