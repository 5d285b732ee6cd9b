// Package types defines the core data shapes that flow through the generation
// pipeline: records, labels, and the stream/control surface the runtime and
// sinks exchange them through.
package types

import (
	"time"

	"synthledger/pkg/decimal"
)

// Record is the payload a generator emits. The pipeline treats it as opaque
// except for the identity and posting-date promise every generator makes.
type Record interface {
	RecordID() string
	RecordType() string
	PostingDate() time.Time
}

// Balanced is implemented by records that carry a double-entry decomposition
// (journal entries and anything that wraps one). Generators that build such
// records must guarantee DebitTotal() - CreditTotal() is zero at the
// configured precision.
type Balanced interface {
	Record
	DebitTotal() decimal.Decimal
	CreditTotal() decimal.Decimal
}
