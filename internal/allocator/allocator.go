// Package allocator implements the reference & identifier allocator:
// a monotone per-(ReferenceType, year) counter family plus a family of
// realistic external-reference string formats.
//
// This is the core's only process-wide mutable state: an atomic
// counter-under-map idiom keyed by (type, year) so distinct document
// families each get their own independent monotone sequence.
package allocator

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
)

// Format is one of the document-number rendering styles the allocator
// supports.
type Format int

const (
	Sequential Format = iota
	YearPrefixed
	YearMonthPrefixed
	Random
	CompanyYearPrefixed
)

// ReferenceType names the kind of identifier being allocated, e.g.
// "ap_invoice", "je", "fa_asset".
type ReferenceType string

type key struct {
	refType ReferenceType
	year    int // 0 when the reference type is not year-scoped
}

// Allocator hands out strictly increasing sequence numbers per
// (ReferenceType, year). All methods are safe for concurrent use; each
// counter is an *atomic.Uint64 so concurrent callers on the same key never
// observe duplicate values.
type Allocator struct {
	counters sync.Map // key -> *atomic.Uint64
	base     uint64
}

// New constructs an Allocator whose counters start at base.
func New(base uint64) *Allocator {
	if base == 0 {
		base = 1
	}
	return &Allocator{base: base}
}

func (a *Allocator) counterFor(k key) *atomic.Uint64 {
	v, _ := a.counters.LoadOrStore(k, func() *atomic.Uint64 {
		c := new(atomic.Uint64)
		c.Store(a.base - 1)
		return c
	}())
	return v.(*atomic.Uint64)
}

// Next returns the next sequence number for (refType, year). Pass year=0 for
// reference types that are not year-scoped.
func (a *Allocator) Next(refType ReferenceType, year int) uint64 {
	return a.counterFor(key{refType: refType, year: year}).Add(1)
}

// Render renders a sequence number under the given format.
func Render(format Format, refType ReferenceType, company string, year, month int, seq uint64, rnd *rand.Rand) string {
	prefix := strings.ToUpper(string(refType))
	switch format {
	case YearPrefixed:
		return fmt.Sprintf("%s-%04d-%08d", prefix, year, seq)
	case YearMonthPrefixed:
		return fmt.Sprintf("%s-%04d%02d-%08d", prefix, year, month, seq)
	case CompanyYearPrefixed:
		return fmt.Sprintf("%s-%s-%04d-%08d", prefix, strings.ToUpper(company), year, seq)
	case Random:
		return fmt.Sprintf("%s-%s", prefix, randomBase36(rnd, 8))
	default:
		return fmt.Sprintf("%s%08d", prefix, seq)
	}
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomBase36(rnd *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = base36Alphabet[rnd.IntN(len(base36Alphabet))]
	}
	return string(b)
}

// externalReferenceFormats produces realistic vendor-invoice-style
// reference strings, the family of format functions backing the
// external-reference generator.
var externalReferenceFormats = []func(rnd *rand.Rand, seq uint64) string{
	func(rnd *rand.Rand, seq uint64) string { return fmt.Sprintf("INV-%06d", seq) },
	func(rnd *rand.Rand, seq uint64) string { return fmt.Sprintf("%s%05d", randomBase36(rnd, 3), seq%100000) },
	func(rnd *rand.Rand, seq uint64) string { return fmt.Sprintf("PO#%d-%03d", seq/1000+1, seq%1000) },
	func(rnd *rand.Rand, seq uint64) string { return fmt.Sprintf("REF/%04d/%04d", (seq/10000)%100, seq%10000) },
}

// ExternalReference renders a realistic vendor-supplied reference string for
// sequence number seq, choosing among the fixed family of formats.
func ExternalReference(rnd *rand.Rand, seq uint64) string {
	f := externalReferenceFormats[rnd.IntN(len(externalReferenceFormats))]
	return f(rnd, seq)
}
