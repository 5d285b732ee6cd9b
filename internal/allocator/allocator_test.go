package allocator

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestNextIsStrictlyIncreasingFromBase(t *testing.T) {
	a := New(100)
	for i := uint64(0); i < 5; i++ {
		got := a.Next("ap_invoice", 2026)
		if want := 100 + i; got != want {
			t.Fatalf("seq %d: got %d, want %d", i, got, want)
		}
	}
}

func TestNextIsIndependentPerKey(t *testing.T) {
	a := New(1)
	first := a.Next("ap_invoice", 2026)
	second := a.Next("ar_invoice", 2026)
	third := a.Next("ap_invoice", 2027)

	if first != 1 || second != 1 || third != 1 {
		t.Fatalf("distinct (type, year) keys shared a counter: %d %d %d", first, second, third)
	}
	if fourth := a.Next("ap_invoice", 2026); fourth != 2 {
		t.Fatalf("same key did not continue counting: got %d, want 2", fourth)
	}
}

func TestNewDefaultsZeroBaseToOne(t *testing.T) {
	a := New(0)
	if got := a.Next("je", 0); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestRenderFormats(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	cases := []struct {
		format Format
		want   string
	}{
		{Sequential, "APINV00000042"},
		{YearPrefixed, "APINV-2026-00000042"},
		{YearMonthPrefixed, "APINV-202603-00000042"},
		{CompanyYearPrefixed, "APINV-ACME-2026-00000042"},
	}
	for _, c := range cases {
		got := Render(c.format, "apinv", "acme", 2026, 3, 42, rnd)
		if got != c.want {
			t.Errorf("Render(%v) = %q, want %q", c.format, got, c.want)
		}
	}
}

func TestRenderRandomFormatProducesStablePrefix(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	got := Render(Random, "apinv", "acme", 2026, 3, 42, rnd)
	if len(got) != len("APINV-") + 8 {
		t.Fatalf("unexpected length for random reference: %q", got)
	}
	if !strings.HasPrefix(got, "APINV-") {
		t.Fatalf("random reference lost its type prefix: %q", got)
	}
}

func TestExternalReferencePicksFromFixedFamily(t *testing.T) {
	rnd := rand.New(rand.NewPCG(5, 6))
	for i := uint64(0); i < 20; i++ {
		ref := ExternalReference(rnd, i)
		if ref == "" {
			t.Fatal("external reference must not be empty")
		}
	}
}
