package amount

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"synthledger/pkg/decimal"
)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xabcdef))
}

func testConfig() Config {
	return Config{Min: 1, Max: 100000, DecimalPlaces: 2, RoundNumberProbability: 0.05, NiceNumberProbability: 0.10}
}

func TestSampleIsWithinBounds(t *testing.T) {
	s := New(testRand(1), testConfig(), DefaultThresholdConfig())
	for _, pattern := range []FraudAmountPattern{Normal, StatisticallyImprobable, ObviousRoundNumbers, ThresholdAdjacent} {
		for i := 0; i < 200; i++ {
			v := s.Sample(pattern).Float64()
			if v < testConfig().Min || v > testConfig().Max {
				t.Fatalf("pattern %s produced out-of-bounds amount %v", pattern, v)
			}
		}
	}
}

func TestSampleIsDeterministicGivenSameSeed(t *testing.T) {
	a := New(testRand(7), testConfig(), DefaultThresholdConfig())
	b := New(testRand(7), testConfig(), DefaultThresholdConfig())

	for i := 0; i < 50; i++ {
		av := a.Sample(Normal)
		bv := b.Sample(Normal)
		if av.Cmp(bv) != 0 {
			t.Fatalf("draw %d diverged: %v != %v", i, av, bv)
		}
	}
}

func TestFirstDigitExtractsLeadingNonZeroDigit(t *testing.T) {
	cases := []struct {
		value string
		digit int
		ok    bool
	}{
		{"123.45", 1, true},
		{"0.05", 5, true},
		{"0.00", 0, false},
		{"9999.99", 9, true},
	}
	for _, c := range cases {
		v, err := strconv.ParseFloat(c.value, 64)
		if err != nil {
			t.Fatalf("invalid test literal %q: %v", c.value, err)
		}
		d := decimal.FromFloat64(v, 2)
		digit, ok := FirstDigit(d)
		if ok != c.ok || (ok && digit != c.digit) {
			t.Errorf("FirstDigit(%s) = (%d, %v), want (%d, %v)", c.value, digit, ok, c.digit, c.ok)
		}
	}
}

func TestStatisticallyImprobableSkewsAwayFromBenfordDigitOne(t *testing.T) {
	s := New(testRand(99), testConfig(), DefaultThresholdConfig())
	var digitOne, total int
	for i := 0; i < 2000; i++ {
		d := s.Sample(StatisticallyImprobable)
		digit, ok := FirstDigit(d)
		if !ok {
			continue
		}
		total++
		if digit == 1 {
			digitOne++
		}
	}
	// Benford's law puts P(1) at ~30%; the anti-Benford table inverts the
	// distribution, so digit 1 should be underrepresented relative to that.
	if rate := float64(digitOne) / float64(total); rate > 0.30 {
		t.Fatalf("digit-1 rate %v not suppressed relative to Benford baseline", rate)
	}
}
