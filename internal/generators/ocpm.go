package generators

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ProcessType names the two object-centric process flavors generated here.
type ProcessType string

const (
	ProcessO2C ProcessType = "order_to_cash"
	ProcessP2P ProcessType = "procure_to_pay"
)

// activityStep is one node of a process type's fixed activity state
// machine: its name, the mean inter-arrival delay (hours, log-normal mu) and
// sigma to the next activity, and whether it creates or completes the case.
type activityStep struct {
	Activity string
	DelayMu  float64 // log-normal mu, hours
	DelaySig float64
	Creates  bool
	Completes bool
}

// o2cHappyPath and p2pHappyPath ground the object lifecycle state
// machines: initial state reached via a creates activity, terminal state
// via a completes activity.
var o2cHappyPath = []activityStep{
	{Activity: "create_order", DelayMu: 0, DelaySig: 0, Creates: true},
	{Activity: "confirm_order", DelayMu: 1.0, DelaySig: 0.4},
	{Activity: "pick_pack", DelayMu: 2.5, DelaySig: 0.5},
	{Activity: "ship_goods", DelayMu: 1.5, DelaySig: 0.3},
	{Activity: "issue_invoice", DelayMu: 0.8, DelaySig: 0.3},
	{Activity: "receive_payment", DelayMu: 3.2, DelaySig: 0.6, Completes: true},
}

var p2pHappyPath = []activityStep{
	{Activity: "create_purchase_requisition", DelayMu: 0, DelaySig: 0, Creates: true},
	{Activity: "approve_requisition", DelayMu: 1.2, DelaySig: 0.5},
	{Activity: "create_purchase_order", DelayMu: 0.8, DelaySig: 0.3},
	{Activity: "receive_goods", DelayMu: 3.5, DelaySig: 0.7},
	{Activity: "receive_invoice", DelayMu: 1.0, DelaySig: 0.4},
	{Activity: "match_and_pay", DelayMu: 2.8, DelaySig: 0.5, Completes: true},
}

func happyPathFor(p ProcessType) []activityStep {
	if p == ProcessP2P {
		return p2pHappyPath
	}
	return o2cHappyPath
}

// CaseConfig parameterizes one object-centric case walk.
type CaseConfig struct {
	Process       ProcessType
	CaseID        string
	RootObjectRef string
	Start         time.Time
	Resources     []string
	ReworkProb    float64
	ErrorProb     float64
}

// GenerateCase walks the activity state machine for the root object,
// sampling inter-activity delays from a log-normal per activity, and
// recording the variant (happy/rework/error) probabilistically. Every event's
// ObjectRefs holds only the case's RootObjectRef; no other objects are
// attached.
func GenerateCase(cfg CaseConfig, rnd *rand.Rand) []CaseEvent {
	if len(cfg.Resources) == 0 {
		cfg.Resources = []string{"system"}
	}

	variant := VariantHappy
	p := rnd.Float64()
	switch {
	case p < cfg.ErrorProb:
		variant = VariantError
	case p < cfg.ErrorProb+cfg.ReworkProb:
		variant = VariantRework
	}

	steps := happyPathFor(cfg.Process)
	var events []CaseEvent
	t := cfg.Start
	seq := 0

	emit := func(activity string, refs []string) {
		seq++
		events = append(events, CaseEvent{
			ID:         fmt.Sprintf("%s-EVT-%03d", cfg.CaseID, seq),
			CaseID:     cfg.CaseID,
			ObjectType: string(cfg.Process),
			Activity:   activity,
			Timestamp:  t,
			Resource:   cfg.Resources[rnd.IntN(len(cfg.Resources))],
			ObjectRefs: refs,
			Variant:    variant,
		})
	}

	for i, step := range steps {
		if i > 0 {
			hours := sampleLogNormal(rnd, step.DelayMu, step.DelaySig)
			t = t.Add(time.Duration(hours * float64(time.Hour)))
		}
		emit(step.Activity, []string{cfg.RootObjectRef})

		if variant == VariantRework && i == len(steps)/2 {
			// rework loop: repeat the previous activity once before continuing.
			reworkDelay := sampleLogNormal(rnd, steps[i-1].DelayMu, steps[i-1].DelaySig)
			t = t.Add(time.Duration(reworkDelay * float64(time.Hour)))
			emit(steps[i-1].Activity+"_rework", []string{cfg.RootObjectRef})
		}
		if variant == VariantError && step.Completes {
			emit("exception_raised", []string{cfg.RootObjectRef})
			break
		}
	}

	return events
}

// sampleLogNormal draws a positive duration from a log-normal distribution
// with the given mu/sigma on the underlying normal.
func sampleLogNormal(rnd *rand.Rand, mu, sigma float64) float64 {
	if sigma <= 0 {
		return math.Exp(mu)
	}
	z := sampleStandardNormal(rnd)
	return math.Exp(mu + sigma*z)
}
