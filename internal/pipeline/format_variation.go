package pipeline

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"synthledger/pkg/types"
)

// FormatVariationKind is one of the four format-inconsistency dimensions
// the injector rewrites.
type FormatVariationKind string

const (
	FormatDate       FormatVariationKind = "date"
	FormatAmount     FormatVariationKind = "amount"
	FormatIdentifier FormatVariationKind = "identifier"
	FormatCase       FormatVariationKind = "case"
)

// FormatFieldSpec binds one field to the variation family that applies to
// it (a date field only ever gets date variations, never amount ones).
type FormatFieldSpec struct {
	Field string
	Kind  FormatVariationKind
}

// FormatVariationConfig parameterizes the format-variation injector.
type FormatVariationConfig struct {
	Specs []FormatFieldSpec
	Rate  float64
}

// FormatVariationProcessor rewrites a field's surface representation
// without changing its underlying value: a date becomes MM/DD/YYYY
// instead of ISO-8601, an amount grows thousands separators, an identifier
// gains inconsistent padding or separators, a name's case is randomized.
type FormatVariationProcessor struct {
	cfg FormatVariationConfig
	rnd *rand.Rand
}

func NewFormatVariationProcessor(cfg FormatVariationConfig, rnd *rand.Rand) *FormatVariationProcessor {
	return &FormatVariationProcessor{cfg: cfg, rnd: rnd}
}

func (p *FormatVariationProcessor) Name() string { return "format_variation_injector" }

func (p *FormatVariationProcessor) Process(r *FieldRecord, ctx *types.ProcessContext) ([]types.Label, error) {
	var labels []types.Label

	for _, spec := range p.cfg.Specs {
		original, ok := r.Fields[spec.Field]
		if !ok || original == "" {
			continue
		}
		if p.rnd.Float64() >= p.cfg.Rate {
			continue
		}

		modified, subtype, ok := p.vary(spec.Kind, original)
		if !ok || modified == original {
			continue
		}
		r.Fields[spec.Field] = modified

		labels = append(labels, types.QualityIssueLabel{
			DocumentID:    r.DocumentID,
			Kind:          types.QualityIssueFormatVariation,
			Subtype:       subtype,
			Field:         spec.Field,
			OriginalValue: original,
			ModifiedValue: modified,
			Severity:      1,
			Producer:      p.Name(),
			DetectedAt:    r.Date,
		})
	}
	return labels, nil
}

func (p *FormatVariationProcessor) vary(kind FormatVariationKind, value string) (string, string, bool) {
	switch kind {
	case FormatDate:
		return p.dateVariation(value)
	case FormatAmount:
		return p.amountVariation(value)
	case FormatIdentifier:
		return p.identifierVariation(value)
	case FormatCase:
		return p.caseVariation(value)
	default:
		return value, "", false
	}
}

// dateVariation expects value in ISO-8601 (YYYY-MM-DD) and rewrites it into
// one of three common alternate renderings.
func (p *FormatVariationProcessor) dateVariation(value string) (string, string, bool) {
	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return value, "", false
	}
	year, month, day := parts[0], parts[1], parts[2]

	switch p.rnd.IntN(3) {
	case 0:
		return fmt.Sprintf("%s/%s/%s", month, day, year), "us_slash", true
	case 1:
		return fmt.Sprintf("%s/%s/%s", day, month, year), "eu_slash", true
	default:
		return fmt.Sprintf("%s.%s.%s", day, month, year), "dotted", true
	}
}

// amountVariation expects a plain decimal string and adds thousands
// separators, a currency symbol, or parenthesized-negative accounting
// notation.
func (p *FormatVariationProcessor) amountVariation(value string) (string, string, bool) {
	negative := strings.HasPrefix(value, "-")
	magnitude := strings.TrimPrefix(value, "-")

	intPart, fracPart, hasFrac := strings.Cut(magnitude, ".")
	grouped := groupThousands(intPart)
	rendered := grouped
	if hasFrac {
		rendered = grouped + "." + fracPart
	}

	sign := ""
	if negative {
		sign = "-"
	}

	switch p.rnd.IntN(3) {
	case 0:
		return sign + "$" + rendered, "currency_symbol", true
	case 1:
		if negative {
			return "(" + rendered + ")", "accounting_negative", true
		}
		return rendered, "thousands_separator", true
	default:
		return sign + rendered, "thousands_separator", true
	}
}

func groupThousands(intPart string) string {
	if len(intPart) <= 3 {
		return intPart
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String()
}

// identifierVariation reformats a reference/document number with
// inconsistent padding or separator placement.
func (p *FormatVariationProcessor) identifierVariation(value string) (string, string, bool) {
	switch p.rnd.IntN(3) {
	case 0:
		return strings.ToUpper(value), "uppercase_id", true
	case 1:
		if n, err := strconv.Atoi(strings.TrimLeft(value, "0")); err == nil {
			return fmt.Sprintf("%010d", n), "zero_padded", true
		}
		return value, "", false
	default:
		if len(value) > 4 {
			return value[:len(value)-4] + "-" + value[len(value)-4:], "hyphenated", true
		}
		return value, "", false
	}
}

// caseVariation randomizes the casing of a free-text field (vendor/customer
// name, description).
func (p *FormatVariationProcessor) caseVariation(value string) (string, string, bool) {
	switch p.rnd.IntN(3) {
	case 0:
		return strings.ToUpper(value), "all_caps", true
	case 1:
		return strings.ToLower(value), "all_lower", true
	default:
		return strings.Title(strings.ToLower(value)), "title_case", true
	}
}
