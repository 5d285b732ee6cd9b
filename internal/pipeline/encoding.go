package pipeline

import (
	"math/rand/v2"
	"strings"

	"synthledger/pkg/types"
)

// EncodingSubtype is one of the four character-encoding corruption models
// the injector produces.
type EncodingSubtype string

const (
	EncodingMojibake    EncodingSubtype = "mojibake"
	EncodingHTMLEntity  EncodingSubtype = "html_entity"
	EncodingBOM         EncodingSubtype = "bom"
	EncodingStrayByte   EncodingSubtype = "stray_high_byte"
)

// mojibakeTable maps common accented characters to the garbled byte
// sequence a UTF-8-as-Latin-1 misdecoding would produce.
var mojibakeTable = map[string]string{
	"é": "Ã©", "è": "Ã¨", "ü": "Ã¼", "ñ": "Ã±", "ö": "Ã¶", "ä": "Ã¤", "ç": "Ã§", "à": "Ã ",
}

// htmlEntityTable maps characters to their HTML entity escape, as a feed
// that double-encodes already-escaped text would leave behind.
var htmlEntityTable = map[string]string{
	"&": "&amp;", "'": "&#39;", "\"": "&quot;", "<": "&lt;", ">": "&gt;",
}

// EncodingConfig parameterizes the encoding-corruption injector.
type EncodingConfig struct {
	Fields []string
	Rate   float64
}

// EncodingProcessor corrupts a text field's character encoding in a way
// consistent with a specific, real upstream-system failure mode:
// mojibake from a charset mismatch, stray HTML-entity escaping, a leading
// UTF-8 BOM that survived a file reimport, or a single stray high byte from
// a bad fixed-width extract.
type EncodingProcessor struct {
	cfg EncodingConfig
	rnd *rand.Rand
}

func NewEncodingProcessor(cfg EncodingConfig, rnd *rand.Rand) *EncodingProcessor {
	return &EncodingProcessor{cfg: cfg, rnd: rnd}
}

func (p *EncodingProcessor) Name() string { return "encoding_corruption_injector" }

func (p *EncodingProcessor) Process(r *FieldRecord, ctx *types.ProcessContext) ([]types.Label, error) {
	var labels []types.Label

	for _, field := range p.cfg.Fields {
		original, ok := r.Fields[field]
		if !ok || original == "" {
			continue
		}
		if p.rnd.Float64() >= p.cfg.Rate {
			continue
		}

		subtype := []EncodingSubtype{EncodingMojibake, EncodingHTMLEntity, EncodingBOM, EncodingStrayByte}[p.rnd.IntN(4)]
		modified, ok := p.corrupt(subtype, original)
		if !ok || modified == original {
			continue
		}
		r.Fields[field] = modified

		labels = append(labels, types.QualityIssueLabel{
			DocumentID:    r.DocumentID,
			Kind:          types.QualityIssueEncoding,
			Subtype:       string(subtype),
			Field:         field,
			OriginalValue: original,
			ModifiedValue: modified,
			Severity:      2,
			Producer:      p.Name(),
			DetectedAt:    r.Date,
		})
	}
	return labels, nil
}

func (p *EncodingProcessor) corrupt(subtype EncodingSubtype, s string) (string, bool) {
	switch subtype {
	case EncodingMojibake:
		for from, to := range mojibakeTable {
			if strings.Contains(s, from) {
				return strings.Replace(s, from, to, 1), true
			}
		}
		return s, false
	case EncodingHTMLEntity:
		for from, to := range htmlEntityTable {
			if strings.Contains(s, from) {
				return strings.Replace(s, from, to, 1), true
			}
		}
		return s, false
	case EncodingBOM:
		return "﻿" + s, true
	case EncodingStrayByte:
		b := []byte(s)
		i := p.rnd.IntN(len(b) + 1)
		strayByte := byte(0x80 + p.rnd.IntN(0x7F))
		out := make([]byte, 0, len(b)+1)
		out = append(out, b[:i]...)
		out = append(out, strayByte)
		out = append(out, b[i:]...)
		return string(out), true
	default:
		return s, false
	}
}
