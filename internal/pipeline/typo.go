package pipeline

import (
	"math/rand/v2"
	"strings"

	"synthledger/pkg/types"
)

// TypoSubtype is one of the six keystroke/OCR error models the injector
// produces.
type TypoSubtype string

const (
	TypoSubstitution  TypoSubtype = "substitution"
	TypoTransposition TypoSubtype = "transposition"
	TypoInsertion     TypoSubtype = "insertion"
	TypoDeletion      TypoSubtype = "deletion"
	TypoOCR           TypoSubtype = "ocr"
	TypoHomophone     TypoSubtype = "homophone"
)

// qwertyNeighbors gives each letter's adjacent keys on a US QWERTY layout,
// used by the substitution subtype so typos land where a real finger slip
// would land.
var qwertyNeighbors = map[byte]string{
	'q': "wa", 'w': "qeas", 'e': "wrds", 'r': "etdf", 't': "rygf", 'y': "tuhg",
	'u': "yijh", 'i': "uokj", 'o': "iplk", 'p': "ol",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiolm", 'l': "kop",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk",
}

// ocrConfusions pairs characters OCR commonly swaps.
var ocrConfusions = map[byte]byte{
	'0': 'O', 'O': '0', '1': 'l', 'l': '1', '5': 'S', 'S': '5',
	'8': 'B', 'B': '8', '2': 'Z', 'Z': '2', '6': 'G', 'G': '6',
}

// homophoneSwaps pairs digits with accounting-document homophone mix-ups
// (e.g. a digitizer misreading a handwritten amount).
var homophoneSwaps = [][2]string{
	{"1", "7"}, {"13", "30"}, {"14", "40"}, {"15", "50"}, {"16", "60"}, {"18", "80"}, {"19", "90"},
}

// TypoConfig parameterizes the typo injector.
type TypoConfig struct {
	Fields   []string // eligible field names
	Rate     float64  // per-field probability of injecting a typo
	Subtypes []TypoSubtype
}

// TypoProcessor injects single-character keystroke/OCR-style errors into
// eligible text fields.
type TypoProcessor struct {
	cfg TypoConfig
	rnd *rand.Rand
}

func NewTypoProcessor(cfg TypoConfig, rnd *rand.Rand) *TypoProcessor {
	return &TypoProcessor{cfg: cfg, rnd: rnd}
}

func (p *TypoProcessor) Name() string { return "typo_injector" }

func (p *TypoProcessor) Process(r *FieldRecord, ctx *types.ProcessContext) ([]types.Label, error) {
	var labels []types.Label
	subtypes := p.cfg.Subtypes
	if len(subtypes) == 0 {
		subtypes = []TypoSubtype{TypoSubstitution, TypoTransposition, TypoInsertion, TypoDeletion, TypoOCR, TypoHomophone}
	}

	for _, field := range p.cfg.Fields {
		original, ok := r.Fields[field]
		if !ok || len(original) < 2 {
			continue
		}
		if p.rnd.Float64() >= p.cfg.Rate {
			continue
		}

		subtype := subtypes[p.rnd.IntN(len(subtypes))]
		modified, applied := p.apply(subtype, original)
		if !applied || modified == original {
			continue
		}
		r.Fields[field] = modified

		labels = append(labels, types.QualityIssueLabel{
			DocumentID:    r.DocumentID,
			Kind:          types.QualityIssueTypo,
			Subtype:       string(subtype),
			Field:         field,
			OriginalValue: original,
			ModifiedValue: modified,
			Severity:      1,
			Producer:      p.Name(),
			DetectedAt:    r.Date,
		})
	}
	return labels, nil
}

func (p *TypoProcessor) apply(subtype TypoSubtype, s string) (string, bool) {
	switch subtype {
	case TypoSubstitution:
		return p.substitution(s), true
	case TypoTransposition:
		return p.transposition(s), true
	case TypoInsertion:
		return p.insertion(s), true
	case TypoDeletion:
		return p.deletion(s), true
	case TypoOCR:
		return p.ocr(s), true
	case TypoHomophone:
		return p.homophone(s)
	default:
		return s, false
	}
}

func (p *TypoProcessor) substitution(s string) string {
	b := []byte(s)
	i := p.rnd.IntN(len(b))
	lower := b[i] | 0x20
	neighbors, ok := qwertyNeighbors[lower]
	if !ok || len(neighbors) == 0 {
		return s
	}
	repl := neighbors[p.rnd.IntN(len(neighbors))]
	if b[i] >= 'A' && b[i] <= 'Z' {
		repl = repl - 'a' + 'A'
	}
	b[i] = repl
	return string(b)
}

func (p *TypoProcessor) transposition(s string) string {
	if len(s) < 2 {
		return s
	}
	b := []byte(s)
	i := p.rnd.IntN(len(b) - 1)
	b[i], b[i+1] = b[i+1], b[i]
	return string(b)
}

func (p *TypoProcessor) insertion(s string) string {
	b := []byte(s)
	i := p.rnd.IntN(len(b) + 1)
	lower := b[min(i, len(b)-1)] | 0x20
	candidates, ok := qwertyNeighbors[lower]
	c := byte('x')
	if ok && len(candidates) > 0 {
		c = candidates[p.rnd.IntN(len(candidates))]
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, b[:i]...)
	out = append(out, c)
	out = append(out, b[i:]...)
	return string(out)
}

func (p *TypoProcessor) deletion(s string) string {
	b := []byte(s)
	i := p.rnd.IntN(len(b))
	out := make([]byte, 0, len(b)-1)
	out = append(out, b[:i]...)
	out = append(out, b[i+1:]...)
	return string(out)
}

func (p *TypoProcessor) ocr(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if repl, ok := ocrConfusions[b[i]]; ok {
			b[i] = repl
			return string(b)
		}
	}
	return s
}

func (p *TypoProcessor) homophone(s string) (string, bool) {
	for _, pair := range homophoneSwaps {
		if strings.Contains(s, pair[0]) {
			return strings.Replace(s, pair[0], pair[1], 1), true
		}
		if strings.Contains(s, pair[1]) {
			return strings.Replace(s, pair[1], pair[0], 1), true
		}
	}
	return s, false
}
