// Package pipeline implements the post-processor pipeline: an ordered
// chain of label-emitting transforms (missing values, typos, duplicates,
// format variation, encoding corruption) driven sequentially over a
// generic, field-level view of a record, with each processor publishing
// its own running stats as it goes.
package pipeline

import "time"

// FieldRecord is the mutable, field-level view every post-processor
// injector operates on. Generators project their concrete record (a
// JournalEntry, an APInvoice, ...) into a FieldRecord before it enters the
// pipeline; field-level defects are representation-agnostic, so injecting
// them against a flat string map is simpler than reflecting into each
// concrete struct.
type FieldRecord struct {
	DocumentID     string
	DocumentType   string
	Date           time.Time
	Fields         map[string]string
	FieldOrder     []string // preserves a stable iteration order for determinism
	RequiredFields map[string]bool
}

func (r *FieldRecord) RecordID() string       { return r.DocumentID }
func (r *FieldRecord) RecordType() string     { return r.DocumentType }
func (r *FieldRecord) PostingDate() time.Time { return r.Date }

// NewFieldRecord builds a FieldRecord from an ordered list of (name, value)
// pairs, preserving insertion order for deterministic iteration.
func NewFieldRecord(documentID, documentType string, date time.Time, fields [][2]string, required map[string]bool) *FieldRecord {
	r := &FieldRecord{
		DocumentID:     documentID,
		DocumentType:   documentType,
		Date:           date,
		Fields:         make(map[string]string, len(fields)),
		RequiredFields: required,
	}
	for _, kv := range fields {
		r.Fields[kv[0]] = kv[1]
		r.FieldOrder = append(r.FieldOrder, kv[0])
	}
	return r
}

// Clone deep-copies the record so the duplicate injector can produce an
// independent copy that later processors mutate without touching the
// original.
func (r *FieldRecord) Clone(newDocumentID string) *FieldRecord {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return &FieldRecord{
		DocumentID:     newDocumentID,
		DocumentType:   r.DocumentType,
		Date:           r.Date,
		Fields:         fields,
		FieldOrder:     append([]string{}, r.FieldOrder...),
		RequiredFields: r.RequiredFields,
	}
}

func (r *FieldRecord) IsRequired(field string) bool {
	return r.RequiredFields != nil && r.RequiredFields[field]
}
