// Package draft implements the wizard draft persistence model: one JSON
// document per namespace, holding one record per wizard section. All
// mutation goes through read-merge-write at the section level so sibling
// sections in the same document are preserved.
package draft

import (
	"context"
	"encoding/json"
)

// SectionRecord is the unit owned by one wizard tool: the user's current
// form inputs plus the last generated output for them. AIOutput is not
// invalidated when Inputs change; regeneration is an explicit user action.
type SectionRecord struct {
	Inputs   map[string]any `json:"inputs"`
	AIOutput any            `json:"aiOutput,omitempty"`
}

// Document maps section ids to their records. The whole document is the
// unit of physical storage.
type Document map[string]SectionRecord

// Store persists one raw JSON document per (owner, namespace key). Read
// returns nil bytes when the key is absent. Implementations do not
// interpret the payload and provide no cross-call ordering guarantees:
// concurrent writers race at document granularity, last write wins.
type Store interface {
	ReadRaw(ctx context.Context, ownerID, key string) ([]byte, error)
	WriteRaw(ctx context.Context, ownerID, key string, raw []byte) error
}

// decodeDocument parses stored bytes forgivingly: absent or malformed
// content yields an empty document, never an error. Callers always get an
// object back, matching how the wizard screens treat missing state.
func decodeDocument(raw []byte) Document {
	if len(raw) == 0 {
		return Document{}
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}
	}
	if doc == nil {
		return Document{}
	}
	return doc
}

func encodeDocument(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}
