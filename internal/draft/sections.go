package draft

import (
	"context"
	"fmt"
)

// Sections is the accessor every wizard screen goes through. It owns the
// one subtle correctness property of the model: writes are read-merge-write
// against the whole namespace document, so updating one section never
// clobbers its siblings. There is deliberately no locking around the
// read-merge-write sequence; two concurrent writers to different sections
// of the same namespace can lose one update (last write wins at document
// granularity). That matches the storage model this replaces.
type Sections struct {
	store Store
}

func NewSections(store Store) *Sections {
	return &Sections{store: store}
}

// ReadDocument returns the full document for a namespace. Absent or
// corrupt stored content reads as an empty document.
func (s *Sections) ReadDocument(ctx context.Context, ownerID, namespace string) (Document, error) {
	key, err := NamespaceKey(namespace)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.ReadRaw(ctx, ownerID, key)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", key, err)
	}
	return decodeDocument(raw), nil
}

// WriteDocument overwrites the whole document for a namespace.
func (s *Sections) WriteDocument(ctx context.Context, ownerID, namespace string, doc Document) error {
	key, err := NamespaceKey(namespace)
	if err != nil {
		return err
	}
	raw, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	if err := s.store.WriteRaw(ctx, ownerID, key, raw); err != nil {
		return fmt.Errorf("write document %s: %w", key, err)
	}
	return nil
}

// ReadSection returns the record for one section, reporting whether it
// exists. A missing section is not an error; callers fall back to their
// default inputs.
func (s *Sections) ReadSection(ctx context.Context, ownerID, namespace, sectionID string) (SectionRecord, bool, error) {
	doc, err := s.ReadDocument(ctx, ownerID, namespace)
	if err != nil {
		return SectionRecord{}, false, err
	}
	rec, ok := doc[sectionID]
	return rec, ok, nil
}

// WriteSection stores a record under its section id, creating the document
// if the namespace has never been written.
func (s *Sections) WriteSection(ctx context.Context, ownerID, namespace, sectionID string, rec SectionRecord) error {
	doc, err := s.ReadDocument(ctx, ownerID, namespace)
	if err != nil {
		return err
	}
	doc[sectionID] = rec
	return s.WriteDocument(ctx, ownerID, namespace, doc)
}

// UpdateInputs shallow-merges partial inputs into the section's existing
// inputs. Keys absent from partial are preserved, as is any prior
// AIOutput.
func (s *Sections) UpdateInputs(ctx context.Context, ownerID, namespace, sectionID string, partial map[string]any) (SectionRecord, error) {
	doc, err := s.ReadDocument(ctx, ownerID, namespace)
	if err != nil {
		return SectionRecord{}, err
	}
	rec := doc[sectionID]
	if rec.Inputs == nil {
		rec.Inputs = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		rec.Inputs[k] = v
	}
	doc[sectionID] = rec
	if err := s.WriteDocument(ctx, ownerID, namespace, doc); err != nil {
		return SectionRecord{}, err
	}
	return rec, nil
}

// RecordResult replaces the section wholesale with the inputs snapshot the
// generation ran against and its output. Fallback outputs are stored the
// same way as real ones.
func (s *Sections) RecordResult(ctx context.Context, ownerID, namespace, sectionID string, inputs map[string]any, output any) (SectionRecord, error) {
	rec := SectionRecord{Inputs: inputs, AIOutput: output}
	if err := s.WriteSection(ctx, ownerID, namespace, sectionID, rec); err != nil {
		return SectionRecord{}, err
	}
	return rec, nil
}
