package draft

import "context"

// SectionRef names one section for aggregation. Label is the key the
// section appears under in the composite; it defaults to
// "namespace.sectionId".
type SectionRef struct {
	Namespace string `json:"namespace"`
	SectionID string `json:"sectionId"`
	Label     string `json:"label,omitempty"`
}

// BuildContext assembles a read-only composite from several sections, used
// as the context argument to a higher-order generation call (final review,
// pitch deck, execution map). Absent sections are omitted rather than
// failing: a review screen renders with whatever steps the user has
// completed. The composite is never persisted as such; a caller that wants
// to keep an aggregate result writes it back under its own section id.
func (s *Sections) BuildContext(ctx context.Context, ownerID string, refs []SectionRef) (map[string]any, error) {
	composite := make(map[string]any, len(refs))
	for _, ref := range refs {
		rec, ok, err := s.ReadSection(ctx, ownerID, ref.Namespace, ref.SectionID)
		if err == ErrUnknownNamespace {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		label := ref.Label
		if label == "" {
			label = ref.Namespace + "." + ref.SectionID
		}
		composite[label] = rec
	}
	return composite, nil
}
