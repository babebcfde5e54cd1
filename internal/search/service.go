package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// PG FTS. Either backend may be nil.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// EntryID builds the Meilisearch document ID for a section entry.
// Meilisearch only accepts alphanumerics, hyphens, and underscores.
func EntryID(ownerID, namespace, sectionID string) string {
	return ownerID + "-" + namespace + "-" + sectionID
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
// Search failures surface as an empty result set, never an error.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSection records a section's text for search. The Postgres row is
// written inline; Meilisearch is fire-and-forget. Indexing is
// best-effort and never fails the save that triggered it.
func (s *Service) IndexSection(ctx context.Context, entry SectionEntry) {
	entry.ID = EntryID(entry.OwnerID, entry.Namespace, entry.SectionID)

	if s.pgfts != nil {
		if err := s.pgfts.UpsertEntry(ctx, entry); err != nil {
			log.Printf("search: upsert entry %s: %v", entry.ID, err)
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexSection(entry); err != nil {
			log.Printf("search: index section %s: %v", entry.ID, err)
		}
	}()
}

// ReindexAllFromPG pushes every Postgres search row into Meilisearch.
// Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	entries, err := s.pgfts.LoadAllEntries(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	if err := s.meili.IndexSections(entries); err != nil {
		log.Printf("search: reindex sections: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
