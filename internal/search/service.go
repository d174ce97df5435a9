package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSegment indexes a segment (fire-and-forget to Meilisearch).
func (s *Service) IndexSegment(rec SegmentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexSegment(rec); err != nil {
			log.Printf("search: index segment %s: %v", rec.ID, err)
		}
	}()
}

// IndexWork indexes a work (fire-and-forget to Meilisearch).
func (s *Service) IndexWork(rec WorkRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexWork(rec); err != nil {
			log.Printf("search: index work %s: %v", rec.ID, err)
		}
	}()
}

// DeleteSegment removes a segment from the search index (fire-and-forget).
func (s *Service) DeleteSegment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteSegment(id); err != nil {
			log.Printf("search: delete segment %s: %v", id, err)
		}
	}()
}

// DeleteWork removes a work from the search index (fire-and-forget).
func (s *Service) DeleteWork(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteWork(id); err != nil {
			log.Printf("search: delete work %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	segments, works, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexSegments(segments); err != nil {
		log.Printf("search: reindex segments: %v", err)
	}
	if err := s.meili.IndexWorks(works); err != nil {
		log.Printf("search: reindex works: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
