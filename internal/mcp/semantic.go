package mcp

import (
	"context"

	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/search"
	"github.com/ashita-ai/akashi/internal/storage"
)

// indexFact embeds and upserts a fact into the vector index, if one is
// configured. Best-effort: failures are logged, never surfaced to the
// caller, since the fact is already durably stored in SQLite by the time
// this runs.
func (s *Server) indexFact(ctx context.Context, f model.Fact) {
	if s.embedder == nil || s.searcher == nil {
		return
	}
	vec, err := s.embedder.Embed(ctx, f.Subject+": "+f.Content)
	if err != nil {
		s.logDebug("mcp: skip fact indexing", "fact_id", f.FactID, "error", err)
		return
	}
	err = s.searcher.Upsert(ctx, []search.Point{{
		ID:        f.FactID,
		UserID:    f.UserID,
		Kind:      search.ItemKindFact,
		CreatedAt: f.CreatedAt,
		Embedding: vec.Slice(),
	}})
	if err != nil {
		s.logWarn("mcp: fact upsert to search index failed", "fact_id", f.FactID, "error", err)
	}
}

// indexLesson embeds and upserts a lesson into the vector index, also
// returning the encoded vector so the caller can persist it alongside
// the lesson row for SQLite-local retrieval.
func (s *Server) indexLesson(ctx context.Context, l model.Lesson) []byte {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, l.Title+": "+l.Body)
	if err != nil {
		s.logDebug("mcp: skip lesson embedding", "lesson_id", l.LessonID, "error", err)
		return nil
	}
	encoded := storage.EncodeVector(vec)

	if s.searcher != nil {
		err = s.searcher.Upsert(ctx, []search.Point{{
			ID:        l.LessonID,
			UserID:    l.UserID,
			Kind:      search.ItemKindLesson,
			CreatedAt: l.CreatedAt,
			Embedding: vec.Slice(),
		}})
		if err != nil {
			s.logWarn("mcp: lesson upsert to search index failed", "lesson_id", l.LessonID, "error", err)
		}
	}
	return encoded
}

// semanticRecall ranks facts and lessons by vector similarity to
// subject, scoped to candidates already loaded by the caller (so it
// never issues a second Store round-trip). Returns ok=false when no
// embedder/searcher is configured or the embed/search call itself
// fails, letting the caller fall back to substring matching.
func (s *Server) semanticRecall(ctx context.Context, subject string, facts []model.Fact, lessons []model.Lesson, limit int) (rankedFacts []model.Fact, rankedLessons []model.Lesson, ok bool) {
	if s.embedder == nil || s.searcher == nil || subject == "" {
		return nil, nil, false
	}

	vec, err := s.embedder.Embed(ctx, subject)
	if err != nil {
		s.logDebug("mcp: semantic recall embed failed, falling back to substring match", "error", err)
		return nil, nil, false
	}

	results, err := s.searcher.Search(ctx, s.userID, vec.Slice(), limit*2)
	if err != nil {
		s.logDebug("mcp: semantic recall search failed, falling back to substring match", "error", err)
		return nil, nil, false
	}

	factsByID := make(map[string]model.Fact, len(facts))
	for _, f := range facts {
		factsByID[f.FactID] = f
	}
	lessonsByID := make(map[string]model.Lesson, len(lessons))
	for _, l := range lessons {
		lessonsByID[l.LessonID] = l
	}

	for _, r := range results {
		switch r.Kind {
		case search.ItemKindFact:
			if f, found := factsByID[r.ItemID]; found {
				rankedFacts = append(rankedFacts, f)
			}
		case search.ItemKindLesson:
			if l, found := lessonsByID[r.ItemID]; found {
				rankedLessons = append(rankedLessons, l)
			}
		}
	}
	if len(rankedFacts) > limit {
		rankedFacts = rankedFacts[:limit]
	}
	if len(rankedLessons) > limit {
		rankedLessons = rankedLessons[:limit]
	}
	return rankedFacts, rankedLessons, true
}

func (s *Server) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
