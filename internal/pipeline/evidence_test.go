package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/tenderops/bid-reviewer/internal/review"
	"github.com/tenderops/bid-reviewer/internal/segment"
)

// mapStore serves segments from a fixed map and counts batched calls.
type mapStore struct {
	segments map[string]segment.Segment
	calls    int
}

func (m *mapStore) GetBatch(_ context.Context, ids []string) (map[string]segment.Segment, error) {
	m.calls++
	out := make(map[string]segment.Segment, len(ids))
	for _, id := range ids {
		if seg, ok := m.segments[id]; ok {
			out[id] = seg
		}
	}
	return out, nil
}

func testCache(t *testing.T, store segment.Store, ids ...string) *segment.Cache {
	t.Helper()
	cache, err := segment.Prefetch(context.Background(), store, ids)
	if err != nil {
		t.Fatalf("prefetch failed: %v", err)
	}
	return cache
}

func evidenceRun(t *testing.T, cfg Config, cache *segment.Cache, req *review.Requirement, resp *review.Response) *review.ReviewItem {
	t.Helper()

	resp.Dimension = req.Dimension
	run := &Run{
		ID:           "run-evidence",
		Requirements: []*review.Requirement{req},
		Responses:    []*review.Response{resp},
		Cache:        cache,
	}
	mapCandidates(run)

	if _, err := newEvidenceAggregator(cfg.resolve()).Apply(context.Background(), run); err != nil {
		t.Fatalf("evidence aggregator failed: %v", err)
	}
	return run.Items[0]
}

func TestEvidencePrimaryAndFallback(t *testing.T) {
	store := &mapStore{segments: map[string]segment.Segment{
		"seg-1": {ID: "seg-1", AssetID: "tender.pdf", PageStart: 3, PageEnd: 4, HeadingPath: "2 > 2.1", Content: "warranty   shall be\n36 months"},
		"seg-2": {ID: "seg-2", AssetID: "bid.pdf", PageStart: 10, PageEnd: 10, Content: "we offer 48 months"},
	}}
	cache := testCache(t, store, "seg-1", "seg-2", "seg-gone")

	item := evidenceRun(t, Config{}, cache,
		&review.Requirement{ID: "req-1", Dimension: review.DimensionTechnical, EvalMethod: review.EvalPresence, EvidenceChunkIDs: []string{"seg-1"}},
		&review.Response{ID: "resp-1", EvidenceChunkIDs: []string{"seg-2", "seg-gone"}},
	)

	if len(item.Evidence) != 3 {
		t.Fatalf("expected 3 evidence entries, got %d", len(item.Evidence))
	}

	// Tender-side first, then bid-side, in reference order.
	tender := item.Evidence[0]
	if tender.Role != review.RoleTender || tender.Source != review.SourcePrimary {
		t.Fatalf("unexpected tender entry %+v", tender)
	}
	if tender.Quote != "warranty shall be 36 months" {
		t.Errorf("expected whitespace-normalized quote, got %q", tender.Quote)
	}
	if tender.AssetID != "tender.pdf" || tender.PageStart != 3 {
		t.Errorf("expected segment metadata carried over, got %+v", tender)
	}

	bid := item.Evidence[1]
	if bid.Role != review.RoleBid || bid.SegmentID != "seg-2" {
		t.Fatalf("unexpected bid entry %+v", bid)
	}

	// Unresolvable references become fallback entries, never dropped.
	fallback := item.Evidence[2]
	if fallback.Source != review.SourceFallback || fallback.SegmentID != "seg-gone" {
		t.Fatalf("expected fallback entry for seg-gone, got %+v", fallback)
	}
	if fallback.Quote != "" {
		t.Errorf("fallback entries carry no quote, got %q", fallback.Quote)
	}
}

func TestEvidenceCapAndDedup(t *testing.T) {
	store := &mapStore{segments: map[string]segment.Segment{}}
	cache := testCache(t, store)

	item := evidenceRun(t, Config{MaxEvidencePerItem: 2}, cache,
		&review.Requirement{
			ID: "req-1", Dimension: review.DimensionTechnical, EvalMethod: review.EvalPresence,
			EvidenceChunkIDs: []string{"seg-1", "seg-1", "seg-2", "seg-3"},
		},
		&review.Response{ID: "resp-1", EvidenceChunkIDs: []string{"seg-2"}},
	)

	if len(item.Evidence) != 2 {
		t.Fatalf("expected evidence capped at 2, got %d", len(item.Evidence))
	}
	if item.Evidence[0].SegmentID != "seg-1" || item.Evidence[1].SegmentID != "seg-2" {
		t.Fatalf("expected deduped ids in order, got %+v", item.Evidence)
	}
}

func TestEvidenceQuoteTruncation(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 100)
	store := &mapStore{segments: map[string]segment.Segment{
		"seg-1": {ID: "seg-1", Content: long},
	}}
	cache := testCache(t, store, "seg-1")

	item := evidenceRun(t, Config{QuoteMaxChars: 50}, cache,
		&review.Requirement{ID: "req-1", Dimension: review.DimensionTechnical, EvalMethod: review.EvalPresence, EvidenceChunkIDs: []string{"seg-1"}},
		&review.Response{ID: "resp-1"},
	)

	quote := item.Evidence[0].Quote
	if !strings.HasSuffix(quote, "...") {
		t.Fatalf("expected truncation marker, got %q", quote)
	}
	if got := len([]rune(strings.TrimSuffix(quote, "..."))); got != 50 {
		t.Errorf("expected 50 runes before the marker, got %d", got)
	}
}

func TestEvidenceConsistencyItemsUntouched(t *testing.T) {
	run := &Run{
		ID: "run-evidence",
		Requirements: []*review.Requirement{
			{ID: "req-1", Dimension: review.DimensionPrice, EvalMethod: review.EvalNumeric},
		},
		Responses: []*review.Response{{ID: "resp-1", Dimension: review.DimensionPrice}},
		Cache:     testCache(t, &mapStore{}),
	}
	mapCandidates(run)

	derived := []review.Evidence{{Role: review.RoleBid, Source: review.SourceDerived, Meta: map[string]string{"field": "total_price"}}}
	run.Items = append(run.Items, &review.ReviewItem{
		ID: "run-evidence/sys-consistency-total_price", ReviewRunID: "run-evidence",
		Dimension: review.DimensionConsistency, RequirementID: "sys-consistency-total_price",
		Status: review.StatusFail, Evidence: derived,
	})

	if _, err := newEvidenceAggregator(Config{}.resolve()).Apply(context.Background(), run); err != nil {
		t.Fatalf("evidence aggregator failed: %v", err)
	}

	synthetic := run.Items[len(run.Items)-1]
	if len(synthetic.Evidence) != 1 || synthetic.Evidence[0].Source != review.SourceDerived {
		t.Fatalf("synthetic evidence was rewritten: %+v", synthetic.Evidence)
	}
}
