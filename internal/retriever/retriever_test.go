package retriever

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/twinforge/twindex/internal/log"
	"github.com/twinforge/twindex/internal/score"
	"github.com/twinforge/twindex/internal/vectorstore"
)

type fakeSearcher struct {
	results   []vectorstore.Result
	err       error
	lastLimit int
	callCount int
}

func (f *fakeSearcher) Search(ctx context.Context, ns vectorstore.Namespace, query string, limit int, filter map[string]string) ([]vectorstore.Result, error) {
	f.callCount++
	f.lastLimit = limit
	return f.results, f.err
}

type fakeScores struct {
	scores map[string]float64
	err    error
}

func (f *fakeScores) ScoreMap(ctx context.Context, cloneID string) (map[string]float64, error) {
	return f.scores, f.err
}

func testNS(t *testing.T) vectorstore.Namespace {
	t.Helper()
	ns, err := vectorstore.NewNamespace(
		"11111111-2222-3333-4444-555555555555",
		"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
	)
	if err != nil {
		t.Fatal(err)
	}
	return ns
}

func result(id, text, source string, similarity float64) vectorstore.Result {
	return vectorstore.Result{
		Record: vectorstore.Record{
			ID:       id,
			Text:     text,
			Metadata: map[string]string{"source": source},
		},
		Similarity: similarity,
	}
}

func TestRetriever_Retrieve_RerankWithClampedBoost(t *testing.T) {
	// Worked re-ranking case: three candidates at similarities 0.9, 0.85 and
	// 0.80 with learned scores -1, 0 and +1 end up adjusted to 0.6, 0.85 and
	// 1.0, reversing first and last place.
	searcher := &fakeSearcher{results: []vectorstore.Result{
		result("c1", "candidate one", "a.md", 0.90),
		result("c2", "candidate two", "b.md", 0.85),
		result("c3", "candidate three", "c.md", 0.80),
	}}
	scores := &fakeScores{scores: map[string]float64{
		score.Hash("candidate one"):   -1.0,
		score.Hash("candidate three"): +1.0,
	}}
	r, err := New(searcher, scores, Config{TopK: 3}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ranked, err := r.Retrieve(context.Background(), testNS(t), "query")
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"c3", "c2", "c1"}
	wantAdjusted := []float64{1.0, 0.85, 0.6}
	if len(ranked) != 3 {
		t.Fatalf("got %d results, want 3", len(ranked))
	}
	for i := range ranked {
		if ranked[i].ID != wantOrder[i] {
			t.Errorf("rank %d = %s, want %s", i, ranked[i].ID, wantOrder[i])
		}
		if math.Abs(ranked[i].Adjusted-wantAdjusted[i]) > 1e-9 {
			t.Errorf("rank %d adjusted = %v, want %v", i, ranked[i].Adjusted, wantAdjusted[i])
		}
	}
	if searcher.lastLimit != 6 {
		t.Errorf("search limit = %d, want 6 (2x overfetch with scores present)", searcher.lastLimit)
	}
}

func TestRetriever_Retrieve_NoScoresNoOverfetch(t *testing.T) {
	searcher := &fakeSearcher{results: []vectorstore.Result{
		result("c1", "one", "a.md", 0.9),
		result("c2", "two", "a.md", 0.8),
	}}
	r, err := New(searcher, &fakeScores{}, Config{TopK: 5}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ranked, err := r.Retrieve(context.Background(), testNS(t), "query")
	if err != nil {
		t.Fatal(err)
	}
	if searcher.lastLimit != 5 {
		t.Errorf("search limit = %d, want 5 (no overfetch without scores)", searcher.lastLimit)
	}
	for i, res := range ranked {
		if res.Adjusted != res.Similarity {
			t.Errorf("result %d adjusted %v != similarity %v without scores", i, res.Adjusted, res.Similarity)
		}
	}
	if ranked[0].ID != "c1" || ranked[1].ID != "c2" {
		t.Errorf("raw similarity order lost: %+v", ranked)
	}
}

func TestRetriever_Retrieve_NilScoreReader(t *testing.T) {
	searcher := &fakeSearcher{results: []vectorstore.Result{result("c1", "one", "a.md", 0.9)}}
	r, err := New(searcher, nil, Config{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ranked, err := r.Retrieve(context.Background(), testNS(t), "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d results, want 1", len(ranked))
	}
}

func TestRetriever_Retrieve_ScoreFailureDegradesToUnranked(t *testing.T) {
	searcher := &fakeSearcher{results: []vectorstore.Result{
		result("c1", "one", "a.md", 0.9),
	}}
	scores := &fakeScores{err: errors.New("scores table unavailable")}
	r, err := New(searcher, scores, Config{TopK: 3}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ranked, err := r.Retrieve(context.Background(), testNS(t), "query")
	if err != nil {
		t.Fatalf("query failed on score-read failure: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Adjusted != 0.9 {
		t.Errorf("ranked = %+v, want unranked passthrough", ranked)
	}
	if searcher.lastLimit != 3 {
		t.Errorf("search limit = %d, want plain top k after score failure", searcher.lastLimit)
	}
}

func TestRetriever_Retrieve_MinSimilarityFilter(t *testing.T) {
	searcher := &fakeSearcher{results: []vectorstore.Result{
		result("c1", "relevant", "a.md", 0.9),
		result("c2", "borderline", "a.md", 0.5),
		result("c3", "irrelevant", "a.md", 0.2),
	}}
	r, err := New(searcher, nil, Config{TopK: 5, MinSimilarity: 0.5}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ranked, err := r.Retrieve(context.Background(), testNS(t), "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2 above threshold", len(ranked))
	}
	for _, res := range ranked {
		if res.Similarity < 0.5 {
			t.Errorf("result %s below threshold: %v", res.ID, res.Similarity)
		}
	}
}

func TestRetriever_Retrieve_SearchError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index down")}
	r, err := New(searcher, nil, Config{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Retrieve(context.Background(), testNS(t), "query"); err == nil {
		t.Fatal("expected error when search fails")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, Config{}, log.NewNop()); err == nil {
		t.Error("expected error for nil searcher")
	}
	if _, err := New(&fakeSearcher{}, nil, Config{TopK: -1}, log.NewNop()); err == nil {
		t.Error("expected error for negative top k")
	}
	if _, err := New(&fakeSearcher{}, nil, Config{MinSimilarity: 1.5}, log.NewNop()); err == nil {
		t.Error("expected error for out-of-range min similarity")
	}
}

func TestFormatContext(t *testing.T) {
	ranked := []Ranked{
		{Text: "first chunk", Source: "guide.md"},
		{Text: "second chunk", Source: "notes.md"},
		{Text: "orphan chunk"},
	}
	got := FormatContext(ranked)

	want := "[source: guide.md]\nfirst chunk\n\n[source: notes.md]\nsecond chunk\n\n[source: unknown]\norphan chunk"
	if got != want {
		t.Errorf("FormatContext() = %q, want %q", got, want)
	}

	if FormatContext(nil) != "" {
		t.Error("empty input must format to empty string")
	}

	// Rank order must be preserved verbatim.
	if !strings.HasPrefix(got, "[source: guide.md]") {
		t.Error("top-ranked chunk not first")
	}
}
