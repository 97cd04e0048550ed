package score

import (
	"context"
	"errors"
	"math"
	"testing"
)

const testClone = "clone-1"

func TestHash(t *testing.T) {
	first := Hash("some chunk text")
	second := Hash("some chunk text")
	if first != second {
		t.Error("hash is not deterministic")
	}
	if len(first) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(first))
	}
	if Hash("different text") == first {
		t.Error("different content produced the same hash")
	}
}

func TestBoost_Clamp(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{score: 0, want: 0},
		{score: 1, want: MaxBoost},
		{score: -1, want: -MaxBoost},
		{score: 0.5, want: 0.15},
		{score: -0.5, want: -0.15},
		{score: 10, want: MaxBoost},
		{score: -10, want: -MaxBoost},
		{score: math.MaxFloat64, want: MaxBoost},
	}
	for _, tt := range tests {
		got := Boost(tt.score)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Boost(%v) = %v, want %v", tt.score, got, tt.want)
		}
		if got > MaxBoost || got < -MaxBoost {
			t.Errorf("Boost(%v) = %v escapes [-%v, %v]", tt.score, got, MaxBoost, MaxBoost)
		}
	}
}

func TestMemory_Update_FirstEvent(t *testing.T) {
	store := NewMemory()
	h := Hash("chunk")

	updated, err := store.Update(context.Background(), testClone, []string{h}, 1, DefaultWeight)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}

	scores, err := store.ScoreMap(context.Background(), testClone)
	if err != nil {
		t.Fatal(err)
	}
	if got := scores[h]; math.Abs(got-LearningRate) > 1e-12 {
		t.Errorf("initial score = %v, want %v", got, LearningRate)
	}
	if store.HitCount(testClone, h) != 1 {
		t.Errorf("hit count = %d, want 1", store.HitCount(testClone, h))
	}
}

func TestMemory_Update_EMAConvergesToOne(t *testing.T) {
	store := NewMemory()
	h := Hash("chunk")
	ctx := context.Background()

	prev := 0.0
	for i := 0; i < 200; i++ {
		if _, err := store.Update(ctx, testClone, []string{h}, 1, DefaultWeight); err != nil {
			t.Fatal(err)
		}
		scores, err := store.ScoreMap(ctx, testClone)
		if err != nil {
			t.Fatal(err)
		}
		cur := scores[h]
		if cur < prev {
			t.Fatalf("score decreased from %v to %v under constant +1 feedback", prev, cur)
		}
		if cur > 1 {
			t.Fatalf("score %v exceeded 1", cur)
		}
		prev = cur
	}
	// Limit is LearningRate / (1 - Decay) = 1.
	if math.Abs(prev-1) > 1e-6 {
		t.Errorf("converged score = %v, want ~1.0", prev)
	}
}

func TestMemory_Update_EMAConvergesToMinusOne(t *testing.T) {
	store := NewMemory()
	h := Hash("chunk")
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		if _, err := store.Update(ctx, testClone, []string{h}, -1, DefaultWeight); err != nil {
			t.Fatal(err)
		}
	}
	scores, err := store.ScoreMap(ctx, testClone)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(scores[h]+1) > 1e-6 {
		t.Errorf("converged score = %v, want ~-1.0", scores[h])
	}
}

func TestMemory_Update_InterleavedFeedbackStaysBounded(t *testing.T) {
	store := NewMemory()
	h := Hash("chunk")
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		rating := 1
		if i%3 == 0 {
			rating = -1
		}
		if _, err := store.Update(ctx, testClone, []string{h}, rating, DefaultWeight); err != nil {
			t.Fatal(err)
		}
		scores, err := store.ScoreMap(ctx, testClone)
		if err != nil {
			t.Fatal(err)
		}
		if s := scores[h]; s > 1 || s < -1 {
			t.Fatalf("score %v escaped [-1, 1] at event %d", s, i)
		}
	}
}

func TestMemory_Update_Validation(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	h := Hash("chunk")

	if _, err := store.Update(ctx, testClone, []string{h}, 0, DefaultWeight); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("rating 0: error = %v, want ErrInvalidRating", err)
	}
	if _, err := store.Update(ctx, testClone, []string{h}, 2, DefaultWeight); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("rating 2: error = %v, want ErrInvalidRating", err)
	}
	if _, err := store.Update(ctx, testClone, []string{h}, 1, 0); !errors.Is(err, ErrInvalidWeight) {
		t.Errorf("weight 0: error = %v, want ErrInvalidWeight", err)
	}
	if _, err := store.Update(ctx, testClone, []string{h}, 1, -1); !errors.Is(err, ErrInvalidWeight) {
		t.Errorf("weight -1: error = %v, want ErrInvalidWeight", err)
	}

	// Rejected events must not create rows.
	scores, err := store.ScoreMap(ctx, testClone)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 0 {
		t.Errorf("score map has %d entries after rejected updates", len(scores))
	}
}

func TestMemory_Update_WeightScalesContribution(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	h := Hash("chunk")

	if _, err := store.Update(ctx, testClone, []string{h}, 1, 2.0); err != nil {
		t.Fatal(err)
	}
	scores, err := store.ScoreMap(ctx, testClone)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := scores[h], 2*LearningRate; math.Abs(got-want) > 1e-12 {
		t.Errorf("weighted initial score = %v, want %v", got, want)
	}
}

func TestMemory_ScoreMap_ColdStart(t *testing.T) {
	store := NewMemory()
	scores, err := store.ScoreMap(context.Background(), "unknown-clone")
	if err != nil {
		t.Fatalf("cold start returned error: %v", err)
	}
	if scores == nil || len(scores) != 0 {
		t.Errorf("cold start map = %v, want empty non-nil map", scores)
	}
}

func TestMemory_ClonesAreIsolated(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	h := Hash("chunk")

	if _, err := store.Update(ctx, "clone-a", []string{h}, 1, DefaultWeight); err != nil {
		t.Fatal(err)
	}

	scores, err := store.ScoreMap(ctx, "clone-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 0 {
		t.Error("clone-b sees clone-a's scores")
	}

	if err := store.DeleteClone(ctx, "clone-a"); err != nil {
		t.Fatal(err)
	}
	scores, err = store.ScoreMap(ctx, "clone-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 0 {
		t.Error("scores survive clone teardown")
	}
}
