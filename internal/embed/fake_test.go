package embed

import (
	"context"
	"testing"
)

func TestFake_Deterministic(t *testing.T) {
	f := NewFake(8)
	ctx := context.Background()

	a, err := f.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors for identical text, got %v vs %v", a, b)
		}
	}
}

func TestFake_DistinctTextsDiffer(t *testing.T) {
	f := NewFake(8)
	ctx := context.Background()

	a, _ := f.Embed(ctx, "hello")
	b, _ := f.Embed(ctx, "goodbye")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected distinct texts to produce distinct vectors")
	}
}

func TestFake_EmbedBatchOrderMatchesInput(t *testing.T) {
	f := NewFake(4)
	ctx := context.Background()

	texts := []string{"a", "b", "c"}
	batch, err := f.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	for i, text := range texts {
		single, _ := f.Embed(ctx, text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Errorf("batch[%d] does not match single Embed for %q", i, text)
			}
		}
	}
}

func TestFake_EmptyInput(t *testing.T) {
	f := NewFake(4)
	if _, err := f.Embed(context.Background(), ""); err != ErrEmptyInput {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}
