package mock

import (
	"context"
	"testing"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

func TestFaceStoreReplaceForMedia(t *testing.T) {
	ctx := context.Background()
	store := NewFaceStore()

	faces := []*database.Face{
		{Scope: "lib", BBox: []float64{0, 0, 10, 10}, DetScore: 0.9, Embedding: []float32{1, 0}},
		{Scope: "lib", BBox: []float64{20, 20, 30, 30}, DetScore: 0.8, Embedding: []float32{0, 1}},
	}
	if err := store.ReplaceForMedia(ctx, "media-1", faces); err != nil {
		t.Fatalf("Failed to replace faces: %v", err)
	}

	stored, err := store.ListByMedia(ctx, "media-1")
	if err != nil {
		t.Fatalf("Failed to list faces: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(stored))
	}
	for _, f := range stored {
		if f.ID == "" {
			t.Error("Stored face should get an ID assigned")
		}
		if f.MediaID != "media-1" {
			t.Errorf("Stored face should carry the media ID, got %q", f.MediaID)
		}
		if f.CreatedAt.IsZero() {
			t.Error("Stored face should get a creation timestamp")
		}
	}

	// A second replace drops the old rows for the same media.
	replacement := []*database.Face{
		{Scope: "lib", BBox: []float64{5, 5, 15, 15}, DetScore: 0.7, Embedding: []float32{1, 1}},
	}
	if err := store.ReplaceForMedia(ctx, "media-1", replacement); err != nil {
		t.Fatalf("Failed to replace faces again: %v", err)
	}
	stored, err = store.ListByMedia(ctx, "media-1")
	if err != nil {
		t.Fatalf("Failed to list faces after replace: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("Expected 1 face after replace, got %d", len(stored))
	}
	if stored[0].MediaID != "media-1" {
		t.Errorf("Replacement face should carry the media ID, got %q", stored[0].MediaID)
	}
}
