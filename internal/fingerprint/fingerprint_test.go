package fingerprint

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"testing"
)

func createTestImage(width, height int, fill color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			v := uint8((x * 255) / width)
			img.Set(x, y, color.RGBA{v, uint8(255 - int(v)), uint8((y * 255) / height), 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HammingDistance(tc.a, tc.b); got != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestSimilar(t *testing.T) {
	if !Similar(0x0, 0x1FF, 10) {
		t.Error("9 differing bits should be similar with threshold 10")
	}
	if Similar(0x0, 0x7FF, 10) {
		t.Error("11 differing bits should not be similar with threshold 10")
	}
}

func TestCompute_IdenticalBytesSameContentHash(t *testing.T) {
	data := encodeJPEG(t, createGradientImage(100, 80), 90)

	r1, err := Compute(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	r2, err := Compute(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if r1.ContentHash != r2.ContentHash {
		t.Errorf("content hash should be deterministic: %s vs %s", r1.ContentHash, r2.ContentHash)
	}
	if len(r1.ContentHash) != 64 {
		t.Errorf("content hash should be 64 hex characters, got %d", len(r1.ContentHash))
	}
	if r1.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), r1.Size)
	}
	if len(r1.PHash) != 16 || len(r1.DHash) != 16 {
		t.Errorf("perceptual hashes should be 16 hex characters, got %q / %q", r1.PHash, r1.DHash)
	}
}

func TestCompute_ReencodedImageStaysNearDuplicate(t *testing.T) {
	img := createGradientImage(320, 240)

	original, err := Compute(bytes.NewReader(encodeJPEG(t, img, 95)))
	if err != nil {
		t.Fatalf("Compute original failed: %v", err)
	}

	for _, quality := range []int{75, 40, 25} {
		reencoded, err := Compute(bytes.NewReader(encodeJPEG(t, img, quality)))
		if err != nil {
			t.Fatalf("Compute at quality %d failed: %v", quality, err)
		}

		if original.ContentHash == reencoded.ContentHash {
			t.Errorf("quality %d re-encode should change the content hash", quality)
		}

		dist := HammingDistance(original.PHashBits, reencoded.PHashBits)
		if dist >= 10 {
			t.Errorf("quality %d re-encode pHash distance %d, want < 10", quality, dist)
		}
	}
}

func TestCompute_DifferentImagesDiverge(t *testing.T) {
	white, err := Compute(bytes.NewReader(encodeJPEG(t, createTestImage(100, 100, color.White), 90)))
	if err != nil {
		t.Fatalf("Compute white failed: %v", err)
	}
	gradient, err := Compute(bytes.NewReader(encodeJPEG(t, createGradientImage(100, 100), 90)))
	if err != nil {
		t.Fatalf("Compute gradient failed: %v", err)
	}

	if white.ContentHash == gradient.ContentHash {
		t.Error("different images must have different content hashes")
	}
	if white.DHashBits == gradient.DHashBits {
		t.Error("different images should have different dHashes")
	}
}

func TestCompute_CorruptInput(t *testing.T) {
	junk := make([]byte, 4096)
	rand.New(rand.NewSource(42)).Read(junk)

	res, err := Compute(bytes.NewReader(junk))
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if res == nil {
		t.Fatal("corrupt input should still return a result with the content hash")
	}
	if res.ContentHash == "" {
		t.Error("content hash should be computed even for undecodable bytes")
	}
	if res.PHash != "" {
		t.Error("perceptual hash should be empty for undecodable bytes")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if sim := CosineSimilarity(a, b); sim < 0.999 {
		t.Errorf("identical vectors should have similarity 1, got %f", sim)
	}
	if sim := CosineSimilarity(a, c); sim > 0.001 {
		t.Errorf("orthogonal vectors should have similarity 0, got %f", sim)
	}
	if sim := CosineSimilarity(a, []float32{1, 2}); sim != 0 {
		t.Errorf("mismatched lengths should score 0, got %f", sim)
	}
}
