// Package fingerprint computes content fingerprints for media files: a
// cryptographic digest for exact-duplicate and change detection, and 64-bit
// perceptual hashes for near-duplicate detection.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrCorrupt indicates the input bytes could not be decoded as an image.
// The content hash may still be valid when the stream itself was readable.
var ErrCorrupt = errors.New("corrupt media input")

// Result contains the computed fingerprints for a file.
type Result struct {
	ContentHash string `json:"content_hash"` // SHA-256 of the raw bytes as hex
	PHash       string `json:"phash"`        // 64-bit perceptual hash as hex string
	DHash       string `json:"dhash"`        // 64-bit difference hash as hex string
	PHashBits   uint64 `json:"-"`            // Raw pHash for comparison
	DHashBits   uint64 `json:"-"`            // Raw dHash for comparison
	Size        int64  `json:"size"`
}

// Compute reads the stream once and returns the content hash plus perceptual
// hashes. For media that is not a decodable image (videos, corrupt files) the
// returned error wraps ErrCorrupt and the Result still carries the content
// hash so change detection keeps working.
func Compute(r io.Reader) (*Result, error) {
	var buf bytes.Buffer
	hasher := sha256.New()

	n, err := io.Copy(io.MultiWriter(hasher, &buf), r)
	if err != nil {
		return nil, fmt.Errorf("reading media stream: %w", err)
	}

	res := &Result{
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		Size:        n,
	}

	img, _, err := image.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	res.PHashBits = perceptualHash(img)
	res.DHashBits = differenceHash(img)
	res.PHash = fmt.Sprintf("%016x", res.PHashBits)
	res.DHash = fmt.Sprintf("%016x", res.DHashBits)
	return res, nil
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(a, b uint64) int {
	xor := a ^ b
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// Similar returns true if two hashes are within the given bit distance.
func Similar(a, b uint64, threshold int) bool {
	return HammingDistance(a, b) <= threshold
}

// CosineSimilarity computes the cosine similarity between two embedding
// vectors. Returns a value between -1 and 1, where 1 means identical.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// perceptualHash computes a 64-bit DCT-based perceptual hash.
func perceptualHash(img image.Image) uint64 {
	resized := scale(img, 32, 32)
	gray := grayscale(resized)
	dct := dct2d(gray)

	// Threshold the top-left 8x8 DCT block (low frequencies) against its
	// mean. The DC component at (0,0) is left out of the mean because it
	// would dominate the sum and push every other bit to zero.
	var sum float64
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue
			}
			sum += dct[u][v]
		}
	}
	mean := sum / 63

	var hash uint64
	bit := 63
	for u := range 8 {
		for v := range 8 {
			if dct[u][v] > mean {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// differenceHash computes a 64-bit hash from horizontal gradient signs.
func differenceHash(img image.Image) uint64 {
	// 9 columns give 8 horizontal differences per row.
	resized := scale(img, 9, 8)
	gray := grayscale(resized)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

func scale(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// grayscale converts an image to a 2D array of luma values (0-255).
func grayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

// dct2d computes the 2D DCT-II of a square grayscale grid.
func dct2d(gray [][]float64) [][]float64 {
	size := len(gray)
	out := make([][]float64, size)
	for i := range out {
		out[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			out[u][v] = sum
		}
	}
	return out
}
