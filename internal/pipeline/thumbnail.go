package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// thumbnailStage renders every configured size and hands the bytes to the
// sink. Sizes already rendered are overwritten, keeping the stage idempotent.
func (p *Pipeline) thumbnailStage(ctx context.Context, item *database.MediaItem, data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	for name, maxSize := range p.cfg.Thumbnails.Sizes {
		thumb, err := p.renderThumbnail(img, maxSize)
		if err != nil {
			return fmt.Errorf("render %s thumbnail: %w", name, err)
		}
		if _, err := p.deps.Thumbs.Store(ctx, item.ID, name, thumb); err != nil {
			return fmt.Errorf("store %s thumbnail: %w", name, err)
		}
	}
	return nil
}

func (p *Pipeline) renderThumbnail(img image.Image, maxSize int) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	out := img
	if width > maxSize || height > maxSize {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = int(float64(height) * float64(maxSize) / float64(width))
		} else {
			newHeight = maxSize
			newWidth = int(float64(width) * float64(maxSize) / float64(height))
		}
		if newWidth < 1 {
			newWidth = 1
		}
		if newHeight < 1 {
			newHeight = 1
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: p.cfg.Thumbnails.Quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
