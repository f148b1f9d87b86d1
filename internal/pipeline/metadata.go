package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strconv"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// filenameDatePatterns match the timestamp conventions cameras and phones
// bake into filenames, e.g. IMG_20240615_120301.jpg or 2024-06-15 13.05.12.
var filenameDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(20\d{2})[-_.]?(\d{2})[-_.]?(\d{2})[-_ T]?(\d{2})[-_.:]?(\d{2})[-_.:]?(\d{2})`),
	regexp.MustCompile(`(20\d{2})[-_.]?(\d{2})[-_.]?(\d{2})`),
}

// takenAtFromFilename recovers a capture date from the filename when it
// carries one. Returns nil when no plausible date is found.
func takenAtFromFilename(name string) *time.Time {
	for _, pattern := range filenameDatePatterns {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		var hour, minute, sec int
		if len(m) == 7 {
			hour, _ = strconv.Atoi(m[4])
			minute, _ = strconv.Atoi(m[5])
			sec, _ = strconv.Atoi(m[6])
			if hour > 23 || minute > 59 || sec > 59 {
				hour, minute, sec = 0, 0, 0
			}
		}
		t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
		if t.After(time.Now().Add(24 * time.Hour)) {
			continue
		}
		return &t
	}
	return nil
}

// metadataStage fills in dimensions, mime type and the capture timestamp.
// Without a usable date in the filename the file modification time stands in.
func (p *Pipeline) metadataStage(ctx context.Context, item *database.MediaItem, data []byte) error {
	if item.Kind == database.KindPhoto {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode image config: %w", err)
		}
		item.Width = cfg.Width
		item.Height = cfg.Height
		item.MimeType = "image/" + format
	}

	if item.TakenAt == nil {
		if t := takenAtFromFilename(item.Filename); t != nil {
			item.TakenAt = t
		} else {
			mod := item.ModTime
			item.TakenAt = &mod
		}
	}

	if err := p.store.Media.Update(ctx, item); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}
