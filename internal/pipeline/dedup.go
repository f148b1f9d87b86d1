package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/fingerprint"
)

// dedupPass records advisory near-duplicate relationships between the item
// and recently added media whose perceptual hashes fall within the Hamming
// threshold. Nothing is ever deleted or merged automatically.
func (p *Pipeline) dedupPass(ctx context.Context, item *database.MediaItem) error {
	if item.PHashBits == 0 {
		return nil
	}

	since := time.Now().AddDate(0, 0, -p.cfg.Dedup.WindowDays)
	recent, err := p.store.Media.ListRecent(ctx, item.Scope, since)
	if err != nil {
		return fmt.Errorf("list recent media: %w", err)
	}

	for _, other := range recent {
		if other.ID == item.ID || other.PHashBits == 0 {
			continue
		}
		distance := fingerprint.HammingDistance(item.PHashBits, other.PHashBits)
		if distance > p.cfg.Dedup.HammingThreshold {
			continue
		}
		err := p.store.Media.AddNearDuplicate(ctx, database.NearDuplicate{
			MediaID:  item.ID,
			OtherID:  other.ID,
			Distance: distance,
		})
		if err != nil {
			return fmt.Errorf("record near duplicate: %w", err)
		}
	}
	return nil
}
