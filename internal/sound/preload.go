/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sound

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Seednode/earwax/internal/catalog"
)

const (
	preloadBatch = 3
	preloadPause = 100 * time.Millisecond
)

// Progress is called after each preload batch with the number of clips
// handled so far and the total.
type Progress func(done, total int)

// Preloader warms the media cache ahead of play, a few clips at a time.
type Preloader struct {
	player *Player
	batch  int
	pause  time.Duration
}

func NewPreloader(p *Player) *Preloader {
	return &Preloader{
		player: p,
		batch:  preloadBatch,
		pause:  preloadPause,
	}
}

// Warm fetches every uncached clip in sounds. Failures are skipped; only
// cancellation of ctx is reported.
func (w *Preloader) Warm(ctx context.Context, sounds []catalog.Sound, progress Progress) error {
	ids := make([]catalog.ID, 0, len(sounds))
	for _, s := range sounds {
		if !s.IsSpeech() {
			ids = append(ids, s.ID)
		}
	}

	total := len(ids)
	var done atomic.Int64

	for start := 0; start < total; start += w.batch {
		end := min(start+w.batch, total)

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ids[start:end] {
			g.Go(func() error {
				defer done.Add(1)

				if w.player.cached(gctx, id) {
					return nil
				}
				w.player.fetch(gctx, id)

				return nil
			})
		}
		_ = g.Wait()

		if progress != nil {
			progress(int(done.Load()), total)
		}

		if end == total {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pause):
		}
	}

	return ctx.Err()
}
