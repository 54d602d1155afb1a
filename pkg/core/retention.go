package core

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/muika-lab/memekeeper/pkg/storage"
)

// RetentionController governs probabilistic admission and emission, and
// enforces the capacity policy against the store.
//
// The save and send gates are pure probability draws against a shared random
// source; the source is injected so seeded runs reproduce their draw
// sequence. Admission evicts first when the store is full, and the whole
// evict+insert path runs under one mutex so concurrent admissions never push
// the count above the capacity bound, even transiently.
type RetentionController struct {
	config *Config
	store  storage.Store
	logger *slog.Logger

	// rng is the shared random source for the probability gates.
	// rand.Rand is not safe for concurrent use; randMu guards it.
	rng    *rand.Rand
	randMu sync.Mutex

	// mu serializes the mutating store path (evict + insert, delete).
	mu sync.Mutex
}

// NewRetentionController creates a retention controller over the given store.
//
// The random source drives the ShouldSave/ShouldSend draws; tests pass a
// seeded source for reproducibility. If logger is nil, the default slog
// logger is used.
func NewRetentionController(cfg *Config, store storage.Store, source rand.Source, logger *slog.Logger) *RetentionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionController{
		config: cfg,
		store:  store,
		logger: logger,
		rng:    rand.New(source),
	}
}

// ShouldSave reports whether a newly-seen image should be considered for
// admission. True with probability SaveProbability; one uniform draw per
// call, no side effect.
func (r *RetentionController) ShouldSave() bool {
	return r.draw() < r.config.SaveProbability
}

// ShouldSend reports whether a meme should be attached to the outgoing reply.
//
// Always false while the store holds fewer than MinMemes, regardless of
// MemeProbability: a sparse store never emits, which avoids degenerate
// attachments early in the store's life. Otherwise true with probability
// MemeProbability. Exactly one draw is made per call; callers must not
// re-draw on retry, as that would bias the effective probability.
func (r *RetentionController) ShouldSend(ctx context.Context) (bool, error) {
	count, err := r.store.Count(ctx)
	if err != nil {
		return false, NewMemeError("ShouldSend", wrapStorageError(err))
	}
	if count < r.config.MinMemes {
		r.logger.Debug("store below maturity floor, not sending",
			"count", count, "min_memes", r.config.MinMemes)
		return false, nil
	}
	return r.draw() < r.config.MemeProbability, nil
}

// Admit inserts an admitted meme, evicting first when the store is full.
//
// Admit assumes the probabilistic gate and the security filter have already
// passed; it applies only the capacity policy. Eviction and insertion appear
// atomic to concurrent callers. Storage I/O errors are surfaced, not retried:
// losing a candidate meme is an acceptable, non-fatal outcome that the caller
// decides how to handle.
func (r *RetentionController) Admit(ctx context.Context, meme *storage.Meme) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, err := r.store.Count(ctx)
	if err != nil {
		return NewMemeError("Admit", wrapStorageError(err))
	}

	if count >= r.config.MaxMemes {
		evicted, err := r.store.EvictOldest(ctx)
		if err != nil {
			return NewMemeError("Admit", wrapStorageError(err))
		}
		r.logger.Info("evicted meme to stay within capacity",
			"evicted_id", evicted, "max_memes", r.config.MaxMemes)
	}

	if err := r.store.Insert(ctx, meme); err != nil {
		return NewMemeError("Admit", wrapStorageError(err))
	}

	return nil
}

// Delete marks a meme invalid under the same mutating-path mutex as Admit.
func (r *RetentionController) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, id); err != nil {
		return NewMemeError("Delete", wrapStorageError(err))
	}
	return nil
}

// draw makes one uniform draw from the shared random source.
func (r *RetentionController) draw() float64 {
	r.randMu.Lock()
	defer r.randMu.Unlock()
	return r.rng.Float64()
}
