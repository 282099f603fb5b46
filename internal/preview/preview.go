// Package preview keeps scaled thumbnails of a document's frames up to date.
//
// A Renderer is a background reader: it takes the document's read lock
// through ReadWait, composites the frames the dirty tracker reports, and
// scales them outside the lock with golang.org/x/image/draw.
package preview

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/time/rate"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

// Defaults for a Renderer.
const (
	DefaultSize     = 128
	DefaultInterval = 250 * time.Millisecond
)

// Thumbnail is the scaled rendering of one frame.
type Thumbnail struct {
	Frame sprite.Frame
	Image *image.NRGBA
}

// Handler receives refreshed thumbnails.
type Handler func(Thumbnail)

// Option configures a Renderer.
type Option func(*Renderer)

// WithSize sets the edge of the square the thumbnails fit in.
func WithSize(px int) Option {
	return func(r *Renderer) {
		if px > 0 {
			r.size = px
		}
	}
}

// WithInterval sets how often Run looks for damage.
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLimiter paces read lock retries while an edit is running.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Renderer) {
		if l != nil {
			r.limiter = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// Renderer caches one thumbnail per frame.
type Renderer struct {
	doc      *engine.Document
	size     int
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu       sync.RWMutex
	thumbs   map[sprite.Frame]*image.NRGBA
	handlers []Handler
}

// New creates a renderer for doc.
func New(doc *engine.Document, opts ...Option) *Renderer {
	r := &Renderer{
		doc:      doc,
		size:     DefaultSize,
		interval: DefaultInterval,
		limiter:  rate.NewLimiter(rate.Every(5*time.Millisecond), 1),
		logger:   zap.NewNop(),
		thumbs:   make(map[sprite.Frame]*image.NRGBA),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnUpdate registers h for every refreshed thumbnail. Handlers run on the
// goroutine calling Refresh.
func (r *Renderer) OnUpdate(h Handler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Thumbnail returns the cached thumbnail of frame f.
func (r *Renderer) Thumbnail(f sprite.Frame) (*image.NRGBA, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, ok := r.thumbs[f]
	return img, ok
}

// Refresh re-renders every damaged frame and returns the new thumbnails in
// frame order.
func (r *Renderer) Refresh(ctx context.Context) ([]Thumbnail, error) {
	var (
		frames []sprite.Frame
		full   []*image.NRGBA
		total  int
	)
	err := r.doc.ReadWait(ctx, r.limiter, func(s *sprite.Sprite) error {
		total = s.TotalFrames()
		tracker := r.doc.Dirty()
		damaged, all := tracker.DirtyFrames()
		if all {
			damaged = make([]int, total)
			for i := range damaged {
				damaged[i] = i
			}
			tracker.Clear()
		}
		for _, f := range damaged {
			tracker.ClearFrame(f)
			if f < 0 || f >= total {
				continue
			}
			frames = append(frames, sprite.Frame(f))
			full = append(full, s.RenderFrame(sprite.Frame(f)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Thumbnail, len(frames))
	for i, f := range frames {
		out[i] = Thumbnail{Frame: f, Image: Scale(full[i], r.size)}
	}

	r.mu.Lock()
	for f := range r.thumbs {
		if int(f) >= total {
			delete(r.thumbs, f)
		}
	}
	for _, t := range out {
		r.thumbs[t.Frame] = t.Image
	}
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.Unlock()

	for _, t := range out {
		for _, h := range handlers {
			h(t)
		}
	}
	return out, nil
}

// Run refreshes thumbnails on every tick until ctx is done.
func (r *Renderer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		thumbs, err := r.Refresh(ctx)
		switch {
		case err == nil:
			if len(thumbs) > 0 {
				r.logger.Debug("preview refreshed", zap.Int("frames", len(thumbs)))
			}
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, engine.ErrClosed):
			return nil
		default:
			r.logger.Warn("preview refresh failed", zap.Error(err))
		}
	}
}

// Scale fits src into a size x size square keeping its aspect ratio.
// Nearest neighbor sampling keeps pixel edges sharp.
func Scale(src image.Image, size int) *image.NRGBA {
	b := src.Bounds()
	w, h := size, size
	switch {
	case b.Dx() > b.Dy():
		h = max(1, size*b.Dy()/b.Dx())
	case b.Dy() > b.Dx():
		w = max(1, size*b.Dx()/b.Dy())
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
