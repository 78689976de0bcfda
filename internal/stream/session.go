package stream

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ryan-organically/roanoke-engine/internal/budget"
	"github.com/ryan-organically/roanoke-engine/internal/config"
	"github.com/ryan-organically/roanoke-engine/internal/diagnostics"
	"github.com/ryan-organically/roanoke-engine/internal/forest"
	"github.com/ryan-organically/roanoke-engine/internal/mesh"
)

// Uploader receives accepted chunks on the consumer goroutine. Release is
// called when a chunk leaves the unload radius.
type Uploader interface {
	Upload(coord forest.ChunkCoord, chunk *forest.Chunk, upload mesh.Upload)
	Release(coord forest.ChunkCoord)
}

// FrameStats summarizes one Frame call.
type FrameStats struct {
	Submitted int
	Accepted  int
	Discarded int
	Failed    int
	Unloaded  int
	Pending   int
}

// Session is the consumer side: it owns the loader, feeds the dispatcher
// and keeps the accepted chunks. All methods must be called from the same
// goroutine.
type Session struct {
	loader     *Loader
	dispatcher *Dispatcher
	uploader   Uploader
	chunkSize  float64
	perFrame   int

	pending  []forest.ChunkCoord
	chunks   map[forest.ChunkCoord]*forest.Chunk
	unloaded []forest.ChunkCoord
}

// NewSession wires a loader to a started dispatcher. uploader may be nil.
func NewSession(cfg config.StreamConfig, chunkSize float64, dispatcher *Dispatcher, uploader Uploader) *Session {
	perFrame := cfg.MaxResultsPerFrame
	if perFrame <= 0 {
		perFrame = 1
	}
	return &Session{
		loader:     NewLoader(cfg.LoadRadius, cfg.UnloadRadius),
		dispatcher: dispatcher,
		uploader:   uploader,
		chunkSize:  chunkSize,
		perFrame:   perFrame,
		chunks:     make(map[forest.ChunkCoord]*forest.Chunk),
	}
}

// Focus moves the focus to world position (x, z). New chunk requests are
// queued; chunks beyond the unload radius are released at once.
func (s *Session) Focus(x, z float64) {
	requests, unloaded := s.loader.Update(ChunkAt(x, z, s.chunkSize))
	if len(requests) == 0 && len(unloaded) == 0 {
		return
	}
	if len(unloaded) > 0 {
		gone := make(map[forest.ChunkCoord]struct{}, len(unloaded))
		for _, coord := range unloaded {
			gone[coord] = struct{}{}
			if _, ok := s.chunks[coord]; ok {
				delete(s.chunks, coord)
				if s.uploader != nil {
					s.uploader.Release(coord)
				}
			}
		}
		kept := s.pending[:0]
		for _, coord := range s.pending {
			if _, ok := gone[coord]; !ok {
				kept = append(kept, coord)
			}
		}
		s.pending = kept
		s.unloaded = append(s.unloaded, unloaded...)
	}
	s.pending = append(s.pending, requests...)
	diagnostics.Logger().Debug("focus moved",
		slog.String("chunk", s.loader.Focus().String()),
		slog.Int("requested", len(requests)),
		slog.Int("unloaded", len(unloaded)))
}

// Frame submits queued requests while the task queue has room and accepts
// at most the configured number of finished chunks.
func (s *Session) Frame() FrameStats {
	var stats FrameStats
	stats.Unloaded = len(s.unloaded)
	s.unloaded = s.unloaded[:0]

	for len(s.pending) > 0 && s.dispatcher.TrySubmit(s.pending[0]) {
		s.pending = s.pending[1:]
		stats.Submitted++
	}
	for _, res := range s.dispatcher.Drain(s.perFrame) {
		s.accept(res, &stats)
	}
	stats.Pending = len(s.pending)
	return stats
}

// Settle blocks until every requested chunk has arrived or ctx ends. It is
// Frame without the per-frame limit, for batch runs and tests.
func (s *Session) Settle(ctx context.Context) (FrameStats, error) {
	var stats FrameStats
	stats.Unloaded = len(s.unloaded)
	s.unloaded = s.unloaded[:0]
	for {
		for len(s.pending) > 0 && s.dispatcher.TrySubmit(s.pending[0]) {
			s.pending = s.pending[1:]
			stats.Submitted++
		}
		if _, loading := s.loader.Stats(); loading == 0 {
			return stats, nil
		}
		res, err := s.dispatcher.Next(ctx)
		if err != nil {
			return stats, err
		}
		s.accept(res, &stats)
	}
}

func (s *Session) accept(res Result, stats *FrameStats) {
	if res.Err != nil {
		s.loader.Fail(res.Coord)
		stats.Failed++
		return
	}
	if !s.loader.Complete(res.Coord) {
		stats.Discarded++
		return
	}
	s.chunks[res.Coord] = res.Chunk
	stats.Accepted++
	if s.uploader != nil {
		s.uploader.Upload(res.Coord, res.Chunk, res.Chunk.Mesh.Upload())
	}
}

// Chunk returns an accepted chunk.
func (s *Session) Chunk(coord forest.ChunkCoord) (*forest.Chunk, bool) {
	c, ok := s.chunks[coord]
	return c, ok
}

// Coords lists the accepted chunks in row order.
func (s *Session) Coords() []forest.ChunkCoord {
	out := make([]forest.ChunkCoord, 0, len(s.chunks))
	for coord := range s.chunks {
		out = append(out, coord)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		return out[i].X < out[j].X
	})
	return out
}

// Totals sums the geometry of every accepted chunk.
func (s *Session) Totals() (instances int, totals budget.Totals) {
	for _, c := range s.chunks {
		instances += len(c.Instances)
		totals.Vertices += c.Totals.Vertices
		totals.Indices += c.Totals.Indices
		totals.Bytes += c.Totals.Bytes
	}
	return instances, totals
}

func (s *Session) Loader() *Loader { return s.loader }
