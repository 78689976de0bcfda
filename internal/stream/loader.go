// Package stream keeps the chunks around a moving focus generated. Chunk
// tasks run on a worker pool; completed chunks cross a single hand-off
// queue to the consumer, which drains a bounded number per frame.
package stream

import (
	"math"
	"sort"

	"github.com/ryan-organically/roanoke-engine/internal/forest"
)

// ChunkAt returns the chunk containing world position (x, z).
func ChunkAt(x, z, chunkSize float64) forest.ChunkCoord {
	return forest.ChunkCoord{
		X: int64(math.Floor(x / chunkSize)),
		Z: int64(math.Floor(z / chunkSize)),
	}
}

// distance is the Chebyshev distance between two chunks, so both radii
// describe squares.
func distance(a, b forest.ChunkCoord) int64 {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// Loader tracks which chunks should exist around the focus. A chunk is
// loading from the moment it is requested until its result is accepted,
// and loaded afterwards. Chunks beyond the unload radius leave both sets,
// so a result that arrives for one of them is discarded.
//
// Loader belongs to the consumer goroutine and is not safe for concurrent
// use.
type Loader struct {
	loadRadius   int64
	unloadRadius int64
	focus        forest.ChunkCoord
	started      bool
	loaded       map[forest.ChunkCoord]struct{}
	loading      map[forest.ChunkCoord]struct{}
}

// NewLoader expects 0 <= loadRadius < unloadRadius.
func NewLoader(loadRadius, unloadRadius int) *Loader {
	return &Loader{
		loadRadius:   int64(loadRadius),
		unloadRadius: int64(unloadRadius),
		loaded:       make(map[forest.ChunkCoord]struct{}),
		loading:      make(map[forest.ChunkCoord]struct{}),
	}
}

// Update moves the focus. It returns the chunks to request, nearest ring
// first, and the chunks that were dropped. Nothing changes while the focus
// stays in the same chunk.
func (l *Loader) Update(focus forest.ChunkCoord) (requests, unloaded []forest.ChunkCoord) {
	if l.started && focus == l.focus {
		return nil, nil
	}
	l.started = true
	l.focus = focus

	for _, set := range []map[forest.ChunkCoord]struct{}{l.loaded, l.loading} {
		for coord := range set {
			if distance(coord, focus) > l.unloadRadius {
				delete(set, coord)
				unloaded = append(unloaded, coord)
			}
		}
	}
	sortByDistance(unloaded, focus)

	for dz := -l.loadRadius; dz <= l.loadRadius; dz++ {
		for dx := -l.loadRadius; dx <= l.loadRadius; dx++ {
			coord := forest.ChunkCoord{X: focus.X + dx, Z: focus.Z + dz}
			if l.Wanted(coord) {
				continue
			}
			l.loading[coord] = struct{}{}
			requests = append(requests, coord)
		}
	}
	sortByDistance(requests, focus)
	return requests, unloaded
}

func sortByDistance(coords []forest.ChunkCoord, focus forest.ChunkCoord) {
	sort.SliceStable(coords, func(i, j int) bool {
		di, dj := distance(coords[i], focus), distance(coords[j], focus)
		if di != dj {
			return di < dj
		}
		if coords[i].Z != coords[j].Z {
			return coords[i].Z < coords[j].Z
		}
		return coords[i].X < coords[j].X
	})
}

// Complete marks a requested chunk loaded. It returns false when the chunk
// was unloaded while its task ran; the caller must discard the result.
func (l *Loader) Complete(coord forest.ChunkCoord) bool {
	if _, ok := l.loading[coord]; !ok {
		return false
	}
	delete(l.loading, coord)
	l.loaded[coord] = struct{}{}
	return true
}

// Fail forgets a loading chunk so the next focus change requests it again.
func (l *Loader) Fail(coord forest.ChunkCoord) {
	delete(l.loading, coord)
}

// Wanted reports whether coord is loading or loaded.
func (l *Loader) Wanted(coord forest.ChunkCoord) bool {
	if _, ok := l.loaded[coord]; ok {
		return true
	}
	_, ok := l.loading[coord]
	return ok
}

func (l *Loader) Loaded(coord forest.ChunkCoord) bool {
	_, ok := l.loaded[coord]
	return ok
}

func (l *Loader) Focus() forest.ChunkCoord { return l.focus }

// Stats returns the sizes of the loaded and loading sets.
func (l *Loader) Stats() (loaded, loading int) {
	return len(l.loaded), len(l.loading)
}
