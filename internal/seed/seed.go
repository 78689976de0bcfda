// Package seed derives repeatable pseudo-random values from a world seed
// and integer or positional keys. Nothing here keeps state between calls,
// so any worker may derive the same value independently.
package seed

import "math"

const golden = 0x9e3779b97f4a7c15

// Combine folds value into s the way boost::hash_combine does, widened to
// 64 bits.
func Combine(s, value uint64) uint64 {
	return s ^ (value + golden + (s << 6) + (s >> 2))
}

// CombineAll folds every value into s in order.
func CombineAll(s uint64, values ...uint64) uint64 {
	for _, v := range values {
		s = Combine(s, v)
	}
	return s
}

// Mix is the splitmix64 finalizer. It spreads low-entropy keys across all
// 64 bits.
func Mix(x uint64) uint64 {
	x += golden
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Unit maps h onto [0,1) using its top 53 bits.
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

// At returns the hash for (s, index). It is the building block for
// per-symbol and per-candidate streams.
func At(s, index uint64) uint64 {
	return Mix(Combine(s, index))
}

// UnitAt is Unit(At(s, index)).
func UnitAt(s, index uint64) float64 {
	return Unit(At(s, index))
}

// Position keys a world position by the bit patterns of its float32
// coordinates, so positions that round to the same float32 share a key.
func Position(s uint64, x, z float64) uint64 {
	return Mix(CombineAll(s, uint64(math.Float32bits(float32(x))), uint64(math.Float32bits(float32(z)))))
}

// Cell keys an integer grid cell.
func Cell(s uint64, cx, cz int64) uint64 {
	return Mix(CombineAll(s, uint64(cx), uint64(cz)))
}

// Lane derives an independent sub-stream of s.
func Lane(s uint64, lane uint64) uint64 {
	return Mix(Combine(s, lane*0x632be59bd9b4e019))
}
