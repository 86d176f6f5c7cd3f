package relevance

import "github.com/Faultbox/midgard-shadows/internal/engine/scene"

// IndexNone is returned when a primitive has no LODs.
const IndexNone int8 = -1

// SelectLOD picks the LOD for a primitive at squared distance distSq from
// the view, with the view's LOD distance factor squared in scaleSq. The
// first entry whose [min, max) range contains the scaled distance wins.
// forced >= 0 overrides the choice with the closest index in the table.
// A distance no range covers clamps to the nearest range.
func SelectLOD(lods []scene.StaticMeshLOD, distSq, scaleSq float32, forced int) int8 {
	if len(lods) == 0 {
		return IndexNone
	}
	if forced >= 0 {
		return nearestIndex(lods, forced)
	}

	d := distSq * scaleSq
	best, bestGap := lods[0].LODIndex, float32(-1)
	for _, l := range lods {
		lo, hi := l.MinDistance*l.MinDistance, l.MaxDistance*l.MaxDistance
		if d >= lo && d < hi {
			return l.LODIndex
		}
		gap := lo - d
		if d >= hi {
			gap = d - hi
		}
		if bestGap < 0 || gap < bestGap {
			best, bestGap = l.LODIndex, gap
		}
	}
	return best
}

// nearestIndex returns the table index closest to want, preferring the more
// detailed one on ties.
func nearestIndex(lods []scene.StaticMeshLOD, want int) int8 {
	best := lods[0].LODIndex
	bestGap := -1
	for _, l := range lods {
		gap := int(l.LODIndex) - want
		if gap < 0 {
			gap = -gap
		}
		if bestGap < 0 || gap < bestGap || (gap == bestGap && l.LODIndex < best) {
			best, bestGap = l.LODIndex, gap
		}
	}
	return best
}
