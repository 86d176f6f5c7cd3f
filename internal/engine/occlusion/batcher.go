package occlusion

import (
	"github.com/Faultbox/midgard-shadows/internal/engine/view"
	"github.com/Faultbox/midgard-shadows/pkg/math"
)

// Batch is one submitted query: a single box, or several boxes sharing a
// result when grouped.
type Batch struct {
	ID      view.QueryID
	Grouped bool
	Boxes   []math.BoxSphereBounds
}

// Batcher collects the queries of one view and frame.
type Batcher struct {
	groupSize int
	nextID    view.QueryID
	batches   []Batch
	open      int // index of the grouped batch being filled, -1 if none
}

// NewBatcher creates a batcher whose grouped batches hold up to groupSize
// boxes.
func NewBatcher(groupSize int) *Batcher {
	return &Batcher{groupSize: max(groupSize, 1), open: -1}
}

// SetGroupSize changes the grouped batch size for subsequent batches.
func (b *Batcher) SetGroupSize(n int) { b.groupSize = max(n, 1) }

func (b *Batcher) newID() view.QueryID {
	b.nextID++
	return b.nextID
}

// AddGrouped appends a box to the open grouped batch and returns the batch
// query ID.
func (b *Batcher) AddGrouped(bounds math.BoxSphereBounds) view.QueryID {
	if b.open < 0 || len(b.batches[b.open].Boxes) >= b.groupSize {
		b.batches = append(b.batches, Batch{ID: b.newID(), Grouped: true, Boxes: make([]math.BoxSphereBounds, 0, b.groupSize)})
		b.open = len(b.batches) - 1
	}
	bt := &b.batches[b.open]
	bt.Boxes = append(bt.Boxes, bounds)
	return bt.ID
}

// AddIndividual creates a single box batch and returns its query ID.
func (b *Batcher) AddIndividual(bounds math.BoxSphereBounds) view.QueryID {
	id := b.newID()
	b.batches = append(b.batches, Batch{ID: id, Boxes: []math.BoxSphereBounds{bounds}})
	return id
}

// Batches returns the pending batches.
func (b *Batcher) Batches() []Batch { return b.batches }

// Flush submits every pending batch and clears the batcher.
func (b *Batcher) Flush(backend QueryBackend, viewProj math.Mat4) int {
	n := len(b.batches)
	for _, bt := range b.batches {
		backend.Submit(bt.ID, bt.Boxes, viewProj)
	}
	b.batches = b.batches[:0]
	b.open = -1
	return n
}
