package view

// QueryID names an occlusion query. Zero means no query.
type QueryID uint64

// OcclusionHistory is one primitive's occlusion record in a stateful view.
// Queries alternate between two slots by frame parity; the slot of the
// previous frame holds the query whose result is read this frame.
type OcclusionHistory struct {
	LastVisibleTime      float32
	LastConsideredTime   float32
	LastPixelsPercentage float32
	LastFrame            uint32

	queries [2]QueryID
	grouped [2]bool
}

// PastQuery returns the query issued in the frame before frame.
func (h *OcclusionHistory) PastQuery(frame uint32) (id QueryID, grouped bool) {
	i := (frame + 1) % 2
	return h.queries[i], h.grouped[i]
}

// ClearPastQuery forgets the previous frame's query once it was consumed.
func (h *OcclusionHistory) ClearPastQuery(frame uint32) {
	i := (frame + 1) % 2
	h.queries[i] = 0
	h.grouped[i] = false
}

// SetCurrentQuery records the query issued in frame.
func (h *OcclusionHistory) SetCurrentQuery(frame uint32, id QueryID, grouped bool) {
	i := frame % 2
	h.queries[i] = id
	h.grouped[i] = grouped
}

// Queries returns both outstanding query slots.
func (h *OcclusionHistory) Queries() [2]QueryID {
	return h.queries
}
