package kernel

// History records what became of input sub-shapes across one modifying
// kernel call.
type History struct {
	modified map[Shape][]Shape
	deleted  map[Shape]bool
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{
		modified: make(map[Shape][]Shape),
		deleted:  make(map[Shape]bool),
	}
}

// AddModified records that from was replaced by the given images.
func (h *History) AddModified(from Shape, to ...Shape) {
	h.modified[from] = append(h.modified[from], to...)
}

// MarkDeleted records that s has no image in the result.
func (h *History) MarkDeleted(s Shape) {
	h.deleted[s] = true
}

// Modified returns the images of s, or nil.
func (h *History) Modified(s Shape) []Shape {
	if h == nil {
		return nil
	}
	return h.modified[s]
}

// Image returns the first image of s.
func (h *History) Image(s Shape) (Shape, bool) {
	imgs := h.Modified(s)
	if len(imgs) == 0 {
		return nil, false
	}
	return imgs[0], true
}

// IsDeleted reports whether s vanished.
func (h *History) IsDeleted(s Shape) bool {
	if h == nil {
		return false
	}
	return h.deleted[s]
}

// Len returns the number of shapes with recorded images.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.modified)
}

// Merge folds o into h.
func (h *History) Merge(o *History) {
	if o == nil {
		return
	}
	for from, to := range o.modified {
		h.AddModified(from, to...)
	}
	for s := range o.deleted {
		h.deleted[s] = true
	}
}
