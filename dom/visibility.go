package dom

// Inspection gathers what the visibility decision needs about one element:
// its own computed style, the styles of every ancestor up to the root, its
// box and the viewport. Drivers that inspect a single live element fill it
// directly; captured trees derive it with Inspect.
type Inspection struct {
	Style     Style    `json:"style"`
	Ancestors []Style  `json:"ancestors,omitempty"`
	Box       *Rect    `json:"box,omitempty"`
	Viewport  Viewport `json:"viewport"`
	Connected bool     `json:"connected"`
}

// Visible reports whether the inspected element is effectively visible.
// A disconnected element is never visible.
func (in Inspection) Visible() bool {
	if !in.Connected || in.Box == nil {
		return false
	}
	if in.Box.Width <= 0 || in.Box.Height <= 0 {
		return false
	}
	if in.Style.Hidden() {
		return false
	}
	if !intersects(*in.Box, in.Viewport) {
		return false
	}
	for _, s := range in.Ancestors {
		if s.Hidden() {
			return false
		}
	}
	return true
}

// intersects uses the same bounds as the in-page check: an element is off
// screen only when it lies entirely outside one of the four edges.
func intersects(r Rect, vp Viewport) bool {
	bottom := r.Y + r.Height
	right := r.X + r.Width
	switch {
	case bottom < 0, right < 0:
		return false
	case r.Y > vp.Height, r.X > vp.Width:
		return false
	}
	return true
}

// Inspect derives an Inspection for a node of a captured tree by walking its
// Parent chain. Parent pointers must be set (see Link).
func Inspect(n *Node, vp Viewport) Inspection {
	if n == nil {
		return Inspection{Viewport: vp}
	}
	in := Inspection{
		Style:     n.Style,
		Box:       n.Box,
		Viewport:  vp,
		Connected: !n.Detached,
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Detached {
			in.Connected = false
		}
		in.Ancestors = append(in.Ancestors, p.Style)
	}
	return in
}

// IsVisible reports whether element n is visible in the given viewport. Text
// nodes, nil nodes and nodes removed from the tree are not visible.
func IsVisible(n *Node, vp Viewport) bool {
	if !n.IsElement() {
		return false
	}
	return Inspect(n, vp).Visible()
}
