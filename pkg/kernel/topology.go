package kernel

// Explore returns the distinct sub-shapes of s of the given kind in
// depth-first first-seen order. s itself is included when it matches.
func Explore(k Kernel, s Shape, kind Kind) []Shape {
	var out []Shape
	seen := make(map[Shape]bool)
	visited := make(map[Shape]bool)
	var walk func(Shape)
	walk = func(x Shape) {
		if visited[x] {
			return
		}
		visited[x] = true
		if x.Kind() == kind && !seen[x] {
			seen[x] = true
			out = append(out, x)
			if kind != Compound {
				return
			}
		}
		if x.Kind() < kind && kind != Compound {
			return
		}
		for _, c := range k.Children(x) {
			walk(c)
		}
	}
	walk(s)
	return out
}

// ExploreOutside returns the sub-shapes of s of the given kind that are not
// contained in any sub-shape of kind avoid.
func ExploreOutside(k Kernel, s Shape, kind, avoid Kind) []Shape {
	inside := make(map[Shape]bool)
	for _, a := range Explore(k, s, avoid) {
		for _, x := range Explore(k, a, kind) {
			inside[x] = true
		}
	}
	var out []Shape
	for _, x := range Explore(k, s, kind) {
		if !inside[x] {
			out = append(out, x)
		}
	}
	return out
}

// Ancestors maps every sub-shape of s of the given kind to the sub-shapes of
// kind parent that contain it, in exploration order.
func Ancestors(k Kernel, s Shape, kind, parent Kind) map[Shape][]Shape {
	out := make(map[Shape][]Shape)
	for _, p := range Explore(k, s, parent) {
		for _, x := range Explore(k, p, kind) {
			out[x] = append(out[x], p)
		}
	}
	return out
}

// Contains reports whether sub occurs anywhere in the tree of s.
func Contains(k Kernel, s, sub Shape) bool {
	if s == sub {
		return true
	}
	if sub.Kind() > s.Kind() && s.Kind() != Compound {
		return false
	}
	for _, c := range k.Children(s) {
		if Contains(k, c, sub) {
			return true
		}
	}
	return false
}
