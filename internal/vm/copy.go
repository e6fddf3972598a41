package vm

// ShallowCopy duplicates the top-level container; elements are shared.
// Immortal kinds and identity kinds come back as-is.
func ShallowCopy(g *GC, v Value) Value {
	switch v.kind {
	case KindString:
		return g.NewString(v.Str())
	case KindList:
		return g.NewListFrom(v.List().elems)
	case KindMap:
		out := g.NewMap()
		for _, e := range v.Map().entries {
			out.Map().Put(e.key, e.val)
		}
		return out
	case KindSet:
		out := g.NewSet()
		for _, el := range v.Set().elems {
			out.Set().Add(el)
		}
		return out
	}
	return v
}

// DeepCopy duplicates the whole reachable structure. A cycle copies to the
// corresponding cycle in the duplicate: each visited object maps to its
// copy before the children are walked.
func DeepCopy(g *GC, v Value) Value {
	return deepCopy(g, v, make(map[*Object]Value))
}

func deepCopy(g *GC, v Value, seen map[*Object]Value) Value {
	if v.obj != nil {
		if dup, ok := seen[v.obj]; ok {
			return dup
		}
	}
	switch v.kind {
	case KindString:
		dup := g.NewString(v.Str())
		seen[v.obj] = dup
		return dup
	case KindList:
		dup := g.NewList(v.List().Len())
		seen[v.obj] = dup
		for _, el := range v.List().elems {
			dup.List().Append(deepCopy(g, el, seen))
		}
		return dup
	case KindMap:
		dup := g.NewMap()
		seen[v.obj] = dup
		for _, e := range v.Map().entries {
			dup.Map().Put(deepCopy(g, e.key, seen), deepCopy(g, e.val, seen))
		}
		return dup
	case KindSet:
		dup := g.NewSet()
		seen[v.obj] = dup
		for _, el := range v.Set().elems {
			dup.Set().Add(deepCopy(g, el, seen))
		}
		return dup
	}
	// Functions, classes and instances copy by reference; they compare by
	// identity anyway.
	return v
}
