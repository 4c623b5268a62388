package scene

// Mold is a template for new shapes: the element tag and its initial
// attributes in the unit square.
type Mold struct {
	Tag   string
	Attrs Attrs
}

const shapeFill = "#dd87e0"

func commonAttrs() Attrs {
	return Attrs{"stroke": "white", "vector-effect": "non-scaling-stroke"}
}

func withCommon(extra Attrs) Attrs {
	a := commonAttrs()
	for k, v := range extra {
		a[k] = v
	}
	return a
}

func RectMold() Mold {
	return Mold{Tag: "rect", Attrs: withCommon(Attrs{"width": 1.0, "height": 1.0, "fill": shapeFill})}
}

func CircleMold() Mold {
	return Mold{Tag: "circle", Attrs: withCommon(Attrs{"cx": 0.5, "cy": 0.5, "r": 0.5, "fill": shapeFill})}
}

func TriangleMold() Mold {
	return Mold{Tag: "path", Attrs: withCommon(Attrs{"d": "M 0.5 0 L 0 1 H 1 Z", "fill": shapeFill})}
}

func LineMold() Mold {
	return Mold{Tag: TagLine, Attrs: commonAttrs()}
}

// MoldFor returns the built-in mold for a shape name ("rect", "circle",
// "triangle"/"path", "line").
func MoldFor(name string) (Mold, bool) {
	switch name {
	case "rect", "rectangle":
		return RectMold(), true
	case "circle":
		return CircleMold(), true
	case "triangle", "path":
		return TriangleMold(), true
	case "line":
		return LineMold(), true
	default:
		return Mold{}, false
	}
}
