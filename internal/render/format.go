package render

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

// FormatValue renders an attribute value the way SVG expects it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case affine.Matrix:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = formatFloat(n)
		}
		return "matrix(" + strings.Join(parts, " ") + ")"
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatAttrs formats every attribute value.
func FormatAttrs(attrs scene.Attrs) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = FormatValue(v)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
