package types

import (
	"fmt"
	"image"
	"math"
)

// Normalize converts any container shape a detection primitive or a persisted
// record may use into a single Rectangle:
//
//	Rectangle, image.Rectangle        a single match
//	[4]int, []int, []float64, []any   a bare quadruple [x, y, w, h]
//	[]Rectangle, [][]int, []any       a group of quadruples; a singleton group
//	                                  yields its member, larger groups their bounding box
//
// Rectangles with a non-positive width or height, or a negative origin, yield
// ErrMalformedRect.
func Normalize(v any) (Rectangle, error) {
	var r Rectangle
	switch s := v.(type) {
	case Rectangle:
		r = s
	case *Rectangle:
		if s == nil {
			return Rectangle{}, ErrMalformedRect
		}
		r = *s
	case image.Rectangle:
		if s.Dx() <= 0 || s.Dy() <= 0 {
			return Rectangle{}, fmt.Errorf("%w: %v", ErrMalformedRect, s)
		}
		r = FromImageRect(s)
	case [4]int:
		r = Rect(s[0], s[1], s[2], s[3])
	case []int:
		if len(s) != 4 {
			return Rectangle{}, fmt.Errorf("%w: expected 4 values, got %d", ErrMalformedRect, len(s))
		}
		r = Rect(s[0], s[1], s[2], s[3])
	case []float64:
		q, err := quad(s)
		if err != nil {
			return Rectangle{}, err
		}
		r = q
	case []Rectangle:
		return group(len(s), func(i int) (Rectangle, error) { return Normalize(s[i]) })
	case [][]int:
		return group(len(s), func(i int) (Rectangle, error) { return Normalize(s[i]) })
	case []any:
		if isQuad(s) {
			vals := make([]float64, len(s))
			for i, e := range s {
				vals[i] = e.(float64)
			}
			q, err := quad(vals)
			if err != nil {
				return Rectangle{}, err
			}
			r = q
		} else {
			return group(len(s), func(i int) (Rectangle, error) { return Normalize(s[i]) })
		}
	default:
		return Rectangle{}, fmt.Errorf("%w: unsupported shape %T", ErrMalformedRect, v)
	}

	if !r.Valid() {
		return Rectangle{}, fmt.Errorf("%w: %v", ErrMalformedRect, r)
	}
	return r, nil
}

func group(n int, at func(int) (Rectangle, error)) (Rectangle, error) {
	if n == 0 {
		return Rectangle{}, fmt.Errorf("%w: empty group", ErrMalformedRect)
	}
	out, err := at(0)
	if err != nil {
		return Rectangle{}, err
	}
	for i := 1; i < n; i++ {
		r, err := at(i)
		if err != nil {
			return Rectangle{}, err
		}
		out = out.Union(r)
	}
	return out, nil
}

// isQuad reports whether a decoded JSON array is a flat list of four numbers.
func isQuad(s []any) bool {
	if len(s) != 4 {
		return false
	}
	for _, e := range s {
		if _, ok := e.(float64); !ok {
			return false
		}
	}
	return true
}

func quad(s []float64) (Rectangle, error) {
	if len(s) != 4 {
		return Rectangle{}, fmt.Errorf("%w: expected 4 values, got %d", ErrMalformedRect, len(s))
	}
	var out [4]int
	for i, f := range s {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return Rectangle{}, fmt.Errorf("%w: non-integer coordinate %v", ErrMalformedRect, f)
		}
		out[i] = int(f)
	}
	return Rect(out[0], out[1], out[2], out[3]), nil
}
