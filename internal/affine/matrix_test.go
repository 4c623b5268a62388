package affine

import (
	"math"
	"testing"
)

const eps = 1e-9

var samples = []Matrix{
	Identity(),
	{100, 0, 0, 100, 20, 30},
	{2, 1, -1, 3, 5, -7},
	{0.5, -0.25, 0.75, 1.5, -100, 42},
	Rotation(1.1).Compose(Scaling(3, 0.2)).Translate(Pt(9, -4)),
}

var points = []Point{{0, 0}, {1, 1}, {0.5, 0.5}, {-3, 12.5}, {1000, -0.001}}

func pointsClose(p, q Point) bool {
	return math.Abs(p.X-q.X) < 1e-6 && math.Abs(p.Y-q.Y) < 1e-6
}

func TestFactorRoundTrip(t *testing.T) {
	for _, m := range samples {
		for _, p := range points {
			if got := m.Factor(m.Apply(p)); !pointsClose(got, p) {
				t.Fatalf("factor(apply(%v)) through %v = %v", p, m, got)
			}
			if got := m.Apply(m.Factor(p)); !pointsClose(got, p) {
				t.Fatalf("apply(factor(%v)) through %v = %v", p, m, got)
			}
		}
	}
}

func TestComposeAssociative(t *testing.T) {
	for _, a := range samples {
		for _, b := range samples {
			for _, c := range samples {
				left := a.Compose(b).Compose(c)
				right := a.Compose(b.Compose(c))
				if !left.ApproxEqual(right, 1e-6) {
					t.Fatalf("compose not associative: %v vs %v", left, right)
				}
			}
		}
	}
}

func TestComposeAppliesRightFirst(t *testing.T) {
	m := Translation(10, 0)
	n := Scaling(2, 2)
	got := m.Compose(n).Apply(Pt(1, 1))
	if got != Pt(12, 2) {
		t.Fatalf("expected scale then translate, got %v", got)
	}
}

func TestTranslateExtend(t *testing.T) {
	m := Matrix{1, 2, 3, 4, 5, 6}
	if got := m.Translate(Pt(10, 20)); got != (Matrix{1, 2, 3, 4, 15, 26}) {
		t.Fatalf("translate: %v", got)
	}
	if got := m.Extend(Pt(10, 20)); got != (Matrix{11, 2, 3, 24, 5, 6}) {
		t.Fatalf("extend: %v", got)
	}
}

func TestRotateAboutOrigin(t *testing.T) {
	m := Translation(1, 0).Rotate(math.Pi / 2)
	if got := m.Apply(Pt(0, 0)); !pointsClose(got, Pt(0, 1)) {
		t.Fatalf("rotated origin: %v", got)
	}
	if !Rotation(0.3).Rotate(-0.3).ApproxEqual(Identity(), eps) {
		t.Fatalf("rotation did not cancel")
	}
}

func TestFactorSingularPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Matrix{1, 2, 2, 4, 0, 0}.Factor(Pt(1, 1))
}

func TestFromSlice(t *testing.T) {
	m := FromSlice([]float64{1, 2, 3, 4, 5, 6})
	if got := m.ToSlice(); len(got) != 6 || got[5] != 6 {
		t.Fatalf("unexpected slice %v", got)
	}
	for _, bad := range [][]float64{{1, 2, 3}, {1, 2, 3, 4, 5, math.NaN()}, {1, 2, 3, 4, 5, math.Inf(1)}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for %v", bad)
				}
			}()
			FromSlice(bad)
		}()
	}
}

func TestDeterminantAndIdentity(t *testing.T) {
	if d := (Matrix{2, 0, 0, 3, 7, 7}).Determinant(); d != 6 {
		t.Fatalf("determinant: %v", d)
	}
	if !Identity().IsIdentity() || Translation(1, 0).IsIdentity() {
		t.Fatalf("identity check broken")
	}
	if Distance(Pt(0, 0), Pt(3, 4)) != 5 {
		t.Fatalf("distance broken")
	}
}
