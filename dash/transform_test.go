package dash

import (
	"math"
	"testing"
)

const epsilon = 1e-10

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func matricesEqual(m1, m2 AffineMatrix) bool {
	return almostEqual(m1.A, m2.A) &&
		almostEqual(m1.B, m2.B) &&
		almostEqual(m1.Tx, m2.Tx) &&
		almostEqual(m1.C, m2.C) &&
		almostEqual(m1.D, m2.D) &&
		almostEqual(m1.Ty, m2.Ty)
}

func pointsEqual(p1, p2 Point) bool {
	return almostEqual(p1.X, p2.X) && almostEqual(p1.Y, p2.Y)
}

func TestTransformPoint(t *testing.T) {
	tests := []struct {
		name   string
		point  Point
		matrix AffineMatrix
		want   Point
	}{
		{"identity", Point{X: 10, Y: 20}, Identity(), Point{X: 10, Y: 20}},
		{"translation", Point{X: 5, Y: 5}, Translation(10, 15), Point{X: 15, Y: 20}},
		{"scale", Point{X: 3, Y: 4}, Scale(2, 0.5), Point{X: 6, Y: 2}},
		{"quarter turn", Point{X: 1, Y: 0}, Rotation(math.Pi / 2), Point{X: 0, Y: 1}},
		{"minus quarter turn", Point{X: 1, Y: 0}, Rotation(-math.Pi / 2), Point{X: 0, Y: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformPoint(tt.point, tt.matrix)
			if !pointsEqual(got, tt.want) {
				t.Errorf("TransformPoint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMultiplyMatrices_AppliesRightFirst(t *testing.T) {
	// Scale then translate.
	m := MultiplyMatrices(Translation(10, 0), Scale(2, 2))
	got := TransformPoint(Point{X: 1, Y: 1}, m)
	if !pointsEqual(got, Point{X: 12, Y: 2}) {
		t.Errorf("got %v, want (12,2)", got)
	}
}

func TestCompose(t *testing.T) {
	if !matricesEqual(Compose(), Identity()) {
		t.Error("empty Compose should be identity")
	}

	m := Compose(Translation(1, 2), Scale(3, 3), Translation(-1, -1))
	got := TransformPoint(Point{X: 2, Y: 2}, m)
	if !pointsEqual(got, Point{X: 4, Y: 5}) {
		t.Errorf("got %v, want (4,5)", got)
	}
}

func TestRotationAbout_FixesCenter(t *testing.T) {
	m := RotationAbout(-math.Pi/2, 50, 30)
	c := TransformPoint(Point{X: 50, Y: 30}, m)
	if !pointsEqual(c, Point{X: 50, Y: 30}) {
		t.Errorf("center moved to %v", c)
	}
	p := TransformPoint(Point{X: 60, Y: 30}, m)
	if !pointsEqual(p, Point{X: 50, Y: 20}) {
		t.Errorf("got %v, want (50,20)", p)
	}
}

func TestAff3(t *testing.T) {
	m := AffineMatrix{A: 1, B: 2, Tx: 3, C: 4, D: 5, Ty: 6}
	a := m.Aff3()
	for i, want := range []float64{1, 2, 3, 4, 5, 6} {
		if a[i] != want {
			t.Errorf("Aff3[%d] = %v, want %v", i, a[i], want)
		}
	}
}
