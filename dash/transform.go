package dash

import (
	"math"

	"golang.org/x/image/math/f64"
)

// TransformPoint applies an affine transform to a point
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// Compose multiplies the matrices left to right, so the last one is applied first.
func Compose(ms ...AffineMatrix) AffineMatrix {
	out := Identity()
	for _, m := range ms {
		out = MultiplyMatrices(out, m)
	}
	return out
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Rotation creates a rotation transform (angle in radians, around origin).
// In a y-down pixel space a positive angle turns clockwise on screen.
func Rotation(angle float64) AffineMatrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	// Snap the quarter turns so map pixels land on exact integers.
	if math.Abs(cos) < 1e-12 {
		cos = 0
	}
	if math.Abs(sin) < 1e-12 {
		sin = 0
	}
	return AffineMatrix{A: cos, B: -sin, Tx: 0, C: sin, D: cos, Ty: 0}
}

// RotationAbout rotates by angle radians around (cx, cy).
func RotationAbout(angle, cx, cy float64) AffineMatrix {
	return Compose(Translation(cx, cy), Rotation(angle), Translation(-cx, -cy))
}

// Scale creates a scaling transform
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, B: 0, Tx: 0, C: 0, D: sy, Ty: 0}
}

// Aff3 converts the matrix into the form used by golang.org/x/image/draw.
func (m AffineMatrix) Aff3() f64.Aff3 {
	return f64.Aff3{m.A, m.B, m.Tx, m.C, m.D, m.Ty}
}
