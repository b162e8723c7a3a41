package rig

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateProjection is returned for projection matrices that do not
// describe a finite camera.
var ErrDegenerateProjection = errors.New("rig: projection matrix has a singular or non-finite left 3x3 block")

// reversal is the 3x3 anti-identity permutation used to turn a QR
// factorization into an RQ factorization.
var reversal = mat.NewDense(3, 3, []float64{
	0, 0, 1,
	0, 1, 0,
	1, 0, 0,
})

// Decompose a 3x4 projection matrix P = s * K [R | t] into an upper
// triangular intrinsic matrix K (positive diagonal, K[2][2] = 1), a proper
// rotation R and a translation t.
//
// Matrices whose left 3x3 block is singular or not finite are rejected with
// ErrDegenerateProjection. P must be 3x4; other shapes panic.
func Decompose(p *mat.Dense) (k, r *mat.Dense, t *mat.VecDense, err error) {
	if rows, cols := p.Dims(); rows != 3 || cols != 4 {
		panic(fmt.Sprintf("rig: expected 3x4 projection matrix; got %dx%d", rows, cols))
	}

	m := mat.DenseCopyOf(p.Slice(0, 3, 0, 3))
	p4 := mat.NewVecDense(3, []float64{p.At(0, 3), p.At(1, 3), p.At(2, 3)})

	det := mat.Det(m)
	if math.IsNaN(det) || math.IsInf(det, 0) || math.Abs(det) < 1e-12 {
		return nil, nil, nil, ErrDegenerateProjection
	}

	// The overall scale of P is arbitrary; flip its sign so that the
	// rotation we extract has a positive determinant.
	if det < 0 {
		m.Scale(-1, m)
		p4.ScaleVec(-1, p4)
	}

	// RQ via QR: (J M)^T = Q U  =>  M = (J U^T J) (J Q^T)
	var jm, jmT mat.Dense
	jm.Mul(reversal, m)
	jmT.CloneFrom(jm.T())

	var qr mat.QR
	qr.Factorize(&jmT)
	var q, u mat.Dense
	qr.QTo(&q)
	qr.RTo(&u)

	k = mat.NewDense(3, 3, nil)
	var tmp mat.Dense
	tmp.Mul(reversal, u.T())
	k.Mul(&tmp, reversal)

	r = mat.NewDense(3, 3, nil)
	r.Mul(reversal, q.T())

	// Force a positive diagonal on K; D*D = I so K*R is unchanged.
	for i := 0; i < 3; i++ {
		if k.At(i, i) < 0 {
			for row := 0; row < 3; row++ {
				k.Set(row, i, -k.At(row, i))
			}
			for col := 0; col < 3; col++ {
				r.Set(i, col, -r.At(i, col))
			}
		}
	}

	// t = K^-1 p4 using the unnormalized K so that the scale of P cancels.
	var kInv mat.Dense
	if err = kInv.Inverse(k); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrDegenerateProjection, err)
	}
	t = mat.NewVecDense(3, nil)
	t.MulVec(&kInv, p4)

	k.Scale(1.0/k.At(2, 2), k)
	return k, r, t, nil
}
