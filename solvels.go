// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

package navqc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SolveLS solves the observation equation G x = y by weighted least squares
// - x = (G^t W G)^-1 G^t W y
// - Return the error covariance matrix (G^t W G)^-1 as cov
func SolveLS(G mat.Matrix, y mat.Vector, W mat.Matrix) (x *mat.VecDense, cov *mat.Dense, err error) {
	n, m := G.Dims()
	if r, c := W.Dims(); r != n || c != n {
		return nil, nil, fmt.Errorf("invalid matrix size. G(%d x %d), W(%d x %d)", n, m, r, c)
	}
	if y.Len() != n {
		return nil, nil, fmt.Errorf("invalid matrix size. G(%d x %d), y(%d x 1)", n, m, y.Len())
	}

	// A = G^t W G, b = G^t W y
	var GtW, A mat.Dense
	GtW.Mul(G.T(), W)
	A.Mul(&GtW, G)
	var b mat.VecDense
	b.MulVec(&GtW, y)

	x = new(mat.VecDense)
	if err = x.SolveVec(&A, &b); err != nil {
		return nil, nil, err
	}
	cov = new(mat.Dense)
	if err = cov.Inverse(&A); err != nil {
		return nil, nil, err
	}
	return x, cov, nil
}

// Fit the polynomial c0 + c1 u + ... + c_deg u^deg to the samples (us[i], ys[i])
// with equal weights. Returns the coefficients, lowest order first.
func fitPoly(us, ys []float64, deg int) ([]float64, error) {
	n := len(us)
	if n != len(ys) {
		return nil, fmt.Errorf("fitPoly: %d parameters for %d values", n, len(ys))
	}
	if n <= deg {
		return nil, fmt.Errorf("fitPoly: %d samples cannot determine degree %d", n, deg)
	}
	G := mat.NewDense(n, deg+1, nil)
	for i, u := range us {
		p := 1.0
		for j := 0; j <= deg; j++ {
			G.Set(i, j, p)
			p *= u
		}
	}
	W := mat.NewDiagDense(n, nil)
	for i := range n {
		W.SetDiag(i, 1)
	}
	dx, _, err := SolveLS(G, mat.NewVecDense(n, ys), W)
	if err != nil {
		return nil, fmt.Errorf("fitPoly: %w", err)
	}
	c := make([]float64, deg+1)
	for j := range c {
		c[j] = dx.AtVec(j)
	}
	return c, nil
}

// Evaluate a polynomial at u (Horner)
func evalPoly(c []float64, u float64) float64 {
	var v float64
	for j := len(c) - 1; j >= 0; j-- {
		v = v*u + c[j]
	}
	return v
}
