// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

// Fixed-interval Kalman smoother: forward Kalman filter followed by a backward
// Rauch-Tung-Striebel pass over the whole sequence.

package navqc

import (
	"fmt"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"
)

// Initial variance of the unobserved velocity states [unit^2/sample^2]
const kalmanVelVar = 1e4

// kalmanModel is a time-invariant linear state space model.
// The first rows of the state are the observed components (H selects them).
type kalmanModel struct {
	F  *mat.Dense // State transition
	H  *mat.Dense // Observation matrix
	Q  *mat.Dense // Process noise covariance
	R  *mat.Dense // Measurement noise covariance
	P0 *mat.Dense // Initial error covariance
}

// Constant velocity model on the plane, state [E, N, vE, vN], one sample per step.
// The process noise is white acceleration of spectral density q.
func newCVModel(q, r float64) *kalmanModel {
	return &kalmanModel{
		F: mat.NewDense(4, 4, []float64{
			1, 0, 1, 0,
			0, 1, 0, 1,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}),
		H: mat.NewDense(2, 4, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
		}),
		Q: mat.NewDense(4, 4, []float64{
			q / 3, 0, q / 2, 0,
			0, q / 3, 0, q / 2,
			q / 2, 0, q, 0,
			0, q / 2, 0, q,
		}),
		R:  mat.NewDense(2, 2, []float64{r, 0, 0, r}),
		P0: mat.NewDense(4, 4, []float64{r, 0, 0, 0, 0, r, 0, 0, 0, 0, kalmanVelVar, 0, 0, 0, 0, kalmanVelVar}),
	}
}

// Random walk model of a single value
func newRWModel(q, r float64) *kalmanModel {
	return &kalmanModel{
		F:  mat.NewDense(1, 1, []float64{1}),
		H:  mat.NewDense(1, 1, []float64{1}),
		Q:  mat.NewDense(1, 1, []float64{q}),
		R:  mat.NewDense(1, 1, []float64{r}),
		P0: mat.NewDense(1, 1, []float64{r}),
	}
}

// kalmanSmooth smooths the observation sequence ys and returns the observed
// components of the smoothed states. The state starts at the first observation
// with zero for the unobserved components.
func kalmanSmooth(m *kalmanModel, ys [][]float64, logger *log.Logger) ([][]float64, error) {
	n := len(ys)
	if n == 0 {
		return nil, nil
	}
	nx, _ := m.F.Dims()
	nz, _ := m.H.Dims()

	xp := make([]*mat.VecDense, n) // Predicted states
	Pp := make([]*mat.Dense, n)    // Predicted covariances
	xf := make([]*mat.VecDense, n) // Filtered states
	Pf := make([]*mat.Dense, n)    // Filtered covariances

	// Forward pass
	x := mat.NewVecDense(nx, nil)
	for j := range nz {
		x.SetVec(j, ys[0][j])
	}
	P := mat.DenseCopyOf(m.P0)
	for i := range n {
		if i > 0 {
			x, P = predict(m, xf[i-1], Pf[i-1])
		}
		xp[i], Pp[i] = x, P

		var hx, dy mat.VecDense
		hx.MulVec(m.H, x)
		dy.SubVec(mat.NewVecDense(nz, ys[i][:nz:nz]), &hx)

		K, err := makeK(P, m.H, m.R)
		if err != nil {
			return nil, fmt.Errorf("kalman gain at sample %d: %w", i, err)
		}
		xf[i] = updateX(x, K, &dy)
		Pf[i] = updateP(K, m.H, P)
	}
	debugMat(logger, "filtered P (last sample)", Pf[n-1])

	// Backward pass
	out := make([][]float64, n)
	xs := xf[n-1]
	out[n-1] = observe(m.H, xs)
	for i := n - 2; i >= 0; i-- {
		// C = Pf F^T Pp^-1. Both covariances are symmetric, so C^T = Pp^-1 (F Pf)
		var FP, Ct mat.Dense
		FP.Mul(m.F, Pf[i])
		if err := Ct.Solve(Pp[i+1], &FP); err != nil {
			return nil, fmt.Errorf("smoother gain at sample %d: %w", i, err)
		}
		var d, cd, s mat.VecDense
		d.SubVec(xs, xp[i+1])
		cd.MulVec(Ct.T(), &d)
		s.AddVec(xf[i], &cd)
		xs = &s
		out[i] = observe(m.H, xs)
	}
	debugMat(logger, "smoothed x (first sample)", xs)
	return out, nil
}

// predict calculates x' = F x, P' = F P F^T + Q
func predict(m *kalmanModel, x *mat.VecDense, P *mat.Dense) (*mat.VecDense, *mat.Dense) {
	var x2 mat.VecDense
	x2.MulVec(m.F, x)
	var A, B mat.Dense
	A.Mul(m.F, P)
	B.Mul(&A, m.F.T())
	B.Add(&B, m.Q)
	return &x2, &B
}

// makeK calculates K = P H^T (H P H^T + R)^-1
func makeK(P, H, R *mat.Dense) (*mat.Dense, error) {
	var A, B, C, D, K mat.Dense
	A.Mul(H, P)
	B.Mul(&A, H.T())
	B.Add(&B, R)
	if err := C.Inverse(&B); err != nil {
		return nil, err
	}
	D.Mul(P, H.T())
	K.Mul(&D, &C)
	return &K, nil
}

// updateX calculates x' = x + K dy
func updateX(x *mat.VecDense, K *mat.Dense, dy *mat.VecDense) *mat.VecDense {
	var dx, x2 mat.VecDense
	dx.MulVec(K, dy)
	x2.AddVec(x, &dx)
	return &x2
}

// updateP calculates P' = (I - K H) P
func updateP(K, H, P *mat.Dense) *mat.Dense {
	nx, _ := K.Dims()
	I := mat.NewDiagDense(nx, nil)
	for j := range nx {
		I.SetDiag(j, 1)
	}
	var A, B, C mat.Dense
	A.Mul(K, H)
	B.Sub(I, &A)
	C.Mul(&B, P)
	return &C
}

// Observed components H x
func observe(H *mat.Dense, x *mat.VecDense) []float64 {
	var z mat.VecDense
	z.MulVec(H, x)
	out := make([]float64, z.Len())
	for j := range out {
		out[j] = z.AtVec(j)
	}
	return out
}
