package threshold

import (
	"crypto/rand"
	"errors"
)

var (
	ErrThresholdTooLarge = errors.New("threshold: K cannot exceed N")
	ErrThresholdTooSmall = errors.New("threshold: K must be at least 1")
	ErrNotEnoughShares   = errors.New("threshold: fewer than K shares supplied")
	ErrShareLengthMismatch = errors.New("threshold: shares have mismatched lengths")
	ErrDuplicateShareIndex = errors.New("threshold: duplicate share x-coordinate")
)

// Share is one participant's point on the splitting polynomial: X is
// the 1-indexed participant number, Y holds one GF(2^8) byte per
// secret byte.
type Share struct {
	X byte
	Y []byte
}

// Split divides secret into n shares such that any k of them
// reconstruct it, using an independent random polynomial of degree
// k-1 per secret byte.
func Split(secret []byte, k, n int) ([]Share, error) {
	if k < 1 {
		return nil, ErrThresholdTooSmall
	}
	if k > n {
		return nil, ErrThresholdTooLarge
	}

	shares := make([]Share, n)
	for i := 0; i < n; i++ {
		shares[i] = Share{X: byte(i + 1), Y: make([]byte, len(secret))}
	}

	coeffs := make([]byte, k)
	for byteIdx, secretByte := range secret {
		coeffs[0] = secretByte
		if _, err := rand.Read(coeffs[1:]); err != nil {
			return nil, err
		}

		for i := 0; i < n; i++ {
			x := byte(i + 1)
			shares[i].Y[byteIdx] = evalPoly(coeffs, x)
		}
	}

	return shares, nil
}

// evalPoly evaluates the polynomial with the given coefficients
// (lowest degree first) at x, via Horner's method in GF(2^8).
func evalPoly(coeffs []byte, x byte) byte {
	result := byte(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = gf256Add(gf256Mul(result, x), coeffs[i])
	}
	return result
}

// Combine reconstructs the original secret from at least k shares via
// Lagrange interpolation evaluated at x=0.
func Combine(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrNotEnoughShares
	}

	secretLen := len(shares[0].Y)
	seen := make(map[byte]struct{}, len(shares))
	for _, s := range shares {
		if len(s.Y) != secretLen {
			return nil, ErrShareLengthMismatch
		}
		if _, dup := seen[s.X]; dup {
			return nil, ErrDuplicateShareIndex
		}
		seen[s.X] = struct{}{}
	}

	secret := make([]byte, secretLen)
	for byteIdx := 0; byteIdx < secretLen; byteIdx++ {
		secret[byteIdx] = lagrangeAtZero(shares, byteIdx)
	}
	return secret, nil
}

// lagrangeAtZero evaluates the Lagrange interpolation polynomial
// through each share's byteIdx-th Y coordinate, at x=0.
func lagrangeAtZero(shares []Share, byteIdx int) byte {
	var result byte
	for i, si := range shares {
		num := byte(1)
		den := byte(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			num = gf256Mul(num, sj.X)
			den = gf256Mul(den, gf256Add(sj.X, si.X))
		}
		term := gf256Mul(si.Y[byteIdx], gf256Div(num, den))
		result = gf256Add(result, term)
	}
	return result
}
