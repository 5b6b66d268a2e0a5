package auction

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandSource provides random integers for draft order shuffling.
// Tests inject a scripted source to get a known permutation.
type RandSource interface {
	// Intn returns a random integer in [0, n). Panics if n <= 0.
	Intn(n int) int
}

type cryptoRandSource struct{}

// Intn returns a cryptographically secure random integer in [0, n).
func (cryptoRandSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("cryptoRandSource.Intn: n must be positive, got %d", n))
	}
	// rand.Int does not error when reading from rand.Reader.
	nBig, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(nBig.Int64())
}

// DefaultRandSource is the production source backed by crypto/rand.
var DefaultRandSource RandSource = cryptoRandSource{}
