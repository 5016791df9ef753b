// Package work implements C1: the CPU-bound transform shared by the sync
// and async endpoints. Grounded on original_source/src/app/work.py — an
// n-fold SHA-256 hash chain seeded with the input — ported verbatim in
// semantics so (input, iterations) -> digest is identical across languages.
package work

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/Amr-9/consuma/pkg/models"
)

// Compute runs iterations rounds of SHA-256 hashing starting from input.
// Pure and deterministic: identical (input, iterations) always yields an
// identical 64-hex-char digest. Safe to call from any goroutine; it holds
// no locks and performs no I/O.
func Compute(input []byte, iterations int) models.WorkResult {
	start := time.Now()

	digest := input
	for i := 0; i < iterations; i++ {
		sum := sha256.Sum256(digest)
		digest = sum[:]
	}

	elapsed := time.Since(start)
	return models.WorkResult{
		Result:     hex.EncodeToString(digest),
		DurationMs: float64(elapsed.Microseconds()) / 1000.0,
	}
}
