// Package noisebloom implements the Layer-0 scanner-noise bloom filter
// (C5): an approximate membership tagger over "{ip}:{payload}" keys,
// used to recognize repeat noise without remembering every payload
// ever seen. False positives (an extra tag) and false negatives (a
// missed tag) are both acceptable — this is a hint, not a gate, unless
// ProfileFlags.BloomDrop explicitly opts a caller into short-circuiting
// on it.
//
// The filter is a plain Kirsch-Mitzenmacher double-hashing
// construction over xxhash, packed into a fixed []uint64 bit array.
package noisebloom

import (
	"math"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Filter is a fixed-size, mutex-protected bloom filter.
type Filter struct {
	mu   sync.Mutex
	bits []uint64 // packed bit array, 64 bits per word
	m    uint64   // number of bits
	k    int      // number of hash functions
}

// New creates a Filter sized for expectedElements items at roughly
// falsePositiveRate false-positive probability, using the standard
// optimal-m/k formulas.
func New(expectedElements uint64, falsePositiveRate float64) *Filter {
	if expectedElements == 0 {
		expectedElements = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	m, k := optimalMK(expectedElements, falsePositiveRate)
	words := (m + 63) / 64

	return &Filter{
		bits: make([]uint64, words),
		m:    m,
		k:    k,
	}
}

func optimalMK(n uint64, p float64) (m uint64, k int) {
	// m = -(n * ln(p)) / (ln(2)^2); k = (m/n) * ln(2)
	const ln2Squared = 0.4804530139182014 // ln(2)^2
	const ln2 = 0.6931471805599453

	nf := float64(n)
	mf := -(nf * math.Log(p)) / ln2Squared
	if mf < 64 {
		mf = 64
	}
	m = uint64(mf)

	kf := (mf / nf) * ln2
	k = int(kf + 0.5)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return m, k
}

// key builds the "{ip}:{payload}" membership key.
func key(ip string, payload []byte) string {
	var b []byte
	b = append(b, ip...)
	b = append(b, ':')
	b = append(b, payload...)
	return string(b)
}

// hashes derives k independent-enough hash values from a single
// 64-bit xxhash digest via double hashing: h_i = h1 + i*h2.
func (f *Filter) hashes(s string) []uint64 {
	h1 := xxhash.Sum64String(s)
	h2 := xxhash.Sum64String(s + strconv.FormatUint(h1, 16))

	out := make([]uint64, f.k)
	for i := 0; i < f.k; i++ {
		out[i] = (h1 + uint64(i)*h2) % f.m
	}
	return out
}

// MarkNoise inserts the (ip, payload) key into the filter.
func (f *Filter) MarkNoise(ip string, payload []byte) {
	s := key(ip, payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, bit := range f.hashes(s) {
		f.bits[bit/64] |= 1 << (bit % 64)
	}
}

// IsProbableNoise reports whether (ip, payload) was probably marked
// noise before. A true result is a hint, never proof.
func (f *Filter) IsProbableNoise(ip string, payload []byte) bool {
	s := key(ip, payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, bit := range f.hashes(s) {
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}
