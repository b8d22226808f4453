// ABOUTME: Camelot wheel harmonic mixing utilities shared by the feature extractor and playlist engine
// ABOUTME: Parses Camelot codes, maps them to musical key names, and scores harmonic compatibility

// Package camelot implements the Camelot wheel model of harmonic mixing:
// parsing "8A"-style codes, converting to and from standard key names, and
// scoring how compatible two keys are for a DJ transition.
package camelot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"crateforge/internal/apperror"
)

// Key represents a parsed Camelot code: a wheel position (1-12) and a mode
// letter, 'A' for minor or 'B' for major.
type Key struct {
	Number int
	Letter byte
}

var codeRegex = regexp.MustCompile(`^(\d{1,2})([AB])$`)

// Harmonic distance classes, in increasing order of mixing risk.
const (
	DistancePerfect      = 0  // identical key
	DistanceExcellent    = 1  // relative major/minor, or ±1 on the wheel at the same mode
	DistanceDramatic     = 2  // parallel major/minor: same root, opposite mode
	DistanceIncompatible = 10 // anything else
)

// minorNames and majorNames give the conventional key name for each wheel
// position, indexed 1-12 (index 0 unused). Both sides use the mix of flat
// and sharp spellings found on common Camelot wheel charts.
var minorNames = [13]string{
	"", "Abm", "Ebm", "Bbm", "Fm", "Cm", "Gm",
	"Dm", "Am", "Em", "Bm", "F#m", "C#m",
}

var majorNames = [13]string{
	"", "B", "F#", "Db", "Ab", "Eb", "Bb",
	"F", "C", "G", "D", "A", "E",
}

var nameToKey = buildNameIndex()

func buildNameIndex() map[string]Key {
	idx := make(map[string]Key, 24)
	for n := 1; n <= 12; n++ {
		idx[minorNames[n]] = Key{Number: n, Letter: 'A'}
		idx[majorNames[n]] = Key{Number: n, Letter: 'B'}
	}

	return idx
}

// Parse parses a Camelot code such as "8A" or "12B".
func Parse(code string) (Key, error) {
	if code == "" {
		return Key{}, apperror.InvalidArgumentf("empty camelot code")
	}

	m := codeRegex.FindStringSubmatch(code)
	if m == nil {
		return Key{}, apperror.InvalidArgumentf("invalid camelot code: %q", code)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > 12 {
		return Key{}, apperror.InvalidArgumentf("invalid camelot wheel number: %q", m[1])
	}

	return Key{Number: n, Letter: m[2][0]}, nil
}

// String renders the Key back to its Camelot code, e.g. "8A".
func (k Key) String() string {
	return fmt.Sprintf("%d%c", k.Number, k.Letter)
}

// IsZero reports whether k is the unset Key value.
func (k Key) IsZero() bool {
	return k.Number == 0
}

// MarshalJSON renders k as its Camelot code string (e.g. "8A"), matching
// §6's on-disk CacheEntry schema; the unset Key marshals to "".
func (k Key) MarshalJSON() ([]byte, error) {
	if k.IsZero() {
		return json.Marshal("")
	}

	return json.Marshal(k.String())
}

// UnmarshalJSON parses a Camelot code string written by MarshalJSON; ""
// decodes to the unset Key.
func (k *Key) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}

	if code == "" {
		*k = Key{}
		return nil
	}

	parsed, err := Parse(code)
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}

// KeyName converts k to the conventional musical key name, e.g. "Am" or "C".
func (k Key) KeyName() (string, error) {
	if k.Number < 1 || k.Number > 12 {
		return "", apperror.InvalidArgumentf("camelot number %d out of range", k.Number)
	}

	switch k.Letter {
	case 'A':
		return minorNames[k.Number], nil
	case 'B':
		return majorNames[k.Number], nil
	default:
		return "", apperror.InvalidArgumentf("invalid camelot letter: %q", k.Letter)
	}
}

// FromKeyName converts a musical key name such as "Am" or "Db" to its
// Camelot wheel position. Returns apperror.NotFound if the name isn't
// recognized.
func FromKeyName(name string) (Key, error) {
	k, ok := nameToKey[name]
	if !ok {
		return Key{}, apperror.NotFoundf("unrecognized key name: %q", name)
	}

	return k, nil
}

// Distance scores the harmonic compatibility of a transition from k1 to k2
// using the Camelot wheel rules: identical keys are perfect, relative
// major/minor and adjacent positions on the same ring are excellent, the
// parallel major/minor (same root, opposite mode) is a dramatic but valid
// mood shift, and everything else is treated as incompatible.
func Distance(k1, k2 Key) int {
	if k1.IsZero() || k2.IsZero() {
		return DistanceIncompatible
	}

	if k1.Number == k2.Number && k1.Letter == k2.Letter {
		return DistancePerfect
	}

	if k1.Number == k2.Number {
		return DistanceExcellent
	}

	diff := abs(k1.Number - k2.Number)
	circular := min(diff, 12-diff)

	if circular == 1 && k1.Letter == k2.Letter {
		return DistanceExcellent
	}

	if IsParallelMajorMinor(k1, k2) {
		return DistanceDramatic
	}

	return DistanceIncompatible
}

// Neighbors returns the set of Camelot codes that mix well from k: the key
// itself, its relative major/minor, its two adjacent positions on the same
// ring, and its parallel major/minor.
func Neighbors(k Key) []Key {
	if k.IsZero() {
		return nil
	}

	out := []Key{k, {Number: k.Number, Letter: oppositeLetter(k.Letter)}}

	for _, delta := range [2]int{-1, 1} {
		n := ((k.Number-1+delta+12)%12 + 12) % 12
		out = append(out, Key{Number: n + 1, Letter: k.Letter})
	}

	if parallel, ok := parallelOf(k); ok {
		out = append(out, parallel)
	}

	return out
}

// IsParallelMajorMinor reports whether k1 and k2 share a root note but
// differ in mode, e.g. C major (8B) and C minor (5A).
func IsParallelMajorMinor(k1, k2 Key) bool {
	if k1.IsZero() || k2.IsZero() || k1.Letter == k2.Letter {
		return false
	}

	parallel, ok := parallelOf(k1)
	return ok && parallel.Number == k2.Number
}

func parallelOf(k Key) (Key, bool) {
	switch k.Letter {
	case 'A':
		return Key{Number: (k.Number+2)%12 + 1, Letter: 'B'}, true
	case 'B':
		return Key{Number: (k.Number+8)%12 + 1, Letter: 'A'}, true
	default:
		return Key{}, false
	}
}

func oppositeLetter(l byte) byte {
	if l == 'A' {
		return 'B'
	}

	return 'A'
}

func abs(x int) int {
	if x < 0 {
		return -x
	}

	return x
}
