// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dna

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
)

// Bases lists the four canonical nucleotides in the order used for random
// draws.
const Bases = "ACGT"

// complementTable maps 'A'/'a' to 'T', 'C'/'c' to 'G', 'G'/'g' to 'C',
// 'T'/'t' to 'A', and everything else to 'N'.
var complementTable = func() (t [256]byte) {
	for i := range t {
		t[i] = 'N'
	}
	for _, p := range [][2]byte{{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'}} {
		t[p[0]] = p[1]
		t[p[0]|0x20] = p[1]
	}
	return
}()

// Complement returns the complement of a single base, capitalized.
func Complement(b byte) byte {
	return complementTable[b]
}

// ReverseComplement returns the capitalized reverse complement of seq.
// Characters outside ACGTacgt become 'N'.
func ReverseComplement(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for idx, invIdx := 0, n-1; idx != n; idx, invIdx = idx+1, invIdx-1 {
		out[idx] = complementTable[seq[invIdx]]
	}
	return string(out)
}

// BaseIndex returns the position of b in Bases, or -1 for non-ACGT input.
func BaseIndex(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	}
	return -1
}

// OtherBase draws a base uniformly from the three bases that differ from b.
// For non-ACGT input, all four bases are candidates.
func OtherBase(rng *rand.Rand, b byte) byte {
	cur := BaseIndex(b)
	if cur < 0 {
		return Bases[rng.Intn(4)]
	}
	n := rng.Intn(3)
	if n >= cur {
		n++
	}
	return Bases[n]
}

// Random returns a uniformly random ACGT sequence of the given length.
func Random(rng *rand.Rand, length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = Bases[rng.Intn(4)]
	}
	return string(buf)
}

// Validate checks that seq, ignoring case, only contains characters from the
// allowed alphabet. The returned error has kind errors.Invalid and names the
// offending characters.
func Validate(seq, name, allowed string) error {
	var bad map[rune]bool
	for _, c := range strings.ToUpper(seq) {
		if !strings.ContainsRune(allowed, c) {
			if bad == nil {
				bad = map[rune]bool{}
			}
			bad[c] = true
		}
	}
	if bad == nil {
		return nil
	}
	chars := make([]string, 0, len(bad))
	for c := range bad {
		chars = append(chars, fmt.Sprintf("%q", c))
	}
	sort.Strings(chars)
	return errors.E(errors.Invalid, fmt.Sprintf("%s contains invalid characters: %s (allowed: %s)",
		name, strings.Join(chars, ", "), allowed))
}
