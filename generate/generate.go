// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package generate draws random ground-truth edits for the three supported
// editing technologies: Cas9 nuclease repair (NHEJ), base editing and prime
// editing. Generators are immutable after construction and may be shared by
// goroutines that each own their random source.
package generate

import (
	"fmt"
	"math/rand"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/guide"
)

// Mode selects the editing technology.
type Mode string

const (
	ModeNHEJ      Mode = "nhej"
	ModeBaseEdit  Mode = "base-edit"
	ModePrimeEdit Mode = "prime-edit"
)

// ParseMode converts a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNHEJ, ModeBaseEdit, ModePrimeEdit:
		return m, nil
	}
	return "", errors.E(errors.Invalid, fmt.Sprintf("unknown editing mode %q (want %s, %s or %s)",
		s, ModeNHEJ, ModeBaseEdit, ModePrimeEdit))
}

// Generator draws one edit per call. Generate may return a None edit when
// the technology leaves the read unchanged.
type Generator interface {
	Mode() Mode
	Generate(rng *rand.Rand) edit.Edit
}

// Opts bundles the per-mode options; only the member matching the selected
// mode is consulted.
type Opts struct {
	NHEJ      NHEJOpts
	BaseEdit  BaseEditOpts
	PrimeEdit PrimeEditOpts
}

// DefaultOpts holds the default options of every mode.
var DefaultOpts = Opts{
	NHEJ:      DefaultNHEJOpts,
	BaseEdit:  DefaultBaseEditOpts,
	PrimeEdit: DefaultPrimeEditOpts,
}

// New constructs the generator for mode. cut is the cut site computed by
// guide.CutSite for locus.
func New(mode Mode, amplicon string, locus guide.Locus, cut int, opts Opts) (Generator, error) {
	switch mode {
	case ModeNHEJ:
		return NewNHEJ(amplicon, cut, opts.NHEJ)
	case ModeBaseEdit:
		return NewBaseEditor(amplicon, locus, opts.BaseEdit)
	case ModePrimeEdit:
		return NewPrimeEditor(amplicon, locus, cut, opts.PrimeEdit)
	}
	_, err := ParseMode(string(mode))
	return nil, err
}

// geometric returns a size >= 1 that keeps growing while a uniform draw
// exceeds p, up to max.
func geometric(rng *rand.Rand, p float64, max int) int {
	size := 1
	for rng.Float64() > p && size < max {
		size++
	}
	return size
}

func checkProb(name string, p float64) error {
	if p < 0 || p > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s must be between 0 and 1, got %v", name, p))
	}
	return nil
}
