package generate

import (
	"fmt"
	"math/rand"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/editsim/dna"
	"github.com/grailbio/editsim/edit"
)

// NHEJOpts configures the NHEJ generator.
type NHEJOpts struct {
	// DeletionWeight is the probability that an edit is a deletion rather
	// than an insertion.
	DeletionWeight float64
	// MaxDeletion caps the geometric deletion size.
	MaxDeletion int
	// MaxInsertion caps the geometric insertion size.
	MaxInsertion int
}

// DefaultNHEJOpts holds the default NHEJ options.
var DefaultNHEJOpts = NHEJOpts{
	DeletionWeight: 0.75,
	MaxDeletion:    50,
	MaxInsertion:   10,
}

const (
	deletionSizeP  = 0.2
	insertionSizeP = 0.5
	maxJitter      = 2
)

func (o NHEJOpts) validate() error {
	if err := checkProb("deletion weight", o.DeletionWeight); err != nil {
		return err
	}
	if o.MaxDeletion < 1 || o.MaxInsertion < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("maximum indel sizes must be positive, got %d/%d",
			o.MaxDeletion, o.MaxInsertion))
	}
	return nil
}

// NHEJ generates small indels near the Cas9 cut site.
type NHEJ struct {
	amplicon string
	cut      int
	opts     NHEJOpts
}

// NewNHEJ returns an NHEJ generator for the given cut site.
func NewNHEJ(amplicon string, cut int, opts NHEJOpts) (*NHEJ, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(amplicon) == 0 {
		return nil, errors.E(errors.Invalid, "empty amplicon")
	}
	return &NHEJ{amplicon: amplicon, cut: cut, opts: opts}, nil
}

// Mode implements Generator.
func (g *NHEJ) Mode() Mode { return ModeNHEJ }

// Generate implements Generator. The position is the cut site plus a uniform
// jitter of up to two bases, clamped to the amplicon. The returned edit is
// left-aligned.
func (g *NHEJ) Generate(rng *rand.Rand) edit.Edit {
	pos := g.cut + rng.Intn(2*maxJitter+1) - maxJitter
	if pos < 0 {
		pos = 0
	}
	if pos > len(g.amplicon)-1 {
		pos = len(g.amplicon) - 1
	}
	return edit.LeftAlign(g.amplicon, indel(rng, g.amplicon, pos, g.opts))
}

// indel draws a deletion starting at pos or an insertion before pos.
// Deletions are truncated at the end of ref.
func indel(rng *rand.Rand, ref string, pos int, opts NHEJOpts) edit.Edit {
	if rng.Float64() < opts.DeletionWeight && pos < len(ref) {
		size := geometric(rng, deletionSizeP, opts.MaxDeletion)
		if pos+size > len(ref) {
			size = len(ref) - pos
		}
		return edit.NewDeletion(ref, pos, size)
	}
	size := geometric(rng, insertionSizeP, opts.MaxInsertion)
	return edit.NewInsertion(pos, dna.Random(rng, size))
}
