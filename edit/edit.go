// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package edit defines the ground-truth edit model shared by the generator,
// the aggregator and the verifier, and the operations that apply an edit to
// an amplicon and move indels to their canonical (leftmost) placement.
package edit

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// Kind identifies the variant held by an Edit.
type Kind uint8

const (
	// None is an unedited read.
	None Kind = iota
	// Deletion removes Size bases starting at Pos.
	Deletion
	// Insertion splices New in front of amplicon position Pos.
	Insertion
	// Substitution rewrites one or more single positions, listed in Changes.
	Substitution
	// PrimeEdit replaces the span Orig at Pos with New.
	PrimeEdit
)

var kindNames = [...]string{
	None:         "none",
	Deletion:     "deletion",
	Insertion:    "insertion",
	Substitution: "substitution",
	PrimeEdit:    "prime_edit",
}

// String returns the name used in the edits TSV.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return None, errors.E(errors.Invalid, fmt.Sprintf("unknown edit type %q", s))
}

// Outcome labels the stochastic prime-editing outcome that produced an edit.
// It is empty for the other editing modes.
type Outcome string

const (
	OutcomePerfect   Outcome = "perfect"
	OutcomePartial   Outcome = "partial"
	OutcomeIndel     Outcome = "indel"
	OutcomeScaffold  Outcome = "scaffold"
	OutcomeFlapIndel Outcome = "flap_indel"
)

// Relaxed reports whether reads with this outcome are verified loosely:
// the aligner's representation of scaffold and flap products is not
// canonicalized by the generator.
func (o Outcome) Relaxed() bool {
	return o == OutcomeScaffold || o == OutcomeFlapIndel
}

// Change is one position of a Substitution edit.
type Change struct {
	Pos       int
	Orig, New byte
}

// Edit is a tagged variant describing the change applied to one synthetic
// read. Only the fields relevant to Kind are set:
//
//   Deletion:     Pos, Size, Orig
//   Insertion:    Pos, Size, New
//   Substitution: Changes (sorted by Pos)
//   PrimeEdit:    Pos, Orig, New, Outcome
//
// An Edit is a value; none of the operations in this package modify it.
type Edit struct {
	Kind    Kind
	Pos     int
	Size    int
	Orig    string
	New     string
	Changes []Change
	Outcome Outcome
}

// NewDeletion returns the deletion of amplicon[pos:pos+size].
func NewDeletion(amplicon string, pos, size int) Edit {
	return Edit{Kind: Deletion, Pos: pos, Size: size, Orig: amplicon[pos : pos+size]}
}

// NewInsertion returns the insertion of seq before amplicon position pos.
func NewInsertion(pos int, seq string) Edit {
	return Edit{Kind: Insertion, Pos: pos, Size: len(seq), New: seq}
}

// NewSubstitution returns a substitution edit. It returns a None edit if
// changes is empty.
func NewSubstitution(changes []Change) Edit {
	if len(changes) == 0 {
		return Edit{}
	}
	return Edit{Kind: Substitution, Pos: changes[0].Pos, Size: len(changes), Changes: changes}
}

// NewPrimeEdit returns a prime edit replacing orig at pos by seq.
func NewPrimeEdit(pos int, orig, seq string, outcome Outcome) Edit {
	return Edit{Kind: PrimeEdit, Pos: pos, Size: len(orig), Orig: orig, New: seq, Outcome: outcome}
}

// Delta returns the change in sequence length caused by the edit.
func (e Edit) Delta() int {
	switch e.Kind {
	case Deletion:
		return -e.Size
	case Insertion:
		return e.Size
	case PrimeEdit:
		return len(e.New) - len(e.Orig)
	}
	return 0
}

// String implements fmt.Stringer.
func (e Edit) String() string {
	switch e.Kind {
	case Deletion:
		return fmt.Sprintf("deletion(%d,%d,%s)", e.Pos, e.Size, e.Orig)
	case Insertion:
		return fmt.Sprintf("insertion(%d,%s)", e.Pos, e.New)
	case Substitution:
		parts := make([]string, len(e.Changes))
		for i, c := range e.Changes {
			parts[i] = fmt.Sprintf("%d:%c>%c", c.Pos, c.Orig, c.New)
		}
		return "substitution(" + strings.Join(parts, ",") + ")"
	case PrimeEdit:
		return fmt.Sprintf("prime_edit(%d,%s>%s,%s)", e.Pos, e.Orig, e.New, e.Outcome)
	}
	return "none"
}

// Validate checks the edit against the amplicon: positions are in range and
// the stored original sequence matches the amplicon at Pos.
func (e Edit) Validate(amplicon string) error {
	bad := func(format string, args ...interface{}) error {
		return errors.E(errors.Invalid, fmt.Sprintf("%v: "+format, append([]interface{}{e}, args...)...))
	}
	switch e.Kind {
	case None:
		return nil
	case Deletion:
		if e.Size <= 0 || e.Pos < 0 || e.Pos+e.Size > len(amplicon) {
			return bad("span out of range for amplicon of length %d", len(amplicon))
		}
		if len(e.Orig) != e.Size || amplicon[e.Pos:e.Pos+e.Size] != e.Orig {
			return bad("original sequence does not match amplicon %s", amplicon[e.Pos:e.Pos+e.Size])
		}
	case Insertion:
		if e.Pos < 0 || e.Pos > len(amplicon) {
			return bad("position out of range for amplicon of length %d", len(amplicon))
		}
		if e.Size <= 0 || len(e.New) != e.Size {
			return bad("inserted sequence length does not match size")
		}
	case Substitution:
		prev := -1
		for _, c := range e.Changes {
			if c.Pos <= prev || c.Pos >= len(amplicon) {
				return bad("position %d out of order or range", c.Pos)
			}
			if amplicon[c.Pos] != c.Orig {
				return bad("original base %c at %d does not match amplicon %c", c.Orig, c.Pos, amplicon[c.Pos])
			}
			prev = c.Pos
		}
	case PrimeEdit:
		end := e.Pos + len(e.Orig)
		if e.Pos < 0 || end > len(amplicon) {
			return bad("span out of range for amplicon of length %d", len(amplicon))
		}
		if amplicon[e.Pos:end] != e.Orig {
			return bad("original sequence does not match amplicon %s", amplicon[e.Pos:end])
		}
	default:
		return bad("unknown kind")
	}
	return nil
}

// Apply returns the amplicon with the edit applied. The edit must be valid
// for the amplicon.
func Apply(amplicon string, e Edit) string {
	switch e.Kind {
	case Deletion:
		return amplicon[:e.Pos] + amplicon[e.Pos+e.Size:]
	case Insertion:
		return amplicon[:e.Pos] + e.New + amplicon[e.Pos:]
	case Substitution:
		buf := []byte(amplicon)
		for _, c := range e.Changes {
			buf[c.Pos] = c.New
		}
		return string(buf)
	case PrimeEdit:
		return amplicon[:e.Pos] + e.New + amplicon[e.Pos+len(e.Orig):]
	}
	return amplicon
}

// SequencingError is a substitution introduced by the simulated sequencer,
// independent of the edit. Pos is the 0-based position in the output read.
type SequencingError struct {
	Pos       int
	Orig, New byte
}
