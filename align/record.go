// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package align reconstructs the edits an aligner reports for a read from
// its CIGAR string and MD tag, and translates positions between reference
// and read coordinates.
package align

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Mapping describes where a translated position falls.
type Mapping uint8

const (
	// Mapped means the position has a counterpart in the other coordinate
	// space.
	Mapped Mapping = iota
	// OutsideAlignment means the position is outside the aligned span or
	// the read.
	OutsideAlignment
	// InDeletion means the reference position is deleted from the read.
	InDeletion
	// InInsertion means the read position is inserted relative to the
	// reference.
	InInsertion
	// SoftClipped means the read position is soft clipped.
	SoftClipped
)

var mappingNames = [...]string{
	Mapped:           "mapped",
	OutsideAlignment: "outside alignment",
	InDeletion:       "in deletion",
	InInsertion:      "in insertion",
	SoftClipped:      "soft clipped",
}

func (m Mapping) String() string {
	if int(m) < len(mappingNames) {
		return mappingNames[m]
	}
	return fmt.Sprintf("Mapping(%d)", m)
}

// Deletion is a reported deletion of Size reference bases starting at RefPos.
type Deletion struct {
	RefPos, Size int
	Seq          string
}

// Insertion is a reported insertion of Seq in front of reference position
// RefPos. Seq starts at read position ReadPos.
type Insertion struct {
	RefPos  int
	Seq     string
	ReadPos int
}

// Substitution is a reported mismatch at an aligned position.
type Substitution struct {
	RefPos            int
	RefBase, ReadBase byte
	ReadPos           int
}

// Record is one primary alignment. All positions are 0-based. Records are
// immutable; the edits are extracted once by NewRecord.
type Record struct {
	Name     string
	RefStart int
	Cigar    sam.Cigar
	MD       string
	Seq      string

	refEnd        int
	deletions     []Deletion
	insertions    []Insertion
	substitutions []Substitution

	// Indexed by read position.
	readRef []int
	readMap []Mapping
	// Indexed by reference position minus RefStart. refRead is -1 within
	// deletions. first and last hold the read offset when the walk first
	// arrives at and last leaves a reference position; the span between
	// them holds any insertion in front of that position.
	refRead     []int
	first, last []int
}

// NewRecord walks the CIGAR alongside the MD tag and extracts the reported
// deletions, insertions and substitutions. It fails when the CIGAR, MD tag
// and sequence disagree.
func NewRecord(name string, refStart int, cigar sam.Cigar, md, seq string) (*Record, error) {
	r := &Record{Name: name, RefStart: refStart, Cigar: cigar, MD: md, Seq: seq}
	fail := func(err error) (*Record, error) {
		return nil, errors.E(err, fmt.Sprintf("read %s, CIGAR %v", name, cigar))
	}
	ops, err := ParseMD(md)
	if err != nil {
		return fail(err)
	}
	var refLen, readLen int
	for _, co := range cigar {
		c := co.Type().Consumes()
		refLen += c.Reference * co.Len()
		readLen += c.Query * co.Len()
	}
	if refLen == 0 {
		return fail(errors.E(errors.Invalid, "no reference bases aligned"))
	}
	if readLen != len(seq) {
		return fail(errors.E(errors.Invalid, fmt.Sprintf("CIGAR covers %d read bases, sequence has %d", readLen, len(seq))))
	}
	r.refEnd = refStart + refLen
	r.readRef = make([]int, len(seq))
	r.readMap = make([]Mapping, len(seq))
	r.refRead = make([]int, refLen)
	r.first = make([]int, refLen+1)
	r.last = make([]int, refLen+1)
	for i := range r.first {
		r.first[i] = -1
	}

	var (
		cur = mdCursor{md: md, ops: ops}
		ref = refStart
		rd  = 0
	)
	mark := func() {
		i := ref - refStart
		if r.first[i] < 0 {
			r.first[i] = rd
		}
		r.last[i] = rd
	}
	for _, co := range cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarSoftClipped:
			for k := 0; k < n; k++ {
				r.readRef[rd+k] = -1
				r.readMap[rd+k] = SoftClipped
			}
			rd += n
		case sam.CigarHardClipped, sam.CigarPadded:
			// Neither consumes read or reference bases.
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for k := 0; k < n; k++ {
				mark()
				refBase, mismatch, err := cur.aligned()
				if err != nil {
					return fail(err)
				}
				if mismatch {
					r.substitutions = append(r.substitutions, Substitution{
						RefPos:   ref,
						RefBase:  upper(refBase),
						ReadBase: upper(seq[rd]),
						ReadPos:  rd,
					})
				}
				r.readRef[rd] = ref
				r.readMap[rd] = Mapped
				r.refRead[ref-refStart] = rd
				ref++
				rd++
			}
			mark()
		case sam.CigarInsertion:
			mark()
			r.insertions = append(r.insertions, Insertion{RefPos: ref, Seq: strings.ToUpper(seq[rd : rd+n]), ReadPos: rd})
			for k := 0; k < n; k++ {
				r.readRef[rd+k] = -1
				r.readMap[rd+k] = InInsertion
			}
			rd += n
			mark()
		case sam.CigarDeletion, sam.CigarSkipped:
			if co.Type() == sam.CigarDeletion {
				bases, err := cur.deletion(n)
				if err != nil {
					return fail(err)
				}
				r.deletions = append(r.deletions, Deletion{RefPos: ref, Size: n, Seq: strings.ToUpper(bases)})
			}
			for k := 0; k < n; k++ {
				mark()
				r.refRead[ref-refStart] = -1
				ref++
			}
			mark()
		default:
			return fail(errors.E(errors.Invalid, fmt.Sprintf("unsupported CIGAR operation %v", co)))
		}
	}
	if !cur.done() {
		return fail(cur.errorf("longer than the CIGAR"))
	}
	return r, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// RefEnd returns the reference position just past the alignment.
func (r *Record) RefEnd() int { return r.refEnd }

// Deletions returns the reported deletions in reference order.
func (r *Record) Deletions() []Deletion { return r.deletions }

// Insertions returns the reported insertions in reference order.
func (r *Record) Insertions() []Insertion { return r.insertions }

// Substitutions returns the reported mismatches in reference order.
func (r *Record) Substitutions() []Substitution { return r.substitutions }

// RefToRead translates a reference position to a read position. The
// position is only meaningful when the mapping is Mapped.
func (r *Record) RefToRead(refPos int) (int, Mapping) {
	if refPos < r.RefStart || refPos >= r.refEnd {
		return 0, OutsideAlignment
	}
	rd := r.refRead[refPos-r.RefStart]
	if rd < 0 {
		return 0, InDeletion
	}
	return rd, Mapped
}

// ReadToRef translates a read position to a reference position. The
// position is only meaningful when the mapping is Mapped.
func (r *Record) ReadToRef(readPos int) (int, Mapping) {
	if readPos < 0 || readPos >= len(r.Seq) {
		return 0, OutsideAlignment
	}
	if m := r.readMap[readPos]; m != Mapped {
		return 0, m
	}
	return r.readRef[readPos], Mapped
}

// IsSoftClipped reports whether the read position is soft clipped.
func (r *Record) IsSoftClipped(readPos int) (bool, Mapping) {
	if readPos < 0 || readPos >= len(r.Seq) {
		return false, OutsideAlignment
	}
	m := r.readMap[readPos]
	return m == SoftClipped, m
}

// ReadWindow returns the read bases aligned to the reference span
// [start, end), including insertions in front of start and in front of end.
// An empty span returns the insertion at that position, if any.
func (r *Record) ReadWindow(start, end int) (string, Mapping) {
	from, to, m := r.ReadSpan(start, end)
	if m != Mapped {
		return "", m
	}
	return r.Seq[from:to], Mapped
}

// ReadSpan returns the read interval [from, to) that ReadWindow(start, end)
// covers.
func (r *Record) ReadSpan(start, end int) (from, to int, m Mapping) {
	if start > end || start < r.RefStart || end > r.refEnd {
		return 0, 0, OutsideAlignment
	}
	from, to = r.first[start-r.RefStart], r.last[end-r.RefStart]
	if from < 0 || to < from {
		return 0, 0, OutsideAlignment
	}
	return from, to, Mapped
}
