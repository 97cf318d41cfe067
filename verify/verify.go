// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package verify checks the edits an aligner reports for synthetic reads
// against their ground truth.
package verify

import (
	"fmt"
	"sort"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/editsim/align"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/truth"
)

// windowPad is the number of reference bases on each side of a prime edit
// that are compared along with the edited span, so that the comparison does
// not depend on where the aligner places gaps inside the edit.
const windowPad = 5

// ReadResult is the verification outcome of one read.
type ReadResult struct {
	Name       string
	Mismatches []string
	Warnings   []string
}

// Passed reports whether the read has no mismatches. Warnings do not fail a
// read.
func (r *ReadResult) Passed() bool { return len(r.Mismatches) == 0 }

// checker verifies one read. errs holds the sequencing errors that have not
// been accounted for yet, keyed by read position.
type checker struct {
	amplicon string
	truth    truth.Record
	rec      *align.Record
	res      ReadResult

	relaxed bool
	errs    map[int]edit.SequencingError
	// Reference positions of aligner substitutions that are explained.
	explained map[int]bool
	// [lo, hi) is the reference window of a prime edit; lo > hi when unset.
	lo, hi int
}

// Check compares the alignment rec of a read with its ground truth t.
func Check(amplicon string, t truth.Record, rec *align.Record) ReadResult {
	c := &checker{
		amplicon:  amplicon,
		truth:     t,
		rec:       rec,
		res:       ReadResult{Name: t.Name},
		relaxed:   t.Edit.Kind == edit.PrimeEdit && t.Edit.Outcome.Relaxed(),
		errs:      make(map[int]edit.SequencingError, len(t.Errors)),
		explained: map[int]bool{},
		lo:        1,
		hi:        0,
	}
	if rec.RefEnd() > len(amplicon) {
		c.mismatch("alignment [%d,%d) extends past the %dbp reference", rec.RefStart, rec.RefEnd(), len(amplicon))
		return c.res
	}
	for _, e := range t.Errors {
		c.errs[e.Pos] = e
	}
	e := t.Edit
	switch e.Kind {
	case edit.None:
		if n := len(rec.Deletions()) + len(rec.Insertions()); n > 0 {
			c.mismatch("expected no indels, found deletions %v insertions %v", rec.Deletions(), rec.Insertions())
		}
	case edit.Deletion:
		c.checkDeletion(e)
	case edit.Insertion:
		c.checkInsertion(e)
	case edit.Substitution:
		if n := len(rec.Deletions()) + len(rec.Insertions()); n > 0 {
			c.mismatch("expected no indels, found deletions %v insertions %v", rec.Deletions(), rec.Insertions())
		}
		for _, ch := range e.Changes {
			c.checkChange(ch)
		}
	case edit.PrimeEdit:
		c.checkPrimeEdit(e)
	}
	c.checkErrors()
	c.checkUnexplained()
	return c.res
}

func (c *checker) mismatch(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if c.relaxed {
		c.res.Warnings = append(c.res.Warnings, msg+" ("+string(c.truth.Edit.Outcome)+")")
		return
	}
	c.res.Mismatches = append(c.res.Mismatches, msg)
}

func (c *checker) warn(format string, args ...interface{}) {
	c.res.Warnings = append(c.res.Warnings, fmt.Sprintf(format, args...))
}

func (c *checker) inWindow(refPos int) bool {
	return refPos >= c.lo && refPos < c.hi
}

// atEdge reports whether the indel e cannot show up as a gap in the
// alignment: it starts at or before the first aligned base, at or after the
// last one, or it deletes through the end of the amplicon. Aligners clip or
// drop such indels.
func (c *checker) atEdge(e edit.Edit) bool {
	switch {
	case e.Pos <= c.rec.RefStart, e.Pos >= c.rec.RefEnd():
		return true
	case e.Kind == edit.Deletion && e.Pos+e.Size >= len(c.amplicon):
		return true
	}
	return false
}

// revert undoes the known sequencing errors in the read bases
// seq = rec.Seq[from:from+len(seq)] and marks them as accounted for.
func (c *checker) revert(seq []byte, from int) {
	for i := range seq {
		if e, ok := c.errs[from+i]; ok {
			seq[i] = e.Orig
			delete(c.errs, from+i)
		}
	}
}

// shiftBoundary returns the read position of the base that an aligner
// aligns across the junction of e when it places e at alignedPos, one base
// away from e.Pos.
func shiftBoundary(e edit.Edit, alignedPos int) int {
	switch {
	case alignedPos > e.Pos:
		return e.Pos
	case e.Kind == edit.Insertion:
		return e.Pos + e.Size - 1
	default:
		return e.Pos - 1
	}
}

// absorbed reports whether the aligner placed e at alignedPos, one base away
// from its true position, because of a sequencing error at the junction. The
// error is marked as accounted for.
func (c *checker) absorbed(e edit.Edit, alignedPos int) bool {
	if alignedPos != e.Pos-1 && alignedPos != e.Pos+1 {
		return false
	}
	rp := shiftBoundary(e, alignedPos)
	se, ok := c.errs[rp]
	if !ok {
		return false
	}
	delete(c.errs, rp)
	c.warn("%v placed at %d, absorbing sequencing error %c>%c at read %d", e, alignedPos, se.Orig, se.New, rp)
	return true
}

func (c *checker) checkDeletion(e edit.Edit) {
	dels := c.rec.Deletions()
	if ins := c.rec.Insertions(); len(ins) > 0 {
		c.mismatch("expected %v, found insertions %v", e, ins)
	}
	switch {
	case len(dels) == 0:
		if c.atEdge(e) {
			c.warn("%v is at the edge of the alignment [%d,%d)", e, c.rec.RefStart, c.rec.RefEnd())
			return
		}
		c.mismatch("expected %v, found no deletion", e)
	case len(dels) > 1:
		c.mismatch("expected %v, found %d deletions %v", e, len(dels), dels)
	default:
		d := dels[0]
		switch {
		case d.RefPos == e.Pos && d.Size == e.Size:
			if d.Seq != e.Orig {
				c.mismatch("deletion at %d removes %s, expected %s", d.RefPos, d.Seq, e.Orig)
			}
		case d.Size == e.Size && c.absorbed(e, d.RefPos):
		default:
			c.mismatch("expected %v, found deletion of %d at %d", e, d.Size, d.RefPos)
		}
	}
}

func (c *checker) checkInsertion(e edit.Edit) {
	ins := c.rec.Insertions()
	if dels := c.rec.Deletions(); len(dels) > 0 {
		c.mismatch("expected %v, found deletions %v", e, dels)
	}
	switch {
	case len(ins) == 0:
		if c.atEdge(e) {
			c.warn("%v is at the edge of the alignment [%d,%d)", e, c.rec.RefStart, c.rec.RefEnd())
			return
		}
		c.mismatch("expected %v, found no insertion", e)
	case len(ins) > 1:
		c.mismatch("expected %v, found %d insertions %v", e, len(ins), ins)
	default:
		in := ins[0]
		switch {
		case in.RefPos == e.Pos && len(in.Seq) == e.Size:
			seq := []byte(in.Seq)
			c.revert(seq, in.ReadPos)
			if string(seq) != e.New {
				c.mismatch("insertion at %d is %s, expected %s", in.RefPos, seq, e.New)
			}
		case len(in.Seq) == e.Size && c.absorbed(e, in.RefPos):
			for rp := in.ReadPos; rp < in.ReadPos+len(in.Seq); rp++ {
				delete(c.errs, rp)
			}
		default:
			c.mismatch("expected %v, found insertion %s at %d", e, in.Seq, in.RefPos)
		}
	}
}

// checkChange checks one substituted base. A sequencing error at the same
// read position replaces the expected base.
func (c *checker) checkChange(ch edit.Change) {
	rp, m := c.rec.RefToRead(ch.Pos)
	if m != align.Mapped {
		c.warn("substitution %c>%c at %d is %v", ch.Orig, ch.New, ch.Pos, m)
		return
	}
	want := ch.New
	if e, ok := c.errs[rp]; ok {
		want = e.New
		delete(c.errs, rp)
	}
	c.expectBase(ch.Pos, ch.Orig, want)
}

// expectBase checks that the read carries base want at reference position
// refPos, whose reference base is orig.
func (c *checker) expectBase(refPos int, orig, want byte) {
	sub, found := c.substitution(refPos)
	if want == orig {
		if found {
			c.mismatch("unexpected substitution %c>%c at %d", sub.RefBase, sub.ReadBase, refPos)
		}
		return
	}
	switch {
	case !found:
		c.mismatch("missing substitution %c>%c at %d", orig, want, refPos)
	case sub.ReadBase != want || sub.RefBase != orig:
		c.mismatch("substitution at %d is %c>%c, expected %c>%c", refPos, sub.RefBase, sub.ReadBase, orig, want)
	}
}

func (c *checker) substitution(refPos int) (align.Substitution, bool) {
	subs := c.rec.Substitutions()
	i := sort.Search(len(subs), func(i int) bool { return subs[i].RefPos >= refPos })
	if i < len(subs) && subs[i].RefPos == refPos {
		c.explained[refPos] = true
		return subs[i], true
	}
	return align.Substitution{}, false
}

// checkPrimeEdit compares the read bases aligned to the edited span, padded
// with unedited flanks, against the expected product.
func (c *checker) checkPrimeEdit(e edit.Edit) {
	start, end := e.Pos, e.Pos+len(e.Orig)
	if start < c.rec.RefStart || end > c.rec.RefEnd() {
		c.warn("prime edit window [%d,%d) is outside the alignment [%d,%d)", start, end, c.rec.RefStart, c.rec.RefEnd())
		return
	}
	lo, hi := start-windowPad, end+windowPad
	if lo < c.rec.RefStart {
		lo = c.rec.RefStart
	}
	if hi > c.rec.RefEnd() {
		hi = c.rec.RefEnd()
	}
	c.lo, c.hi = lo, hi
	from, to, m := c.rec.ReadSpan(lo, hi)
	if m != align.Mapped {
		c.warn("prime edit window [%d,%d) is %v", start, end, m)
		return
	}
	got := []byte(c.rec.Seq[from:to])
	c.revert(got, from)
	want := c.amplicon[lo:start] + e.New + c.amplicon[end:hi]
	if string(got) != want {
		c.mismatch("prime edit window [%d,%d) reads %s, expected %s (edit distance %d)",
			lo, hi, got, want, matchr.Levenshtein(string(got), want))
	}
	for _, d := range c.rec.Deletions() {
		if d.RefPos+d.Size <= lo || d.RefPos >= hi {
			c.mismatch("unexpected deletion of %d at %d outside the prime edit", d.Size, d.RefPos)
		}
	}
	for _, in := range c.rec.Insertions() {
		if in.RefPos < lo || in.RefPos > hi {
			c.mismatch("unexpected insertion %s at %d outside the prime edit", in.Seq, in.RefPos)
		}
	}
}

// checkErrors checks that every remaining sequencing error is reported as a
// substitution.
func (c *checker) checkErrors() {
	rps := make([]int, 0, len(c.errs))
	for rp := range c.errs {
		rps = append(rps, rp)
	}
	sort.Ints(rps)
	for _, rp := range rps {
		e := c.errs[rp]
		refPos, m := c.rec.ReadToRef(rp)
		if m != align.Mapped {
			c.warn("sequencing error %c>%c at read %d is %v", e.Orig, e.New, rp, m)
			continue
		}
		if c.inWindow(refPos) {
			continue
		}
		c.expectBase(refPos, c.amplicon[refPos], e.New)
	}
}

// checkUnexplained reports aligner substitutions that neither an edit nor a
// sequencing error accounts for.
func (c *checker) checkUnexplained() {
	for _, s := range c.rec.Substitutions() {
		if c.explained[s.RefPos] || c.inWindow(s.RefPos) {
			continue
		}
		c.mismatch("unexpected substitution %c>%c at %d", s.RefBase, s.ReadBase, s.RefPos)
	}
}
