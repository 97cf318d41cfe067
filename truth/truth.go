// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package truth stores and summarizes the ground truth of a synthetic read
// set: the per-read edits TSV, and the aggregated variant calls written as
// VCF.
package truth

import (
	"fmt"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/editsim/edit"
)

// Record is the ground truth of one read.
type Record struct {
	Name   string
	Edit   edit.Edit
	Errors []edit.SequencingError
}

// VariantCall is an aggregated edit in VCF form. Pos is 1-based.
type VariantCall struct {
	Chrom    string
	Pos      int
	Ref, Alt string
	AF       float64
	Count    int
}

// variant is a distinct edit, or one position of a substitution edit.
type variant struct {
	pos       int
	kind      edit.Kind
	size      int
	orig, new string
	count     int
}

// Compare implements llrb.Comparable. Variants are ordered by amplicon
// position, then kind, size and sequences.
func (v *variant) Compare(c llrb.Comparable) int {
	o := c.(*variant)
	switch {
	case v.pos != o.pos:
		return v.pos - o.pos
	case v.kind != o.kind:
		return int(v.kind) - int(o.kind)
	case v.size != o.size:
		return v.size - o.size
	case v.orig != o.orig:
		if v.orig < o.orig {
			return -1
		}
		return 1
	case v.new != o.new:
		if v.new < o.new {
			return -1
		}
		return 1
	}
	return 0
}

// Aggregate counts identical edits across reads and converts them to variant
// calls on chrom. Substitution edits contribute one variant per changed
// position. AF is the count divided by the number of reads, edited or not.
// Calls are ordered by VCF position.
func Aggregate(amplicon, chrom string, edits []edit.Edit) []VariantCall {
	var tree llrb.Tree
	add := func(v variant) {
		if found := tree.Get(&v); found != nil {
			found.(*variant).count++
			return
		}
		v.count = 1
		tree.Insert(&v)
	}
	for _, e := range edits {
		switch e.Kind {
		case edit.None:
		case edit.Substitution:
			for _, c := range e.Changes {
				add(variant{pos: c.Pos, kind: edit.Substitution, size: 1, orig: string(c.Orig), new: string(c.New)})
			}
		default:
			add(variant{pos: e.Pos, kind: e.Kind, size: e.Size, orig: e.Orig, new: e.New})
		}
	}
	var calls []VariantCall
	tree.Do(func(c llrb.Comparable) bool {
		v := c.(*variant)
		call := toVCF(amplicon, v)
		call.Chrom = chrom
		call.Count = v.count
		call.AF = float64(v.count) / float64(len(edits))
		calls = append(calls, call)
		return false
	})
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Pos < calls[j].Pos })
	return calls
}

// toVCF converts an edit to VCF REF/ALT alleles. Indels carry the
// preceding reference base as anchor, or the following base for an edit at
// the start of the amplicon. Same-length prime edits are written without an
// anchor.
func toVCF(a string, v *variant) VariantCall {
	var orig, seq string
	switch v.kind {
	case edit.Deletion:
		orig = v.orig
	case edit.Insertion:
		seq = v.new
	case edit.Substitution:
		return VariantCall{Pos: v.pos + 1, Ref: v.orig, Alt: v.new}
	case edit.PrimeEdit:
		if len(v.orig) == len(v.new) {
			return VariantCall{Pos: v.pos + 1, Ref: v.orig, Alt: v.new}
		}
		orig, seq = v.orig, v.new
	default:
		panic(fmt.Sprintf("unexpected edit kind %v", v.kind))
	}
	if v.pos > 0 {
		anchor := a[v.pos-1 : v.pos]
		return VariantCall{Pos: v.pos, Ref: anchor + orig, Alt: anchor + seq}
	}
	end := v.pos + len(orig)
	if end >= len(a) {
		// Nothing left to anchor on.
		if seq == "" {
			seq = SymbolicDeletion
		}
		return VariantCall{Pos: 1, Ref: orig, Alt: seq}
	}
	anchor := a[end : end+1]
	return VariantCall{Pos: 1, Ref: orig + anchor, Alt: seq + anchor}
}
