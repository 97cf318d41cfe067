// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package synth simulates amplicon sequencing of an edited cell population.
// Each read is either the reference amplicon or the amplicon carrying a
// randomly generated edit, optionally trimmed, with random substitution
// errors on top.
package synth

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"blainsmith.com/go/seahash"
	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/editsim/dna"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/encoding/fastq"
	"github.com/grailbio/editsim/generate"
	"github.com/grailbio/editsim/guide"
	"github.com/grailbio/editsim/truth"
)

// Opts controls Simulate.
type Opts struct {
	// AmpliconName is the contig name used in the VCF.
	AmpliconName string
	NumReads     int
	// EditRate is the probability that a read is selected for editing.
	EditRate float64
	// ErrorRate is the per-base substitution error probability.
	ErrorRate float64
	// ReadLength trims reads to at most this many bases. Zero keeps the
	// full edited amplicon.
	ReadLength     int
	Seed           int64
	CleavageOffset int
	Mode           generate.Mode
	Generate       generate.Opts
	// Parallelism is the number of shards reads are generated in. Output is
	// reproducible for a fixed (Seed, Parallelism) pair.
	Parallelism int
	// Quality is the Phred+33 character used for every base.
	Quality byte
	// VCFGzip bgzips the VCF written by WriteOutputs.
	VCFGzip bool
}

// DefaultOpts holds the default simulation options.
var DefaultOpts = Opts{
	AmpliconName:   "AMPLICON",
	NumReads:       10000,
	EditRate:       0.3,
	ErrorRate:      0.001,
	Seed:           42,
	CleavageOffset: guide.DefaultCleavageOffset,
	Mode:           generate.ModeNHEJ,
	Generate:       generate.DefaultOpts,
	Parallelism:    1,
	Quality:        'I',
}

// Read is a synthetic read together with its ground truth.
type Read struct {
	Name      string
	Seq, Qual string
	Edit      edit.Edit
	// Errors are the sequencing errors, at output read positions.
	Errors []edit.SequencingError
}

// FASTQ returns the read as a FASTQ record.
func (r *Read) FASTQ() fastq.Read {
	return fastq.Read{ID: "@" + r.Name, Seq: r.Seq, Unk: "+", Qual: r.Qual}
}

// Truth returns the ground truth record of the read.
func (r *Read) Truth() truth.Record {
	return truth.Record{Name: r.Name, Edit: r.Edit, Errors: r.Errors}
}

// Stats summarizes a simulation.
type Stats struct {
	Total  int
	Edited int
	// Unedited counts reads left at the reference, including
	// SelectedUnconverted.
	Unedited int
	// SelectedUnconverted counts reads selected for editing for which the
	// generator produced no change. Only base editing does this.
	SelectedUnconverted int
	ByKind              map[edit.Kind]int
	ByOutcome           map[edit.Outcome]int
	SequencingErrors    int
	// Frameshifts counts edited reads whose length change is not a
	// multiple of three.
	Frameshifts int
	// BaseEditTargets is the number of convertible bases in the editing
	// window. It is zero outside base editing mode.
	BaseEditTargets int
	Locus           guide.Locus
	CutSite         int
	// Digest is a seahash of the read sequences in order.
	Digest uint64
}

// Result is the output of Simulate.
type Result struct {
	Amplicon string
	Reads    []Read
	Stats    Stats
	// Intent is the intended prime edit; nil for other modes.
	Intent *generate.Intent
}

// Validate checks the simulation inputs.
func Validate(amplicon, guideSeq string, opts Opts) error {
	if len(amplicon) == 0 {
		return errors.E(errors.Invalid, "empty amplicon")
	}
	if err := dna.Validate(amplicon, "amplicon", "ACGTN"); err != nil {
		return err
	}
	if len(guideSeq) == 0 {
		return errors.E(errors.Invalid, "empty guide")
	}
	if err := dna.Validate(guideSeq, "guide", "ACGT"); err != nil {
		return err
	}
	for _, p := range []struct {
		name string
		v    float64
	}{{"edit rate", opts.EditRate}, {"error rate", opts.ErrorRate}} {
		if p.v < 0 || p.v > 1 {
			return errors.E(errors.Invalid, fmt.Sprintf("%s must be between 0 and 1, got %v", p.name, p.v))
		}
	}
	if opts.NumReads < 0 || opts.ReadLength < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("read count and length must not be negative, got %d/%d",
			opts.NumReads, opts.ReadLength))
	}
	guide.CheckLength(guideSeq)
	return nil
}

// Simulate generates opts.NumReads reads of the amplicon edited at the
// guide.
func Simulate(amplicon, guideSeq string, opts Opts) (*Result, error) {
	if err := Validate(amplicon, guideSeq, opts); err != nil {
		return nil, err
	}
	amplicon = strings.ToUpper(amplicon)
	locus, err := guide.Find(amplicon, guideSeq)
	if err != nil {
		return nil, err
	}
	cut := guide.CutSite(locus, opts.CleavageOffset)
	gen, err := generate.New(opts.Mode, amplicon, locus, cut, opts.Generate)
	if err != nil {
		return nil, err
	}
	res := &Result{Amplicon: amplicon, Reads: make([]Read, opts.NumReads)}
	var targets int
	if be, ok := gen.(*generate.BaseEditor); ok {
		targets = be.Targets()
	}
	if pe, ok := gen.(*generate.PrimeEditor); ok {
		intent := pe.Intent()
		res.Intent = &intent
	}

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > opts.NumReads && opts.NumReads > 0 {
		parallelism = opts.NumReads
	}
	shardStats := make([]Stats, parallelism)
	err = traverse.Each(parallelism, func(shard int) error {
		start := shard * opts.NumReads / parallelism
		end := (shard + 1) * opts.NumReads / parallelism
		rng := rand.New(rand.NewSource(int64(farm.Hash64WithSeed([]byte(strconv.Itoa(shard)), uint64(opts.Seed)))))
		stats := newStats()
		for i := start; i < end; i++ {
			r := &res.Reads[i]
			simulateRead(rng, amplicon, gen, opts, i, r, &stats)
		}
		shardStats[shard] = stats
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Stats = newStats()
	for _, s := range shardStats {
		res.Stats.merge(s)
	}
	res.Stats.Total = opts.NumReads
	res.Stats.Locus = locus
	res.Stats.CutSite = cut
	res.Stats.BaseEditTargets = targets
	h := seahash.New()
	for i := range res.Reads {
		h.Write([]byte(res.Reads[i].Seq)) // nolint: errcheck
		h.Write([]byte{'\n'})             // nolint: errcheck
	}
	res.Stats.Digest = h.Sum64()
	return res, nil
}

func simulateRead(rng *rand.Rand, amplicon string, gen generate.Generator, opts Opts, i int, r *Read, stats *Stats) {
	r.Name = "read_" + strconv.Itoa(i)
	seq := amplicon
	if rng.Float64() < opts.EditRate {
		r.Edit = gen.Generate(rng)
		if r.Edit.Kind == edit.None {
			stats.SelectedUnconverted++
		} else {
			seq = edit.Apply(amplicon, r.Edit)
		}
	}
	if r.Edit.Kind == edit.None {
		stats.Unedited++
	} else {
		stats.Edited++
		stats.ByKind[r.Edit.Kind]++
		if r.Edit.Outcome != "" {
			stats.ByOutcome[r.Edit.Outcome]++
		}
		if r.Edit.Delta()%3 != 0 {
			stats.Frameshifts++
		}
	}
	fq := fastq.NewRead(r.Name, seq, opts.Quality)
	if opts.ReadLength > 0 {
		fq.Trim(opts.ReadLength)
	}
	r.Seq, r.Errors = AddSequencingErrors(rng, fq.Seq, opts.ErrorRate)
	r.Qual = fq.Qual
	stats.SequencingErrors += len(r.Errors)
	log.Debug.Printf("%s: %v, %d sequencing errors", r.Name, r.Edit, len(r.Errors))
}

func newStats() Stats {
	return Stats{
		ByKind:    map[edit.Kind]int{},
		ByOutcome: map[edit.Outcome]int{},
	}
}

func (s *Stats) merge(o Stats) {
	s.Edited += o.Edited
	s.Unedited += o.Unedited
	s.SelectedUnconverted += o.SelectedUnconverted
	s.SequencingErrors += o.SequencingErrors
	s.Frameshifts += o.Frameshifts
	for k, n := range o.ByKind {
		s.ByKind[k] += n
	}
	for k, n := range o.ByOutcome {
		s.ByOutcome[k] += n
	}
}

// AddSequencingErrors flips each base of seq to a different base with
// probability rate and records every flip at its position in the returned
// sequence.
func AddSequencingErrors(rng *rand.Rand, seq string, rate float64) (string, []edit.SequencingError) {
	if rate == 0 {
		return seq, nil
	}
	var (
		buf  []byte
		errs []edit.SequencingError
	)
	for i := 0; i < len(seq); i++ {
		if rng.Float64() >= rate {
			continue
		}
		if buf == nil {
			buf = []byte(seq)
		}
		b := dna.OtherBase(rng, seq[i])
		errs = append(errs, edit.SequencingError{Pos: i, Orig: seq[i], New: b})
		buf[i] = b
	}
	if buf == nil {
		return seq, nil
	}
	return string(buf), errs
}

// RandomAmplicon returns a random amplicon of the given length with a random
// guide of length guideLen embedded in its middle.
func RandomAmplicon(rng *rand.Rand, length, guideLen int) (amplicon, guideSeq string, err error) {
	if guideLen < 1 || length < guideLen {
		return "", "", errors.E(errors.Invalid, fmt.Sprintf("cannot embed a %d base guide in a %d base amplicon", guideLen, length))
	}
	guideSeq = dna.Random(rng, guideLen)
	prefix := (length - guideLen) / 2
	amplicon = dna.Random(rng, prefix) + guideSeq + dna.Random(rng, length-guideLen-prefix)
	return amplicon, guideSeq, nil
}

// Summary logs the simulation statistics.
func (res *Result) Summary() {
	s := res.Stats
	pct := func(n, d int) float64 {
		if d == 0 {
			return 0
		}
		return 100 * float64(n) / float64(d)
	}
	log.Printf("amplicon length %d bp, guide %v, cut site %d", len(res.Amplicon), s.Locus, s.CutSite)
	if res.Intent != nil {
		log.Printf("intended prime edit: %v", *res.Intent)
	}
	log.Printf("total reads %d, edited %d (%.2f%%), unedited %d (%.2f%%)",
		s.Total, s.Edited, pct(s.Edited, s.Total), s.Unedited, pct(s.Unedited, s.Total))
	if s.BaseEditTargets > 0 {
		log.Printf("%d convertible bases in the editing window", s.BaseEditTargets)
	}
	if s.Frameshifts > 0 {
		log.Printf("frameshifts %d (%.2f%% of edits)", s.Frameshifts, pct(s.Frameshifts, s.Edited))
	}
	if s.SelectedUnconverted > 0 {
		log.Printf("%d reads selected for editing had no convertible base edited", s.SelectedUnconverted)
	}
	for _, k := range []edit.Kind{edit.Deletion, edit.Insertion, edit.Substitution, edit.PrimeEdit} {
		if n := s.ByKind[k]; n > 0 {
			log.Printf("  %s: %d (%.2f%% of edits)", k, n, pct(n, s.Edited))
		}
	}
	for _, o := range []edit.Outcome{edit.OutcomePerfect, edit.OutcomePartial, edit.OutcomeIndel,
		edit.OutcomeScaffold, edit.OutcomeFlapIndel} {
		if n := s.ByOutcome[o]; n > 0 {
			log.Printf("  prime editing outcome %s: %d", o, n)
		}
	}
	log.Printf("sequencing errors %d, read digest %016x", s.SequencingErrors, s.Digest)
}
