package generate

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/editsim/dna"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/guide"
)

// DefaultScaffold is the SpCas9 pegRNA scaffold, 5' to 3'.
const DefaultScaffold = "GTTTTAGAGCTAGAAATAGCAAGTTAAAATAAGGCTAGTCCGTTATCAACTTGAAAAAGTGGCACCGAGTCGGTGC"

// OutcomeFractions weighs the prime editing outcomes. The weights need not
// sum to one.
type OutcomeFractions struct {
	Perfect, Partial, Indel, Scaffold, FlapIndel float64
}

func (f OutcomeFractions) weights() []float64 {
	return []float64{f.Perfect, f.Partial, f.Indel, f.Scaffold, f.FlapIndel}
}

var outcomes = []edit.Outcome{
	edit.OutcomePerfect,
	edit.OutcomePartial,
	edit.OutcomeIndel,
	edit.OutcomeScaffold,
	edit.OutcomeFlapIndel,
}

// PrimeEditOpts configures the prime editing generator.
type PrimeEditOpts struct {
	// Extension is the pegRNA 3' extension, 5' to 3': the reverse
	// transcription template followed by the primer binding site.
	Extension string
	// PBSLength is the length of the primer binding site at the end of
	// Extension.
	PBSLength int
	Fractions OutcomeFractions
	// MaxScaffold caps the number of scaffold bases reverse transcribed
	// past the template.
	MaxScaffold int
	// MaxFlapDeletion caps the deletion next to the flap junction.
	MaxFlapDeletion int
	// Scaffold is the pegRNA scaffold sequence, 5' to 3'.
	Scaffold string
	// NHEJ configures indel outcomes.
	NHEJ NHEJOpts
}

// DefaultPrimeEditOpts holds the default prime editing options. Extension
// has no default.
var DefaultPrimeEditOpts = PrimeEditOpts{
	PBSLength: 13,
	Fractions: OutcomeFractions{
		Perfect:   0.7,
		Partial:   0.1,
		Indel:     0.1,
		Scaffold:  0.05,
		FlapIndel: 0.05,
	},
	MaxScaffold:     10,
	MaxFlapDeletion: 3,
	Scaffold:        DefaultScaffold,
	NHEJ:            DefaultNHEJOpts,
}

// IntentKind classifies the change encoded by a pegRNA.
type IntentKind uint8

const (
	IntentSubstitution IntentKind = iota
	IntentInsertion
	IntentDeletion
	IntentReplacement
)

func (k IntentKind) String() string {
	switch k {
	case IntentSubstitution:
		return "substitution"
	case IntentInsertion:
		return "insertion"
	case IntentDeletion:
		return "deletion"
	}
	return "replacement"
}

// Intent is the minimal change a pegRNA installs, in amplicon coordinates:
// Orig at Pos becomes New.
type Intent struct {
	Kind      IntentKind
	Pos       int
	Orig, New string
}

func (i Intent) String() string {
	return fmt.Sprintf("%s at %d: %q -> %q", i.Kind, i.Pos, i.Orig, i.New)
}

// change is a replacement in guide-strand coordinates.
type change struct {
	pos       int
	orig, seq string
}

// PrimeEditor generates prime editing outcomes. Internally all outcomes are
// built on the guide strand (the amplicon, or its reverse complement for a
// reverse guide) and mapped back to amplicon coordinates.
type PrimeEditor struct {
	amplicon string
	strand   string
	reverse  bool
	nick     int
	intent   change
	// rtEnd is the guide-strand position just past the reference span
	// replaced by the reverse-transcribed flap.
	rtEnd      int
	scaffoldRT string
	opts       PrimeEditOpts
}

// NewPrimeEditor derives the intended edit from the pegRNA extension and
// returns a generator for its outcomes. An extension that encodes no change
// is an error.
func NewPrimeEditor(amplicon string, locus guide.Locus, cut int, opts PrimeEditOpts) (*PrimeEditor, error) {
	ext := strings.Replace(strings.ToUpper(opts.Extension), "U", "T", -1)
	if err := dna.Validate(ext, "pegRNA extension", "ACGT"); err != nil {
		return nil, err
	}
	if opts.PBSLength < 1 || len(ext) <= opts.PBSLength {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"pegRNA extension of length %d leaves no template after a %d base primer binding site",
			len(ext), opts.PBSLength))
	}
	if err := opts.NHEJ.validate(); err != nil {
		return nil, err
	}
	var total float64
	for _, w := range opts.Fractions.weights() {
		if w < 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("negative outcome fraction in %+v", opts.Fractions))
		}
		total += w
	}
	if total <= 0 {
		return nil, errors.E(errors.Invalid, "prime editing outcome fractions sum to zero")
	}
	if opts.MaxScaffold < 1 || opts.MaxFlapDeletion < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("scaffold and flap deletion limits must be positive, got %d/%d",
			opts.MaxScaffold, opts.MaxFlapDeletion))
	}
	if err := dna.Validate(opts.Scaffold, "pegRNA scaffold", "ACGTU"); err != nil {
		return nil, err
	}

	g := &PrimeEditor{
		amplicon:   amplicon,
		strand:     amplicon,
		reverse:    locus.Reverse,
		nick:       cut,
		scaffoldRT: dna.ReverseComplement(strings.Replace(strings.ToUpper(opts.Scaffold), "U", "T", -1)),
		opts:       opts,
	}
	if locus.Reverse {
		g.strand = dna.ReverseComplement(amplicon)
		g.nick = len(amplicon) - cut - 1
	}
	if g.nick < 0 || g.nick > len(g.strand) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("nick %d outside amplicon of length %d", g.nick, len(amplicon)))
	}

	pbs := ext[len(ext)-opts.PBSLength:]
	if g.nick < opts.PBSLength {
		log.Printf("primer binding site %s extends past the amplicon start", pbs)
	} else if want := dna.ReverseComplement(g.strand[g.nick-opts.PBSLength : g.nick]); pbs != want {
		log.Printf("primer binding site %s does not match the protospacer (expected %s)", pbs, want)
	}

	flap := dna.ReverseComplement(ext[:len(ext)-opts.PBSLength])
	var ok bool
	g.intent, g.rtEnd, ok = diffFlap(g.strand, g.nick, flap)
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("pegRNA extension %s encodes no change at the nick", opts.Extension))
	}
	log.Debug.Printf("prime edit intent: %v", g.Intent())
	return g, nil
}

// diffFlap finds the smallest change that turns the reference downstream of
// the nick into flap. Each candidate net length change d aligns flap against
// ref[nick:nick+len(flap)-d]; shared prefixes and suffixes are trimmed and
// the candidate with the shortest changed span wins, ties going to the
// smaller |d|.
func diffFlap(ref string, nick int, flap string) (best change, rtEnd int, ok bool) {
	bestCost := -1
	for step := 0; step <= 2*len(flap); step++ {
		d := (step + 1) / 2
		if step%2 == 0 {
			d = -d
		}
		end := nick + len(flap) - d
		if end < nick || end > len(ref) {
			continue
		}
		c := trim(change{nick, ref[nick:end], flap})
		cost := len(c.orig)
		if len(c.seq) > cost {
			cost = len(c.seq)
		}
		if bestCost < 0 || cost < bestCost {
			best, rtEnd, bestCost = c, end, cost
		}
	}
	return best, rtEnd, bestCost > 0
}

// trim removes the common prefix and then the common suffix of c.orig and
// c.seq.
func trim(c change) change {
	n := len(c.orig)
	if len(c.seq) < n {
		n = len(c.seq)
	}
	p := 0
	for p < n && c.orig[p] == c.seq[p] {
		p++
	}
	s := 0
	for s < n-p && c.orig[len(c.orig)-1-s] == c.seq[len(c.seq)-1-s] {
		s++
	}
	return change{c.pos + p, c.orig[p : len(c.orig)-s], c.seq[p : len(c.seq)-s]}
}

// Mode implements Generator.
func (g *PrimeEditor) Mode() Mode { return ModePrimeEdit }

// Intent returns the intended edit in amplicon coordinates.
func (g *PrimeEditor) Intent() Intent {
	e := g.toAmplicon(g.intent, edit.OutcomePerfect)
	in := Intent{Pos: e.Pos, Orig: e.Orig, New: e.New}
	switch {
	case e.Orig == "":
		in.Kind = IntentInsertion
	case e.New == "":
		in.Kind = IntentDeletion
	case len(e.Orig) == 1 && len(e.New) == 1:
		in.Kind = IntentSubstitution
	default:
		in.Kind = IntentReplacement
	}
	return in
}

// Generate implements Generator. It picks an outcome by weighted random
// choice and builds the corresponding edit.
func (g *PrimeEditor) Generate(rng *rand.Rand) edit.Edit {
	switch outcome := g.pickOutcome(rng); outcome {
	case edit.OutcomePartial:
		if c, ok := g.partial(rng); ok {
			return g.toAmplicon(c, outcome)
		}
	case edit.OutcomeIndel:
		return g.indel(rng)
	case edit.OutcomeScaffold:
		k := 1 + rng.Intn(min(g.opts.MaxScaffold, len(g.scaffoldRT)))
		return g.toAmplicon(g.extend(g.rtEnd, g.scaffoldRT[:k]), outcome)
	case edit.OutcomeFlapIndel:
		if g.rtEnd < len(g.strand) {
			k := 1 + rng.Intn(g.opts.MaxFlapDeletion)
			return g.toAmplicon(g.extend(min(g.rtEnd+k, len(g.strand)), ""), outcome)
		}
	}
	return g.toAmplicon(g.intent, edit.OutcomePerfect)
}

func (g *PrimeEditor) pickOutcome(rng *rand.Rand) edit.Outcome {
	w := g.opts.Fractions.weights()
	var total float64
	for _, x := range w {
		total += x
	}
	r := rng.Float64() * total
	for i, x := range w {
		if r < x {
			return outcomes[i]
		}
		r -= x
	}
	return edit.OutcomePerfect
}

// partial installs only the first k bases of the intended change: k new
// bases, or k deleted bases for a pure deletion.
func (g *PrimeEditor) partial(rng *rand.Rand) (change, bool) {
	c := g.intent
	if c.seq == "" {
		if len(c.orig) < 2 {
			return change{}, false
		}
		k := 1 + rng.Intn(len(c.orig)-1)
		return change{c.pos, c.orig[:k], ""}, true
	}
	if len(c.seq) < 2 {
		return change{}, false
	}
	k := 1 + rng.Intn(len(c.seq)-1)
	return trim(change{c.pos, c.orig[:min(k, len(c.orig))], c.seq[:k]}), true
}

// extend returns the intended change followed by tail inserted at end, with
// the reference between the change and end carried over.
func (g *PrimeEditor) extend(end int, tail string) change {
	c := g.intent
	origEnd := c.pos + len(c.orig)
	between := ""
	if g.rtEnd > origEnd {
		between = g.strand[origEnd:g.rtEnd]
	}
	return trim(change{c.pos, g.strand[c.pos:end], c.seq + between + tail})
}

// indel draws an NHEJ-style indel at the nick.
func (g *PrimeEditor) indel(rng *rand.Rand) edit.Edit {
	e := indel(rng, g.strand, g.nick, g.opts.NHEJ)
	if g.reverse {
		n := len(g.strand)
		switch e.Kind {
		case edit.Deletion:
			e = edit.NewDeletion(g.amplicon, n-e.Pos-e.Size, e.Size)
		case edit.Insertion:
			e = edit.NewInsertion(n-e.Pos, dna.ReverseComplement(e.New))
		}
	}
	e = edit.LeftAlign(g.amplicon, e)
	e.Outcome = edit.OutcomeIndel
	return e
}

// toAmplicon maps a guide-strand change to an amplicon prime edit. Pure
// insertions and deletions are left-aligned.
func (g *PrimeEditor) toAmplicon(c change, outcome edit.Outcome) edit.Edit {
	pos, orig, seq := c.pos, c.orig, c.seq
	if g.reverse {
		pos = len(g.strand) - c.pos - len(c.orig)
		orig, seq = dna.ReverseComplement(orig), dna.ReverseComplement(seq)
	}
	switch {
	case orig == "" && seq != "":
		e := edit.LeftAlign(g.amplicon, edit.NewInsertion(pos, seq))
		pos, seq = e.Pos, e.New
	case seq == "" && orig != "":
		e := edit.LeftAlign(g.amplicon, edit.NewDeletion(g.amplicon, pos, len(orig)))
		pos, orig = e.Pos, e.Orig
	}
	return edit.NewPrimeEdit(pos, orig, seq, outcome)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
