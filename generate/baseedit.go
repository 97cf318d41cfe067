package generate

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/editsim/dna"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/guide"
)

// Editor is a base editor type.
type Editor string

const (
	// CBE converts C to T.
	CBE Editor = "CBE"
	// ABE converts A to G.
	ABE Editor = "ABE"
)

// Conversion returns the guide-strand base targeted by the editor and the
// base it becomes.
func (e Editor) Conversion() (from, to byte, err error) {
	switch e {
	case CBE:
		return 'C', 'T', nil
	case ABE:
		return 'A', 'G', nil
	}
	return 0, 0, errors.E(errors.Invalid, fmt.Sprintf("unknown base editor %q (want CBE or ABE)", string(e)))
}

// BaseEditOpts configures the base editing generator.
type BaseEditOpts struct {
	Editor Editor
	// WindowCenter is the guide position, counted from 1 at the PAM-distal
	// end, with the highest editing efficiency.
	WindowCenter float64
	// WindowSigma is the width of the gaussian efficiency profile.
	WindowSigma float64
	// EditProb scales the efficiency profile.
	EditProb float64
}

// DefaultBaseEditOpts holds the default base editing options.
var DefaultBaseEditOpts = BaseEditOpts{
	Editor:       CBE,
	WindowCenter: 6,
	WindowSigma:  1.5,
	EditProb:     0.5,
}

type target struct {
	pos      int
	orig, to byte
	prob     float64
}

// BaseEditor converts target bases within the editing window of the guide.
type BaseEditor struct {
	targets []target
}

// NewBaseEditor returns a base editing generator for the guide at locus.
func NewBaseEditor(amplicon string, locus guide.Locus, opts BaseEditOpts) (*BaseEditor, error) {
	from, to, err := opts.Editor.Conversion()
	if err != nil {
		return nil, err
	}
	if err := checkProb("base edit probability", opts.EditProb); err != nil {
		return nil, err
	}
	if !(opts.WindowSigma > 0) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("window sigma must be positive, got %v", opts.WindowSigma))
	}
	if locus.Reverse {
		from, to = dna.Complement(from), dna.Complement(to)
	}
	g := &BaseEditor{}
	halfWidth := 3 * opts.WindowSigma
	for i := 1; i <= locus.Len(); i++ {
		d := float64(i) - opts.WindowCenter
		if math.Abs(d) > halfWidth {
			continue
		}
		pos := locus.Start + i - 1
		if locus.Reverse {
			pos = locus.End - i
		}
		if pos < 0 || pos >= len(amplicon) || amplicon[pos] != from {
			continue
		}
		g.targets = append(g.targets, target{
			pos:  pos,
			orig: amplicon[pos],
			to:   to,
			prob: math.Exp(-d*d/(2*opts.WindowSigma*opts.WindowSigma)) * opts.EditProb,
		})
	}
	if len(g.targets) == 0 {
		log.Printf("no %c bases in the %s editing window of guide at %v; no reads will be edited", from, opts.Editor, locus)
	}
	// Keep changes ordered by amplicon position.
	if locus.Reverse {
		for i, j := 0, len(g.targets)-1; i < j; i, j = i+1, j-1 {
			g.targets[i], g.targets[j] = g.targets[j], g.targets[i]
		}
	}
	return g, nil
}

// Mode implements Generator.
func (g *BaseEditor) Mode() Mode { return ModeBaseEdit }

// Targets returns the number of editable positions in the window.
func (g *BaseEditor) Targets() int { return len(g.targets) }

// Generate implements Generator. Each eligible position converts
// independently; a None edit is returned when nothing converts.
func (g *BaseEditor) Generate(rng *rand.Rand) edit.Edit {
	var changes []edit.Change
	for _, t := range g.targets {
		if rng.Float64() < t.prob {
			changes = append(changes, edit.Change{Pos: t.pos, Orig: t.orig, New: t.to})
		}
	}
	return edit.NewSubstitution(changes)
}
