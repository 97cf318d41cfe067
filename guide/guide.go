// Package guide locates a guide (spacer) sequence within an amplicon and
// derives the cut site of the editing enzyme.
package guide

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/editsim/dna"
)

// DefaultCleavageOffset is the SpCas9 cut position relative to the 3' end
// of the protospacer.
const DefaultCleavageOffset = -3

// Locus is the position of a guide within an amplicon. Start and End are
// 0-based, half-open amplicon coordinates. Reverse is set when the amplicon
// contains the reverse complement of the guide.
type Locus struct {
	Start, End int
	Reverse    bool
}

// Len returns the guide length.
func (l Locus) Len() int { return l.End - l.Start }

// String implements fmt.Stringer.
func (l Locus) String() string {
	strand := "FWD"
	if l.Reverse {
		strand = "RC"
	}
	return fmt.Sprintf("%d-%d (%s)", l.Start, l.End, strand)
}

// NotFoundError is returned (wrapped with kind errors.NotExist) when neither
// orientation of the guide occurs in the amplicon.
type NotFoundError struct {
	Guide, GuideRC string
	Amplicon       string
}

func (e *NotFoundError) Error() string {
	amp := e.Amplicon
	if len(amp) > 100 {
		amp = amp[:50] + "..." + amp[len(amp)-50:]
	}
	return fmt.Sprintf("guide sequence not found in amplicon: guide %s, guide RC %s, amplicon %s "+
		"(ensure the guide is provided without PAM)", e.Guide, e.GuideRC, amp)
}

// Find searches the amplicon, ignoring case, for the guide and then for its
// reverse complement.
func Find(amplicon, guide string) (Locus, error) {
	ampUpper := strings.ToUpper(amplicon)
	guideUpper := strings.ToUpper(guide)
	if len(guideUpper) > 0 {
		if i := strings.Index(ampUpper, guideUpper); i >= 0 {
			return Locus{Start: i, End: i + len(guide)}, nil
		}
	}
	guideRC := dna.ReverseComplement(guideUpper)
	if len(guideRC) > 0 {
		if i := strings.Index(ampUpper, guideRC); i >= 0 {
			return Locus{Start: i, End: i + len(guide), Reverse: true}, nil
		}
	}
	return Locus{}, errors.E(errors.NotExist, &NotFoundError{Guide: guide, GuideRC: guideRC, Amplicon: amplicon})
}

// CutSite returns the 0-based amplicon position of the cut: End+offset for a
// forward guide, Start-offset-1 for a reverse-complement guide.
func CutSite(l Locus, cleavageOffset int) int {
	if l.Reverse {
		return l.Start - cleavageOffset - 1
	}
	return l.End + cleavageOffset
}

// CheckLength logs a warning for guide lengths outside the usual 10-25bp
// range. It never fails.
func CheckLength(guide string) {
	if n := len(guide); n < 10 {
		log.Printf("guide length %d is unusually short (typical: 17-23bp)", n)
	} else if n > 25 {
		log.Printf("guide length %d is unusually long (typical: 17-23bp)", n)
	}
}
