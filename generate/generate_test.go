package generate

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/editsim/dna"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/guide"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAmplicon = "CGGATGTTCCAATCAGTACGCAGAGAGTCGCCGTCTCCAAGGTGAAAGCGGAAGTAGGGCCTTCGCGCACCTCATGGAATCCCTTCTGCAGCACCTGGATCGCTTTTCCGAGCTTCTGGCGGTCTCAAGCACTACCTACGTCAGCACCTGGGACCCCGCCACCGTGCGCCGGGCCTTGCAGTGGGCGCGCTACCTGCGCCACATCCATCGGCGCTTTGGTCGG"
	testGuide    = "GGAATCCCTTCTGCAGCACC"
	// testPBS binds the 13 protospacer bases upstream of the nick at 92.
	testPBS = "GCTGCAGAAGGGA"
)

func locate(t *testing.T, amplicon string) (guide.Locus, int) {
	l, err := guide.Find(amplicon, testGuide)
	require.NoError(t, err)
	return l, guide.CutSite(l, guide.DefaultCleavageOffset)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeNHEJ, ModeBaseEdit, ModePrimeEdit} {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("hdr")
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestNHEJ(t *testing.T) {
	l, cut := locate(t, testAmplicon)
	assert.Equal(t, 92, cut)
	g, err := New(ModeNHEJ, testAmplicon, l, cut, DefaultOpts)
	require.NoError(t, err)
	assert.Equal(t, ModeNHEJ, g.Mode())

	rng := rand.New(rand.NewSource(1))
	const n = 4000
	var dels int
	for i := 0; i < n; i++ {
		e := g.Generate(rng)
		require.NoError(t, e.Validate(testAmplicon), "%v", e)
		assert.Equal(t, e, edit.LeftAlign(testAmplicon, e))
		assert.True(t, e.Pos <= cut+maxJitter, "%v", e)
		switch e.Kind {
		case edit.Deletion:
			dels++
			assert.True(t, e.Size >= 1 && e.Size <= DefaultNHEJOpts.MaxDeletion, "%v", e)
		case edit.Insertion:
			assert.True(t, e.Size >= 1 && e.Size <= DefaultNHEJOpts.MaxInsertion, "%v", e)
		default:
			t.Fatalf("unexpected edit %v", e)
		}
		assert.Equal(t, len(testAmplicon)+e.Delta(), len(edit.Apply(testAmplicon, e)))
	}
	frac := float64(dels) / n
	assert.InDelta(t, DefaultNHEJOpts.DeletionWeight, frac, 0.05)
}

func TestNHEJTruncatesAtAmpliconEnd(t *testing.T) {
	amp := "ACGTACGTAC"
	g, err := NewNHEJ(amp, len(amp)-1, NHEJOpts{DeletionWeight: 1, MaxDeletion: 50, MaxInsertion: 1})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		e := g.Generate(rng)
		require.Equal(t, edit.Deletion, e.Kind)
		require.NoError(t, e.Validate(amp))
	}
}

func TestNHEJOpts(t *testing.T) {
	_, err := NewNHEJ(testAmplicon, 92, NHEJOpts{DeletionWeight: 1.5, MaxDeletion: 1, MaxInsertion: 1})
	assert.True(t, errors.Is(errors.Invalid, err))
	_, err = NewNHEJ(testAmplicon, 92, NHEJOpts{DeletionWeight: 0.5})
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestBaseEditForward(t *testing.T) {
	l, _ := locate(t, testAmplicon)
	opts := DefaultBaseEditOpts
	opts.EditProb = 1
	g, err := NewBaseEditor(testAmplicon, l, opts)
	require.NoError(t, err)
	// Protospacer positions 6-8 are the C's in the window.
	assert.Equal(t, 3, g.Targets())

	rng := rand.New(rand.NewSource(1))
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		e := g.Generate(rng)
		if e.Kind == edit.None {
			continue
		}
		require.Equal(t, edit.Substitution, e.Kind)
		require.NoError(t, e.Validate(testAmplicon))
		for _, c := range e.Changes {
			assert.Equal(t, byte('C'), c.Orig)
			assert.Equal(t, byte('T'), c.New)
			seen[c.Pos] = true
		}
	}
	assert.Equal(t, map[int]bool{80: true, 81: true, 82: true}, seen)
}

func TestBaseEditReverse(t *testing.T) {
	amp := dna.ReverseComplement(testAmplicon)
	l, _ := locate(t, amp)
	require.True(t, l.Reverse)
	opts := DefaultBaseEditOpts
	opts.EditProb = 1
	g, err := NewBaseEditor(amp, l, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Targets())

	rng := rand.New(rand.NewSource(1))
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		e := g.Generate(rng)
		if e.Kind == edit.None {
			continue
		}
		require.NoError(t, e.Validate(amp))
		for j, c := range e.Changes {
			if j > 0 {
				assert.True(t, e.Changes[j-1].Pos < c.Pos)
			}
			assert.Equal(t, byte('G'), c.Orig)
			assert.Equal(t, byte('A'), c.New)
			seen[c.Pos] = true
		}
	}
	assert.Equal(t, map[int]bool{140: true, 141: true, 142: true}, seen)
}

func TestBaseEditABE(t *testing.T) {
	l, _ := locate(t, testAmplicon)
	g, err := NewBaseEditor(testAmplicon, l, BaseEditOpts{Editor: ABE, WindowCenter: 6, WindowSigma: 1.5, EditProb: 1})
	require.NoError(t, err)
	// A's at protospacer positions 3 and 4.
	assert.Equal(t, 2, g.Targets())
}

func TestBaseEditZeroProb(t *testing.T) {
	l, _ := locate(t, testAmplicon)
	opts := DefaultBaseEditOpts
	opts.EditProb = 0
	g, err := NewBaseEditor(testAmplicon, l, opts)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		assert.Equal(t, edit.None, g.Generate(rng).Kind)
	}
}

func TestBaseEditOpts(t *testing.T) {
	l, _ := locate(t, testAmplicon)
	for _, opts := range []BaseEditOpts{
		{Editor: "XBE", WindowCenter: 6, WindowSigma: 1, EditProb: 0.5},
		{Editor: CBE, WindowCenter: 6, WindowSigma: 0, EditProb: 0.5},
		{Editor: CBE, WindowCenter: 6, WindowSigma: 1, EditProb: -0.1},
	} {
		_, err := NewBaseEditor(testAmplicon, l, opts)
		assert.True(t, errors.Is(errors.Invalid, err), "%+v", opts)
	}
}

// extension builds a pegRNA extension whose reverse transcript replaces the
// reference downstream of the nick with flap.
func extension(flap string) string {
	return dna.ReverseComplement(flap) + testPBS
}

func primeOpts(ext string, f OutcomeFractions) PrimeEditOpts {
	opts := DefaultPrimeEditOpts
	opts.Extension = ext
	opts.Fractions = f
	return opts
}

var perfectOnly = OutcomeFractions{Perfect: 1}

func TestPrimeEditIntent(t *testing.T) {
	a := testAmplicon
	tests := []struct {
		flap string
		want Intent
	}{
		{a[92:93] + "T" + a[94:102], Intent{IntentSubstitution, 93, "C", "T"}},
		{a[92:94] + "GGG" + a[94:104], Intent{IntentInsertion, 94, "", "GGG"}},
		{a[92:94] + a[97:107], Intent{IntentDeletion, 94, "CTG", ""}},
		{a[92:94] + "AA" + a[95:105], Intent{IntentReplacement, 94, "C", "AA"}},
	}
	l, cut := locate(t, a)
	for _, test := range tests {
		g, err := NewPrimeEditor(a, l, cut, primeOpts(extension(test.flap), perfectOnly))
		require.NoError(t, err, test.flap)
		assert.Equal(t, test.want, g.Intent(), test.flap)
		e := g.Generate(rand.New(rand.NewSource(1)))
		assert.Equal(t, edit.NewPrimeEdit(test.want.Pos, test.want.Orig, test.want.New, edit.OutcomePerfect), e)
	}
}

func TestPrimeEditExample(t *testing.T) {
	l, cut := locate(t, testAmplicon)
	g, err := NewPrimeEditor(testAmplicon, l, cut, primeOpts("CGATCCAGAT"+testPBS, perfectOnly))
	require.NoError(t, err)
	assert.Equal(t, Intent{IntentSubstitution, 93, "C", "T"}, g.Intent())

	// RNA input is accepted.
	g, err = NewPrimeEditor(testAmplicon, l, cut, primeOpts(strings.Replace("cgauccagau"+testPBS, "T", "U", -1), perfectOnly))
	require.NoError(t, err)
	assert.Equal(t, Intent{IntentSubstitution, 93, "C", "T"}, g.Intent())
}

func TestPrimeEditReverseIntent(t *testing.T) {
	amp := dna.ReverseComplement(testAmplicon)
	l, cut := locate(t, amp)
	g, err := NewPrimeEditor(amp, l, cut, primeOpts("CGATCCAGAT"+testPBS, perfectOnly))
	require.NoError(t, err)
	assert.Equal(t, Intent{IntentSubstitution, 129, "G", "A"}, g.Intent())
}

func TestPrimeEditErrors(t *testing.T) {
	l, cut := locate(t, testAmplicon)
	for _, opts := range []PrimeEditOpts{
		primeOpts(extension(testAmplicon[92:102]), perfectOnly),
		primeOpts(testPBS, perfectOnly),
		primeOpts("CGATCCAGXT"+testPBS, perfectOnly),
		primeOpts("CGATCCAGAT"+testPBS, OutcomeFractions{}),
		primeOpts("CGATCCAGAT"+testPBS, OutcomeFractions{Perfect: 1, Indel: -1}),
	} {
		_, err := NewPrimeEditor(testAmplicon, l, cut, opts)
		assert.True(t, errors.Is(errors.Invalid, err), "%+v: %v", opts, err)
	}
}

func TestPrimeEditMismatchedPBS(t *testing.T) {
	l, cut := locate(t, testAmplicon)
	_, err := NewPrimeEditor(testAmplicon, l, cut, primeOpts("CGATCCAGAT"+"AAAAAAAAAAAAA", perfectOnly))
	assert.NoError(t, err)
}

func TestPrimeEditPartial(t *testing.T) {
	a := testAmplicon
	l, cut := locate(t, a)
	g, err := NewPrimeEditor(a, l, cut, primeOpts(extension(a[92:94]+"GGG"+a[94:104]), OutcomeFractions{Partial: 1}))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		e := g.Generate(rng)
		require.Equal(t, edit.OutcomePartial, e.Outcome)
		assert.Equal(t, 94, e.Pos)
		assert.Equal(t, "", e.Orig)
		seen[e.New] = true
	}
	assert.Equal(t, map[string]bool{"G": true, "GG": true}, seen)

	// A single-base change cannot be truncated.
	g, err = NewPrimeEditor(a, l, cut, primeOpts("CGATCCAGAT"+testPBS, OutcomeFractions{Partial: 1}))
	require.NoError(t, err)
	assert.Equal(t, edit.NewPrimeEdit(93, "C", "T", edit.OutcomePerfect), g.Generate(rng))
}

func TestPrimeEditPartialDeletion(t *testing.T) {
	a := testAmplicon
	l, cut := locate(t, a)
	g, err := NewPrimeEditor(a, l, cut, primeOpts(extension(a[92:94]+a[97:107]), OutcomeFractions{Partial: 1}))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		e := g.Generate(rng)
		require.NoError(t, e.Validate(a))
		assert.Equal(t, "", e.New)
		assert.True(t, len(e.Orig) == 1 || len(e.Orig) == 2, "%v", e)
	}
}

func TestPrimeEditScaffold(t *testing.T) {
	a := testAmplicon
	l, cut := locate(t, a)
	g, err := NewPrimeEditor(a, l, cut, primeOpts("CGATCCAGAT"+testPBS, OutcomeFractions{Scaffold: 1}))
	require.NoError(t, err)
	scaffoldRT := dna.ReverseComplement(DefaultScaffold)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		e := g.Generate(rng)
		require.NoError(t, e.Validate(a), "%v", e)
		require.Equal(t, edit.OutcomeScaffold, e.Outcome)
		read := edit.Apply(a, e)
		k := len(read) - len(a)
		require.True(t, k >= 1 && k <= DefaultPrimeEditOpts.MaxScaffold, "%v", e)
		assert.Equal(t, a[:93]+"T"+a[94:102]+scaffoldRT[:k]+a[102:], read)
	}
}

func TestPrimeEditFlapIndel(t *testing.T) {
	a := testAmplicon
	l, cut := locate(t, a)
	g, err := NewPrimeEditor(a, l, cut, primeOpts("CGATCCAGAT"+testPBS, OutcomeFractions{FlapIndel: 1}))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		e := g.Generate(rng)
		require.NoError(t, e.Validate(a), "%v", e)
		require.Equal(t, edit.OutcomeFlapIndel, e.Outcome)
		read := edit.Apply(a, e)
		k := len(a) - len(read)
		require.True(t, k >= 1 && k <= DefaultPrimeEditOpts.MaxFlapDeletion, "%v", e)
		assert.Equal(t, a[:93]+"T"+a[94:102]+a[102+k:], read)
	}
}

func TestPrimeEditIndel(t *testing.T) {
	l, cut := locate(t, testAmplicon)
	g, err := NewPrimeEditor(testAmplicon, l, cut, primeOpts("CGATCCAGAT"+testPBS, OutcomeFractions{Indel: 1}))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		e := g.Generate(rng)
		require.NoError(t, e.Validate(testAmplicon), "%v", e)
		assert.True(t, e.Kind == edit.Deletion || e.Kind == edit.Insertion, "%v", e)
		assert.Equal(t, edit.OutcomeIndel, e.Outcome)
		assert.Equal(t, e, edit.LeftAlign(testAmplicon, e))
	}
}

// A reverse-strand guide on the reverse-complemented amplicon must produce
// the reverse complement of every forward-strand read.
func TestPrimeEditStrandSymmetry(t *testing.T) {
	f := OutcomeFractions{Perfect: 1, Partial: 1, Indel: 1, Scaffold: 1, FlapIndel: 1}
	a := testAmplicon
	for _, flap := range []string{
		a[92:93] + "T" + a[94:102],
		a[92:94] + "GGG" + a[94:104],
		a[92:94] + a[97:107],
	} {
		opts := primeOpts(extension(flap), f)
		l, cut := locate(t, a)
		fwd, err := NewPrimeEditor(a, l, cut, opts)
		require.NoError(t, err)
		rcAmp := dna.ReverseComplement(a)
		l, cut = locate(t, rcAmp)
		rev, err := NewPrimeEditor(rcAmp, l, cut, opts)
		require.NoError(t, err)

		rngF, rngR := rand.New(rand.NewSource(11)), rand.New(rand.NewSource(11))
		for i := 0; i < 200; i++ {
			ef, er := fwd.Generate(rngF), rev.Generate(rngR)
			require.NoError(t, ef.Validate(a))
			require.NoError(t, er.Validate(rcAmp))
			assert.Equal(t, ef.Outcome, er.Outcome)
			assert.Equal(t, edit.Apply(a, ef), dna.ReverseComplement(edit.Apply(rcAmp, er)), "%v %v", ef, er)
		}
	}
}
