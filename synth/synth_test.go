package synth

import (
	"math/rand"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/editsim/dna"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/encoding/fastq"
	"github.com/grailbio/editsim/generate"
	"github.com/grailbio/editsim/guide"
	"github.com/grailbio/editsim/truth"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAmplicon = "CGGATGTTCCAATCAGTACGCAGAGAGTCGCCGTCTCCAAGGTGAAAGCGGAAGTAGGGCCTTCGCGCACCTCATGGAATCCCTTCTGCAGCACCTGGATCGCTTTTCCGAGCTTCTGGCGGTCTCAAGCACTACCTACGTCAGCACCTGGGACCCCGCCACCGTGCGCCGGGCCTTGCAGTGGGCGCGCTACCTGCGCCACATCCATCGGCGCTTTGGTCGG"
	testGuide    = "GGAATCCCTTCTGCAGCACC"
)

func testOpts() Opts {
	opts := DefaultOpts
	opts.NumReads = 500
	opts.ErrorRate = 0
	opts.Parallelism = 3
	return opts
}

func TestNoEdits(t *testing.T) {
	opts := testOpts()
	opts.EditRate = 0
	res, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Edited)
	assert.Equal(t, opts.NumReads, res.Stats.Unedited)
	for i, r := range res.Reads {
		assert.Equal(t, testAmplicon, r.Seq)
		assert.Equal(t, len(r.Seq), len(r.Qual))
		assert.Equal(t, "read_"+strconv.Itoa(i), r.Name)
		assert.Equal(t, edit.None, r.Edit.Kind)
	}
	assert.Equal(t, guide.Locus{Start: 75, End: 95}, res.Stats.Locus)
	assert.Equal(t, 92, res.Stats.CutSite)
}

func TestAllEdited(t *testing.T) {
	opts := testOpts()
	opts.EditRate = 1
	res, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	assert.Equal(t, opts.NumReads, res.Stats.Edited)
	assert.Equal(t, opts.NumReads, res.Stats.ByKind[edit.Deletion]+res.Stats.ByKind[edit.Insertion])
	frameshifts := 0
	for _, r := range res.Reads {
		require.NoError(t, r.Edit.Validate(testAmplicon))
		assert.Equal(t, edit.Apply(testAmplicon, r.Edit), r.Seq)
		assert.Equal(t, len(testAmplicon)+r.Edit.Delta(), len(r.Seq))
		if (len(r.Seq)-len(testAmplicon))%3 != 0 {
			frameshifts++
		}
	}
	assert.Equal(t, frameshifts, res.Stats.Frameshifts)
	assert.True(t, res.Stats.Frameshifts > 0)
	assert.Equal(t, 0, res.Stats.BaseEditTargets)
}

func TestReproducible(t *testing.T) {
	opts := testOpts()
	opts.ErrorRate = 0.01
	a, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	b, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Stats.Digest, b.Stats.Digest)
	assert.Equal(t, a.Reads, b.Reads)

	opts.Seed++
	c, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Stats.Digest, c.Stats.Digest)
}

func TestSequencingErrors(t *testing.T) {
	opts := testOpts()
	opts.ErrorRate = 0.05
	opts.ReadLength = 150
	res, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	var total int
	for _, r := range res.Reads {
		assert.True(t, len(r.Seq) <= opts.ReadLength)
		clean := []byte(r.Seq)
		for _, e := range r.Errors {
			assert.Equal(t, e.New, r.Seq[e.Pos])
			assert.NotEqual(t, e.Orig, e.New)
			clean[e.Pos] = e.Orig
		}
		want := edit.Apply(testAmplicon, r.Edit)
		if len(want) > opts.ReadLength {
			want = want[:opts.ReadLength]
		}
		assert.Equal(t, want, string(clean))
		total += len(r.Errors)
	}
	assert.Equal(t, total, res.Stats.SequencingErrors)
	assert.True(t, total > 0)
}

func TestAddSequencingErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	seq, errs := AddSequencingErrors(rng, "ACGT", 0)
	assert.Equal(t, "ACGT", seq)
	assert.Nil(t, errs)

	seq, errs = AddSequencingErrors(rng, "ACGTACGT", 1)
	assert.Len(t, errs, 8)
	for i := range seq {
		assert.NotEqual(t, "ACGTACGT"[i], seq[i])
	}
}

func TestBaseEditUnconverted(t *testing.T) {
	opts := testOpts()
	opts.EditRate = 1
	opts.Mode = generate.ModeBaseEdit
	opts.Generate.BaseEdit.EditProb = 0.2
	res, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	s := res.Stats
	assert.True(t, s.SelectedUnconverted > 0)
	assert.Equal(t, s.Total, s.Edited+s.Unedited)
	assert.Equal(t, s.Edited, s.ByKind[edit.Substitution])
	assert.True(t, s.Unedited >= s.SelectedUnconverted)
	// C at guide positions 6 to 8 lie in the 6 +/- 4.5 window.
	assert.Equal(t, 3, s.BaseEditTargets)
	assert.Equal(t, 0, s.Frameshifts)
}

func TestPrimeEditMode(t *testing.T) {
	opts := testOpts()
	opts.EditRate = 0.5
	opts.Mode = generate.ModePrimeEdit
	opts.Generate.PrimeEdit.Extension = "CGATCCAGAT" + "GCTGCAGAAGGGA"
	res, err := Simulate(testAmplicon, testGuide, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Intent)
	assert.Equal(t, generate.Intent{Kind: generate.IntentSubstitution, Pos: 93, Orig: "C", New: "T"}, *res.Intent)
	var outcomes int
	for _, n := range res.Stats.ByOutcome {
		outcomes += n
	}
	assert.Equal(t, res.Stats.Edited, outcomes)
	assert.True(t, res.Stats.ByOutcome[edit.OutcomePerfect] > 0)
}

func TestInvalidInputs(t *testing.T) {
	opts := testOpts()
	_, err := Simulate("ACGTXACGT", testGuide, opts)
	assert.True(t, errors.Is(errors.Invalid, err))
	_, err = Simulate(testAmplicon, "GGAATCCCTTCTGCAGNACC", opts)
	assert.True(t, errors.Is(errors.Invalid, err))
	opts.EditRate = 1.5
	_, err = Simulate(testAmplicon, testGuide, opts)
	assert.True(t, errors.Is(errors.Invalid, err))
	opts = testOpts()
	opts.ErrorRate = -0.1
	_, err = Simulate(testAmplicon, testGuide, opts)
	assert.True(t, errors.Is(errors.Invalid, err))
	_, err = Simulate(testAmplicon, "AAAAAAAAAAAAAAAAAAAA", testOpts())
	assert.True(t, errors.Is(errors.NotExist, err))
	opts = testOpts()
	opts.Mode = generate.ModePrimeEdit
	_, err = Simulate(testAmplicon, testGuide, opts)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestRandomAmplicon(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 20; i++ {
		amp, g, err := RandomAmplicon(rng, 200, 20)
		require.NoError(t, err)
		assert.Len(t, amp, 200)
		l, err := guide.Find(amp, g)
		require.NoError(t, err)
		assert.Equal(t, 20, l.Len())
	}
	_, _, err := RandomAmplicon(rng, 10, 20)
	assert.Error(t, err)
}

func TestOutputPaths(t *testing.T) {
	assert.Equal(t, Paths{"out/x.fastq", "out/x_edits.tsv", "out/x.vcf"}, OutputPaths("out/x", false))
	assert.Equal(t, Paths{"x.fastq.gz", "x_edits.tsv", "x.vcf.gz"}, OutputPaths("x.fastq.gz", true))
	assert.Equal(t, Paths{"x.fastq", "x_edits.tsv", "x.vcf"}, OutputPaths("x.fastq", false))
}

func TestWriteOutputs(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts()
	opts.ErrorRate = 0.01
	res, err := Simulate(dna.ReverseComplement(testAmplicon), testGuide, opts)
	require.NoError(t, err)
	assert.True(t, res.Stats.Locus.Reverse)

	for _, prefix := range []string{filepath.Join(dir, "plain"), filepath.Join(dir, "gz.fastq.gz")} {
		opts.VCFGzip = fastq.IsGzip(prefix)
		paths, err := WriteOutputs(ctx, prefix, res, opts)
		require.NoError(t, err)

		var n int
		require.NoError(t, fastq.ReadFile(ctx, paths.FASTQ, fastq.All, func(r *fastq.Read) error {
			assert.Equal(t, res.Reads[n].Name, r.Name())
			assert.Equal(t, res.Reads[n].Seq, r.Seq)
			n++
			return nil
		}))
		assert.Equal(t, opts.NumReads, n)

		records, err := truth.ReadEditsFile(ctx, paths.Edits)
		require.NoError(t, err)
		require.Len(t, records, opts.NumReads)
		for i, rec := range records {
			assert.Equal(t, res.Reads[i].Truth(), rec)
		}
	}
}
