package verify

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/editsim/align"
	"github.com/grailbio/editsim/aligner"
	"github.com/grailbio/editsim/encoding/fasta"
	"github.com/grailbio/editsim/encoding/fastq"
	"github.com/grailbio/editsim/truth"
)

// Opts configures Run.
type Opts struct {
	// Amplicon is the reference sequence the reads were generated from.
	Amplicon string
	// AmpliconName names the reference in the FASTA given to the aligner.
	AmpliconName string
	// FASTQPath and TruthPath are the reads and their edits TSV.
	FASTQPath, TruthPath string
	// Aligner aligns the reads to the amplicon.
	Aligner aligner.Aligner
	// TmpDir holds the reference FASTA and its index. If empty, a temporary
	// directory is created and removed when Run returns.
	TmpDir string
	// Parallelism is the number of shards reads are verified in.
	Parallelism int
}

// DefaultOpts holds the default verification options.
var DefaultOpts = Opts{
	AmpliconName: "AMPLICON",
	Parallelism:  1,
}

// Result summarizes a verification run. Passed counts reads without
// mismatches, including the Warned reads that have warnings.
type Result struct {
	Total, Passed, Failed, Warned int
	Failures                      []ReadResult
	Warnings                      []ReadResult

	// Counts of SAM lines that were not verified.
	Unmapped, Secondary, Skipped int
}

// AllPassed reports whether no read failed.
func (r *Result) AllPassed() bool { return r.Failed == 0 }

func (r *Result) add(rr ReadResult) {
	r.Total++
	switch {
	case !rr.Passed():
		r.Failed++
		r.Failures = append(r.Failures, rr)
	case len(rr.Warnings) > 0:
		r.Passed++
		r.Warned++
		r.Warnings = append(r.Warnings, rr)
	default:
		r.Passed++
	}
}

func (r *Result) merge(o *Result) {
	r.Total += o.Total
	r.Passed += o.Passed
	r.Failed += o.Failed
	r.Warned += o.Warned
	r.Failures = append(r.Failures, o.Failures...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// Summary logs the result and up to maxReported failures.
func (r *Result) Summary(maxReported int) {
	log.Printf("verified %d reads: %d passed (%d with warnings), %d failed; SAM: %d unmapped, %d secondary, %d skipped",
		r.Total, r.Passed, r.Warned, r.Failed, r.Unmapped, r.Secondary, r.Skipped)
	for i, f := range r.Failures {
		if i == maxReported {
			log.Printf("... %d more failures", len(r.Failures)-i)
			break
		}
		log.Printf("%s: %s", f.Name, strings.Join(f.Mismatches, "; "))
	}
	for _, w := range r.Warnings {
		log.Debug.Printf("%s: %s", w.Name, strings.Join(w.Warnings, "; "))
	}
}

// CheckAll verifies records against the parsed alignments in parallel
// shards. A record without an alignment fails. CheckAll stops early and
// returns the context's error when ctx is done.
func CheckAll(ctx context.Context, amplicon string, records []truth.Record, s *align.SAM, parallelism int) (*Result, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(records) && len(records) > 0 {
		parallelism = len(records)
	}
	shards := make([]Result, parallelism)
	err := traverse.Each(parallelism, func(shard int) error {
		start := shard * len(records) / parallelism
		end := (shard + 1) * len(records) / parallelism
		res := &shards[shard]
		for _, t := range records[start:end] {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, ok := s.Records[t.Name]
			if !ok {
				res.add(ReadResult{Name: t.Name, Mismatches: []string{"read not found in aligner output"}})
				continue
			}
			res.add(Check(amplicon, t, rec))
		}
		return nil
	})
	if err != nil {
		return nil, errors.E(err, "verify: checking reads")
	}
	res := &Result{Unmapped: s.Unmapped, Secondary: s.Secondary, Skipped: s.Skipped}
	for i := range shards {
		res.merge(&shards[i])
	}
	return res, nil
}

// Run aligns the reads at opts.FASTQPath to opts.Amplicon and verifies each
// against the ground truth at opts.TruthPath. Errors are returned for bad
// inputs and aligner failures; mismatches are reported in the Result.
func Run(ctx context.Context, opts Opts) (*Result, error) {
	amplicon := strings.ToUpper(opts.Amplicon)
	if amplicon == "" {
		return nil, errors.E(errors.Invalid, "verify: empty amplicon")
	}
	if opts.Aligner == nil {
		return nil, errors.E(errors.Invalid, "verify: no aligner")
	}
	if opts.AmpliconName == "" {
		opts.AmpliconName = DefaultOpts.AmpliconName
	}
	records, err := truth.ReadEditsFile(ctx, opts.TruthPath)
	if err != nil {
		return nil, err
	}
	var names []string
	err = fastq.ReadFile(ctx, opts.FASTQPath, fastq.ID|fastq.Seq, func(r *fastq.Read) error {
		names = append(names, r.Name())
		return nil
	})
	if err != nil {
		return nil, errors.E(err, "verify: reading", opts.FASTQPath)
	}
	if err := checkNames(records, names); err != nil {
		return nil, err
	}

	dir := opts.TmpDir
	if dir == "" {
		if dir, err = ioutil.TempDir("", "syn-verify"); err != nil {
			return nil, errors.E(err, "verify: creating temporary directory")
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Error.Printf("removing %s: %v", dir, err)
			}
		}()
	}
	refPath := filepath.Join(dir, "reference.fa")
	if err := fasta.WriteFile(ctx, refPath, opts.AmpliconName, amplicon); err != nil {
		return nil, errors.E(err, "verify: writing reference")
	}
	if err := opts.Aligner.Index(ctx, refPath); err != nil {
		return nil, err
	}
	out, err := opts.Aligner.Align(ctx, refPath, opts.FASTQPath)
	if err != nil {
		return nil, err
	}
	s, err := align.ParseSAM(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("parsed %d alignments for %d reads", len(s.Records), len(records))
	return CheckAll(ctx, amplicon, records, s, opts.Parallelism)
}

func checkNames(records []truth.Record, names []string) error {
	if len(records) != len(names) {
		return errors.E(errors.Invalid, fmt.Sprintf("verify: %d truth records but %d FASTQ reads", len(records), len(names)))
	}
	for i, name := range names {
		if records[i].Name != name {
			return errors.E(errors.Invalid, fmt.Sprintf("verify: read %d is %s in the FASTQ but %s in the truth", i, name, records[i].Name))
		}
	}
	return nil
}
