package synth

import (
	"context"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/editsim/edit"
	"github.com/grailbio/editsim/encoding/fastq"
	"github.com/grailbio/editsim/truth"
)

// Paths are the files written by WriteOutputs.
type Paths struct {
	FASTQ, Edits, VCF string
}

// OutputPaths derives the output file names from prefix. A prefix ending in
// ".fastq" or ".fastq.gz" names the FASTQ file itself.
func OutputPaths(prefix string, vcfGzip bool) Paths {
	fq := prefix + ".fastq"
	for _, ext := range []string{".fastq.gz", ".fastq"} {
		if strings.HasSuffix(prefix, ext) {
			fq = prefix
			prefix = strings.TrimSuffix(prefix, ext)
			break
		}
	}
	p := Paths{FASTQ: fq, Edits: prefix + "_edits.tsv", VCF: prefix + ".vcf"}
	if vcfGzip {
		p.VCF += ".gz"
	}
	return p
}

// WriteOutputs writes the FASTQ, the edits TSV and the aggregated VCF of res.
func WriteOutputs(ctx context.Context, prefix string, res *Result, opts Opts) (Paths, error) {
	paths := OutputPaths(prefix, opts.VCFGzip)
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	err := traverse.Each(3, func(i int) error {
		switch i {
		case 0:
			reads := make([]fastq.Read, len(res.Reads))
			for j := range res.Reads {
				reads[j] = res.Reads[j].FASTQ()
			}
			return fastq.WriteFile(ctx, paths.FASTQ, reads)
		case 1:
			records := make([]truth.Record, len(res.Reads))
			for j := range res.Reads {
				records[j] = res.Reads[j].Truth()
			}
			return truth.WriteEditsFile(ctx, paths.Edits, records)
		default:
			edits := make([]edit.Edit, len(res.Reads))
			for j := range res.Reads {
				edits[j] = res.Reads[j].Edit
			}
			calls := truth.Aggregate(res.Amplicon, opts.AmpliconName, edits)
			return truth.WriteVCFFile(ctx, paths.VCF, opts.AmpliconName, res.Amplicon, calls, opts.VCFGzip, parallelism)
		}
	})
	if err != nil {
		return paths, err
	}
	log.Printf("wrote %s, %s, %s", paths.FASTQ, paths.Edits, paths.VCF)
	return paths, nil
}
