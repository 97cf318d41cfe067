package truth

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
)

// VCFSample names the single sample column of the VCF.
const VCFSample = "Reference"

// SymbolicDeletion is the ALT allele of a deletion of the whole amplicon,
// which has no base left to anchor on.
const SymbolicDeletion = "<DEL>"

// WriteVCF writes calls as a VCF on the amplicon contig.
func WriteVCF(w io.Writer, chrom, amplicon string, calls []VariantCall) error {
	tw := tsv.NewWriter(w)
	header := []string{
		"##fileformat=VCFv4.5",
		"##source=syn-gen",
		fmt.Sprintf("##contig=<ID=%s,length=%d>", chrom, len(amplicon)),
		`##INFO=<ID=AF,Number=A,Type=Float,Description="Allele Frequency">`,
	}
	for _, c := range calls {
		if c.Alt == SymbolicDeletion {
			header = append(header, `##ALT=<ID=DEL,Description="Deletion">`)
			break
		}
	}
	for _, line := range header {
		tw.WriteString(line)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	for _, col := range []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT", VCFSample} {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, c := range calls {
		tw.WriteString(c.Chrom)
		tw.WriteInt64(int64(c.Pos))
		tw.WriteString(".")
		tw.WriteString(c.Ref)
		tw.WriteString(c.Alt)
		tw.WriteString(".")
		tw.WriteString("PASS")
		tw.WriteString(fmt.Sprintf("AF=%.3f", c.AF))
		tw.WriteString("GT")
		tw.WriteString(".")
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteVCFFile writes the VCF to path, bgzip-compressed when bgzip is set.
func WriteVCFFile(ctx context.Context, path, chrom, amplicon string, calls []VariantCall, bgzip bool, parallelism int) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	if !bgzip {
		return WriteVCF(out.Writer(ctx), chrom, amplicon, calls)
	}
	bw := bgzf.NewWriter(out.Writer(ctx), parallelism)
	defer func() {
		if e := bw.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return WriteVCF(bw, chrom, amplicon, calls)
}
