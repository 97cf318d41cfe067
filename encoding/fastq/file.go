package fastq

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

// IsGzip reports whether path names a gzip-compressed FASTQ file.
func IsGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// ReadFile scans every read of the FASTQ file at path, decompressing it
// when the path ends in ".gz", and calls fn for each. Scanning stops at the
// first error returned by fn.
func ReadFile(ctx context.Context, path string, fields Field, fn func(r *Read) error) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if IsGzip(path) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return errors.E(err, "open gzip", path)
		}
		defer gz.Close() // nolint: errcheck
		r = gz
	}
	scan := NewScanner(r, fields)
	var read Read
	for scan.Scan(&read) {
		if err := fn(&read); err != nil {
			return err
		}
	}
	if err := scan.Err(); err != nil {
		return errors.E(err, "read", path)
	}
	return nil
}

// WriteFile writes reads to path in FASTQ format, compressing the output
// when the path ends in ".gz".
func WriteFile(ctx context.Context, path string, reads []Read) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	var (
		dst = out.Writer(ctx)
		gz  *gzip.Writer
	)
	if IsGzip(path) {
		gz = gzip.NewWriter(dst)
		dst = gz
	}
	w := NewWriter(dst)
	for i := range reads {
		if err := w.Write(&reads[i]); err != nil {
			return errors.E(err, "write", path)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.E(err, "write", path)
	}
	log.Debug.Printf("wrote %d reads to %s", w.Count(), path)
	if gz != nil {
		if err := gz.Close(); err != nil {
			return errors.E(err, "close gzip", path)
		}
	}
	return nil
}
