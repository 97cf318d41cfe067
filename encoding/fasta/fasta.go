// Package fasta reads and writes FASTA files. FASTA files consist of a
// number of named sequences that may be interrupted by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appear after a space are ignored.
// For example, '>chr1 A viral sequence' becomes 'chr1'.
package fasta

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

const (
	bufferInitSize = 1024 * 1024 * 300 // 300 MB

	// DefaultLineWidth is the number of bases per line written by Write.
	DefaultLineWidth = 60
)

// Fasta holds FASTA-formatted data, consisting of a set of named sequences,
// in memory.
type Fasta struct {
	seqs     map[string]string
	seqNames []string
}

// New reads all the FASTA data from the given reader.
func New(r io.Reader) (*Fasta, error) {
	f := &Fasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var (
		seqName string
		started bool
		seq     strings.Builder
	)
	flush := func() error {
		if !started {
			if seq.Len() != 0 {
				return errors.Errorf("malformed FASTA file: sequence data before the first header")
			}
			return nil
		}
		if _, ok := f.seqs[seqName]; ok {
			return errors.Errorf("malformed FASTA file: duplicate sequence %s", seqName)
		}
		f.seqs[seqName] = seq.String()
		f.seqNames = append(f.seqNames, seqName)
		seq.Reset()
		return nil
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			if err := flush(); err != nil {
				return nil, err
			}
			seqName = strings.Split(line[1:], " ")[0]
			started = true
		} else {
			seq.WriteString(line)
		}
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read FASTA data")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(f.seqNames) == 0 {
		return nil, errors.New("FASTA data contains no sequences")
	}
	return f, nil
}

// ReadFile reads the FASTA file at path.
func ReadFile(ctx context.Context, path string) (f *Fasta, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	f, err = New(in.Reader(ctx))
	return f, errors.Wrapf(err, "read %s", path)
}

// Get returns the sequence with the given name.
func (f *Fasta) Get(seqName string) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	return s, nil
}

// First returns the name and sequence of the first record.
func (f *Fasta) First() (name, seq string) {
	name = f.seqNames[0]
	return name, f.seqs[name]
}

// SeqNames returns the names of all sequences, in the order of appearance in
// the FASTA file.
func (f *Fasta) SeqNames() []string {
	return f.seqNames
}

// ReadAmplicon reads a single amplicon from the FASTA file at path. When
// name is non-empty and the file has a sequence of that name, that sequence
// is returned. Otherwise the first sequence is returned, under name if it is
// non-empty and under its own name if not.
func ReadAmplicon(ctx context.Context, path, name string) (ampliconName, seq string, err error) {
	f, err := ReadFile(ctx, path)
	if err != nil {
		return "", "", err
	}
	if name != "" {
		if seq, err := f.Get(name); err == nil {
			return name, seq, nil
		}
	}
	first, seq := f.First()
	if n := len(f.SeqNames()); n > 1 {
		log.Printf("%s has %d sequences; using the first, %s", path, n, first)
	}
	if name == "" {
		name = first
	}
	return name, seq, nil
}

// Write writes one FASTA record, wrapping the sequence every lineWidth
// bases. A lineWidth <= 0 writes the sequence on a single line.
func Write(w io.Writer, name, seq string, lineWidth int) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(">")  // nolint: errcheck
	bw.WriteString(name) // nolint: errcheck
	bw.WriteByte('\n')   // nolint: errcheck
	if lineWidth <= 0 {
		lineWidth = len(seq)
	}
	for start := 0; start < len(seq); start += lineWidth {
		end := start + lineWidth
		if end > len(seq) {
			end = len(seq)
		}
		bw.WriteString(seq[start:end]) // nolint: errcheck
		bw.WriteByte('\n')             // nolint: errcheck
	}
	return errors.Wrapf(bw.Flush(), "write FASTA record %s", name)
}

// WriteFile writes a single-record FASTA file.
func WriteFile(ctx context.Context, path, name, seq string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return Write(out.Writer(ctx), name, seq, DefaultLineWidth)
}
