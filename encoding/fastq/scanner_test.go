package fastq

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fq = `@read_0
GGAATCCCTTCTGCAGCACCTGGATCGC
+
IIIIIIIIIIIIIIIIIIIIIIIIIIII
@read_1 edited
GGAATCCCTTCTGCAGCATCTGGATCGC
+
IIIIIIIIIIIIIIIIIIIIIIIIIIII
@read_2
GGAATCCCTTCTGCAGCTGGATCGC
+
IIIIIIIIIIIIIIIIIIIIIIIII
@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG
ATACAGGCCTGANCCACTGTGCCCAG
+
AAAAAEEEEEEE#EEAEEEEEEEEEE
`

func stringScanner(s string) *Scanner {
	return NewScanner(bytes.NewReader([]byte(s)), All)
}

func scanErr(s string) error {
	scan := stringScanner(s)
	var r Read
	for scan.Scan(&r) {
	}
	return scan.Err()
}

func TestFASTQ(t *testing.T) {
	s := stringScanner(fq)
	var r Read
	if !s.Scan(&r) {
		t.Fatal(s.Err())
	}
	expect := NewRead("read_0", "GGAATCCCTTCTGCAGCACCTGGATCGC", 'I')
	if got, want := r, expect; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var names []string
	for s.Scan(&r) {
		names = append(names, r.Name())
	}
	if err := s.Err(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	assert.Equal(t, []string{"read_1", "read_2", "NB500956:89:HW2FHBGX2:1:11101:25648:1069"}, names)
}

func TestBadFASTQ(t *testing.T) {
	if got, want := scanErr("12312#"), ErrInvalid; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := scanErr("@1234\n123"), ErrShort; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := scanErr("@1234\nACGT\n-\nIIII\n"), ErrInvalid; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := scanErr("@1234\nACGT\n+\nIII\n"), ErrLength; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Lengths are not compared unless both fields are read.
	scan := NewScanner(bytes.NewReader([]byte("@1234\nACGT\n+\nIII\n")), ID|Qual)
	var r Read
	assert.True(t, scan.Scan(&r))
	assert.NoError(t, scan.Err())
}

func TestTrim(t *testing.T) {
	r := NewRead("r", "ACGTACGT", 'I')
	r.Trim(5)
	assert.Equal(t, "ACGTA", r.Seq)
	assert.Equal(t, "IIIII", r.Qual)
	r.Trim(10)
	assert.Equal(t, "ACGTA", r.Seq)
}

func TestWriter(t *testing.T) {
	var (
		s = stringScanner(fq)
		b = new(bytes.Buffer)
		w = NewWriter(b)
		r Read
	)
	for s.Scan(&r) {
		if err := w.Write(&r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 4, w.Count())
	if got, want := b.String(), fq; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "fastq")
	defer cleanup()
	reads := []Read{
		NewRead("read_0", "ACGT", 'I'),
		NewRead("read_1", "ACGTT", 'I'),
	}
	for _, name := range []string{"reads.fastq", "reads.fastq.gz"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(ctx, path, reads))
		var got []Read
		require.NoError(t, ReadFile(ctx, path, All, func(r *Read) error {
			got = append(got, *r)
			return nil
		}))
		assert.Equal(t, reads, got, name)
	}
	assert.True(t, IsGzip("x.fastq.gz"))
	assert.False(t, IsGzip("x.fastq"))
}
