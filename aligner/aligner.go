// Package aligner runs an external short-read aligner over a reference and
// a FASTQ file and returns its SAM output.
package aligner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// Aligner indexes a reference and aligns reads against it.
type Aligner interface {
	// Index prepares the reference FASTA at refPath for alignment.
	Index(ctx context.Context, refPath string) error
	// Align aligns the reads at fastqPath and returns SAM text.
	Align(ctx context.Context, refPath, fastqPath string) ([]byte, error)
}

// Failure describes an aligner invocation that exited with an error or ran
// out of time.
type Failure struct {
	Cmd    string
	Stderr string
	Err    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %v", f.Cmd, f.Err)
	if s := strings.TrimSpace(f.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// BWAOpts configures the BWA aligner.
type BWAOpts struct {
	// Path is the bwa executable. If empty, "bwa" is looked up on PATH.
	Path string
	// Timeout bounds each bwa invocation.
	Timeout time.Duration
	// Threads is passed to "bwa mem -t".
	Threads int
}

// DefaultBWAOpts holds the default BWA options.
var DefaultBWAOpts = BWAOpts{
	Timeout: 10 * time.Minute,
	Threads: 1,
}

// BWA runs "bwa index" and "bwa mem" as subprocesses.
type BWA struct {
	path string
	opts BWAOpts
}

// LookBWA returns the path of the bwa executable on PATH.
func LookBWA() (string, error) {
	path, err := lookpath.Look(envvar.SliceToMap(os.Environ()), "bwa")
	if err != nil {
		return "", errors.E(errors.NotExist, err, "bwa executable")
	}
	return path, nil
}

// NewBWA returns a BWA aligner, resolving the executable path.
func NewBWA(opts BWAOpts) (*BWA, error) {
	path := opts.Path
	if path == "" {
		var err error
		if path, err = LookBWA(); err != nil {
			return nil, err
		}
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	return &BWA{path: path, opts: opts}, nil
}

// Index implements Aligner.
func (b *BWA) Index(ctx context.Context, refPath string) error {
	_, err := b.run(ctx, "index", refPath)
	return err
}

// Align implements Aligner.
func (b *BWA) Align(ctx context.Context, refPath, fastqPath string) ([]byte, error) {
	return b.run(ctx, "mem", "-t", strconv.Itoa(b.opts.Threads), refPath, fastqPath)
}

// run executes bwa and returns its standard output. A timeout is reported
// with kind errors.Timeout, any other failure with errors.Other.
func (b *BWA) run(ctx context.Context, args ...string) ([]byte, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmdline := b.path + " " + strings.Join(args, " ")
	start := time.Now()
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr == context.DeadlineExceeded {
		return nil, errors.E(errors.Timeout, &Failure{Cmd: cmdline, Stderr: stderr.String(), Err: ctxErr})
	}
	if err != nil {
		return nil, errors.E(errors.Other, &Failure{Cmd: cmdline, Stderr: stderr.String(), Err: err})
	}
	log.Debug.Printf("%s: done in %v", cmdline, time.Since(start))
	return stdout.Bytes(), nil
}

// Static returns canned SAM text. Index is a no-op.
type Static struct {
	SAM []byte
	// Err, if set, is returned by Align.
	Err error
}

// Index implements Aligner.
func (s *Static) Index(context.Context, string) error { return nil }

// Align implements Aligner.
func (s *Static) Align(context.Context, string, string) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.SAM, nil
}
