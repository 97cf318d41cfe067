// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// MDKind is the type of an MD tag operation.
type MDKind uint8

const (
	// MDMatch is a run of reference-matching bases.
	MDMatch MDKind = iota
	// MDSubstitution is one mismatched base; Bases holds the reference base.
	MDSubstitution
	// MDDeletion is a deleted run; Bases holds the deleted reference bases.
	MDDeletion
)

// MDOp is one operation of an MD tag.
type MDOp struct {
	Kind  MDKind
	N     int
	Bases string
}

func (op MDOp) String() string {
	switch op.Kind {
	case MDMatch:
		return fmt.Sprintf("match(%d)", op.N)
	case MDSubstitution:
		return fmt.Sprintf("sub(%s)", op.Bases)
	}
	return fmt.Sprintf("del(%s)", op.Bases)
}

func isMDBase(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ParseMD parses the value of an MD:Z tag. Zero-length match runs, which
// separate adjacent mismatches, are dropped.
func ParseMD(md string) ([]MDOp, error) {
	var ops []MDOp
	for i := 0; i < len(md); {
		c := md[i]
		switch {
		case c >= '0' && c <= '9':
			n := 0
			for ; i < len(md) && md[i] >= '0' && md[i] <= '9'; i++ {
				n = n*10 + int(md[i]-'0')
			}
			if n > 0 {
				ops = append(ops, MDOp{Kind: MDMatch, N: n})
			}
		case c == '^':
			j := i + 1
			for j < len(md) && isMDBase(md[j]) {
				j++
			}
			if j == i+1 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("MD %q: deletion without bases at %d", md, i))
			}
			ops = append(ops, MDOp{Kind: MDDeletion, N: j - i - 1, Bases: md[i+1 : j]})
			i = j
		case isMDBase(c):
			ops = append(ops, MDOp{Kind: MDSubstitution, N: 1, Bases: md[i : i+1]})
			i++
		default:
			return nil, errors.E(errors.Invalid, fmt.Sprintf("MD %q: unexpected character %q at %d", md, c, i))
		}
	}
	return ops, nil
}

// mdCursor walks MD operations one reference base at a time. A match run
// may be consumed across several CIGAR operations.
type mdCursor struct {
	md   string
	ops  []MDOp
	i    int
	used int // bases consumed from ops[i]
}

func (c *mdCursor) errorf(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, fmt.Sprintf("MD %q: ", c.md)+fmt.Sprintf(format, args...))
}

// aligned consumes one aligned reference base. It returns the reference
// base and true when the MD tag records a mismatch there.
func (c *mdCursor) aligned() (byte, bool, error) {
	if c.i >= len(c.ops) {
		return 0, false, c.errorf("too short for the CIGAR")
	}
	op := c.ops[c.i]
	switch op.Kind {
	case MDMatch:
		c.used++
		if c.used == op.N {
			c.i, c.used = c.i+1, 0
		}
		return 0, false, nil
	case MDSubstitution:
		c.i, c.used = c.i+1, 0
		return op.Bases[0], true, nil
	}
	return 0, false, c.errorf("deletion %s where the CIGAR has aligned bases", op.Bases)
}

// deletion consumes a deletion of n bases and returns the deleted bases.
func (c *mdCursor) deletion(n int) (string, error) {
	if c.i >= len(c.ops) || c.used != 0 {
		return "", c.errorf("no deletion at CIGAR deletion of %d", n)
	}
	op := c.ops[c.i]
	if op.Kind != MDDeletion || op.N != n {
		return "", c.errorf("expected a %d base deletion, got %v", n, op)
	}
	c.i++
	return op.Bases, nil
}

func (c *mdCursor) done() bool {
	return c.i == len(c.ops)
}
