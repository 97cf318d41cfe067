// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dna contains small helpers for ASCII nucleotide sequences shared by
// the generator and the verifier: complementing, alphabet validation and
// random sequence generation.
package dna
