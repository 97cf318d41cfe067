// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
syn-verify aligns reads written by syn-gen with bwa and checks the edits
bwa reports for each read against the ground truth edits TSV.

Sample usage:
syn-verify \
    -amplicon CGGATGTTCC... \
    -fastq synthetic.fastq \
    -truth synthetic_edits.tsv

The exit status is 1 when any read fails verification.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/editsim/aligner"
	"github.com/grailbio/editsim/encoding/fasta"
	"github.com/grailbio/editsim/verify"
)

var (
	amplicon      = flag.String("amplicon", "", "Reference amplicon sequence")
	ampliconFasta = flag.String("amplicon-fasta", "", "FASTA file holding the amplicon; the sequence named by -amplicon-name, or else the first, is used")
	ampliconName  = flag.String("amplicon-name", verify.DefaultOpts.AmpliconName, "Reference name given to the aligner; defaults to the FASTA sequence name with -amplicon-fasta")
	fastqPath     = flag.String("fastq", "", "Reads to verify (.fastq or .fastq.gz)")
	truthPath     = flag.String("truth", "", "Ground truth edits TSV written by syn-gen")
	bwaPath       = flag.String("bwa", "", "bwa executable; looked up on PATH when empty")
	timeout       = flag.Duration("timeout", aligner.DefaultBWAOpts.Timeout, "Timeout of each bwa invocation")
	threads       = flag.Int("threads", aligner.DefaultBWAOpts.Threads, "bwa mem threads")
	tmpDir        = flag.String("tmp", "", "Directory for the reference and its index; a temporary directory is used when empty")
	parallelism   = flag.Int("parallelism", verify.DefaultOpts.Parallelism, "Number of shards reads are verified in")
	maxReported   = flag.Int("max-reported", 20, "Maximum number of failed reads to log")
)

func synVerifyUsage() {
	fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = synVerifyUsage
	shutdown := grail.Init()
	defer shutdown()
	if flag.NArg() > 0 {
		log.Fatalf("unexpected positional arguments: '%s'", strings.Join(flag.Args(), " "))
	}
	if *fastqPath == "" || *truthPath == "" {
		log.Fatalf("-fastq and -truth are required")
	}
	ctx := vcontext.Background()

	opts := verify.DefaultOpts
	opts.Amplicon = *amplicon
	opts.AmpliconName = *ampliconName
	if *ampliconFasta != "" {
		if *amplicon != "" {
			log.Fatalf("-amplicon and -amplicon-fasta are mutually exclusive")
		}
		name := *ampliconName
		if name == verify.DefaultOpts.AmpliconName {
			name = ""
		}
		var err error
		if opts.AmpliconName, opts.Amplicon, err = fasta.ReadAmplicon(ctx, *ampliconFasta, name); err != nil {
			log.Fatalf("%v", err)
		}
	}
	bwa, err := aligner.NewBWA(aligner.BWAOpts{Path: *bwaPath, Timeout: *timeout, Threads: *threads})
	if err != nil {
		log.Fatalf("%v", err)
	}
	opts.Aligner = bwa
	opts.FASTQPath = *fastqPath
	opts.TruthPath = *truthPath
	opts.TmpDir = *tmpDir
	opts.Parallelism = *parallelism

	res, err := verify.Run(ctx, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	res.Summary(*maxReported)
	if !res.AllPassed() {
		shutdown()
		os.Exit(1)
	}
}
