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
syn-gen writes synthetic amplicon reads carrying genome edits with known
ground truth: a FASTQ, a per-read edits TSV and a VCF of the aggregated
edits.
*/

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/editsim/encoding/fasta"
	"github.com/grailbio/editsim/generate"
	"github.com/grailbio/editsim/synth"
)

var (
	nhej = generate.DefaultNHEJOpts
	be   = generate.DefaultBaseEditOpts
	pe   = generate.DefaultPrimeEditOpts

	amplicon       = flag.String("amplicon", "", "Amplicon sequence; a random amplicon with an embedded guide is generated when neither this nor -amplicon-fasta is set")
	ampliconFasta  = flag.String("amplicon-fasta", "", "FASTA file holding the amplicon; the sequence named by -amplicon-name, or else the first, is used")
	guideSeq       = flag.String("guide", "", "Guide (protospacer) sequence, without PAM")
	ampliconName   = flag.String("amplicon-name", synth.DefaultOpts.AmpliconName, "Contig name used in the VCF; defaults to the FASTA sequence name with -amplicon-fasta")
	mode           = flag.String("mode", string(synth.DefaultOpts.Mode), "Editing mode: nhej, base-edit or prime-edit")
	numReads       = flag.Int("n", synth.DefaultOpts.NumReads, "Number of reads")
	editRate       = flag.Float64("edit-rate", synth.DefaultOpts.EditRate, "Fraction of reads selected for editing")
	errorRate      = flag.Float64("error-rate", synth.DefaultOpts.ErrorRate, "Per-base sequencing error rate")
	deletionWeight = flag.Float64("deletion-weight", nhej.DeletionWeight, "Probability that an NHEJ edit is a deletion")
	maxDeletion    = flag.Int("max-deletion", nhej.MaxDeletion, "Maximum NHEJ deletion size")
	maxInsertion   = flag.Int("max-insertion", nhej.MaxInsertion, "Maximum NHEJ insertion size")
	readLength     = flag.Int("read-length", 0, "Trim reads to this length; 0 keeps the whole amplicon")
	cleavageOffset = flag.Int("cleavage-offset", synth.DefaultOpts.CleavageOffset, "Cut site offset from the 3' end of the guide")
	baseEditor     = flag.String("base-editor", string(be.Editor), "Base editor: CBE or ABE")
	baseEditProb   = flag.Float64("base-edit-prob", be.EditProb, "Peak per-base conversion probability")
	windowCenter   = flag.Float64("window-center", be.WindowCenter, "Guide position (1 = PAM-distal) with the highest editing efficiency")
	windowSigma    = flag.Float64("window-sigma", be.WindowSigma, "Width of the base editing window")
	pegExtension   = flag.String("peg-extension", "", "pegRNA 3' extension (RT template + PBS), 5' to 3'; required with -mode=prime-edit")
	pbsLength      = flag.Int("pbs-length", pe.PBSLength, "Primer binding site length")
	pePerfect      = flag.Float64("pe-perfect", pe.Fractions.Perfect, "Weight of perfect prime edits")
	pePartial      = flag.Float64("pe-partial", pe.Fractions.Partial, "Weight of partial prime edits")
	peIndel        = flag.Float64("pe-indel", pe.Fractions.Indel, "Weight of indels at the nick")
	peScaffold     = flag.Float64("pe-scaffold", pe.Fractions.Scaffold, "Weight of scaffold read-through")
	peFlapIndel    = flag.Float64("pe-flap-indel", pe.Fractions.FlapIndel, "Weight of flap junction deletions")
	outPrefix      = flag.String("out", "synthetic", "Output path prefix; a prefix ending in .fastq.gz writes a gzipped FASTQ")
	vcfGzip        = flag.Bool("vcf-gzip", false, "Write a bgzipped VCF")
	seed           = flag.Int64("seed", synth.DefaultOpts.Seed, "Random seed")
	parallelism    = flag.Int("parallelism", synth.DefaultOpts.Parallelism, "Number of shards reads are generated in; output depends on it")
	quiet          = flag.Bool("quiet", false, "Do not log the simulation summary")
)

func synGenUsage() {
	fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = synGenUsage
	shutdown := grail.Init()
	defer shutdown()
	if flag.NArg() > 0 {
		log.Fatalf("unexpected positional arguments: '%s'", strings.Join(flag.Args(), " "))
	}
	ctx := vcontext.Background()

	opts := synth.DefaultOpts
	opts.AmpliconName = *ampliconName
	ampliconSeq, guide := *amplicon, *guideSeq
	switch {
	case *ampliconFasta != "":
		if ampliconSeq != "" {
			log.Fatalf("-amplicon and -amplicon-fasta are mutually exclusive")
		}
		name := *ampliconName
		if name == synth.DefaultOpts.AmpliconName {
			name = ""
		}
		var err error
		if opts.AmpliconName, ampliconSeq, err = fasta.ReadAmplicon(ctx, *ampliconFasta, name); err != nil {
			log.Fatalf("%v", err)
		}
	case ampliconSeq == "" && guide == "":
		var err error
		if ampliconSeq, guide, err = synth.RandomAmplicon(rand.New(rand.NewSource(*seed)), 200, 20); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("random amplicon %s, guide %s", ampliconSeq, guide)
	}
	if ampliconSeq == "" || guide == "" {
		log.Fatalf("both an amplicon and -guide are required")
	}

	m, err := generate.ParseMode(*mode)
	if err != nil {
		log.Fatalf("%v", err)
	}
	opts.Mode = m
	opts.NumReads = *numReads
	opts.EditRate = *editRate
	opts.ErrorRate = *errorRate
	opts.ReadLength = *readLength
	opts.CleavageOffset = *cleavageOffset
	opts.Seed = *seed
	opts.Parallelism = *parallelism
	opts.VCFGzip = *vcfGzip

	nhej.DeletionWeight = *deletionWeight
	nhej.MaxDeletion = *maxDeletion
	nhej.MaxInsertion = *maxInsertion
	be.Editor = generate.Editor(strings.ToUpper(*baseEditor))
	be.EditProb = *baseEditProb
	be.WindowCenter = *windowCenter
	be.WindowSigma = *windowSigma
	pe.Extension = *pegExtension
	pe.PBSLength = *pbsLength
	pe.Fractions = generate.OutcomeFractions{
		Perfect:   *pePerfect,
		Partial:   *pePartial,
		Indel:     *peIndel,
		Scaffold:  *peScaffold,
		FlapIndel: *peFlapIndel,
	}
	pe.NHEJ = nhej
	opts.Generate = generate.Opts{NHEJ: nhej, BaseEdit: be, PrimeEdit: pe}

	res, err := synth.Simulate(ampliconSeq, guide, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if _, err := synth.WriteOutputs(ctx, *outPrefix, res, opts); err != nil {
		log.Fatalf("%v", err)
	}
	if !*quiet {
		res.Summary()
	}
	log.Debug.Printf("exiting")
}
