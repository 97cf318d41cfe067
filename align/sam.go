package align

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

var mdTag = sam.NewTag("MD")

const maxSAMLine = 16 << 20

// SAM holds the primary alignments of a SAM text stream, keyed by read name.
type SAM struct {
	Records map[string]*Record
	// Unmapped counts unmapped records.
	Unmapped int
	// Secondary counts secondary and supplementary records, which are
	// ignored.
	Secondary int
	// Skipped counts malformed records.
	Skipped int
}

// ParseSAM reads SAM text. Header lines are ignored, and malformed records
// are logged and counted rather than failing the parse. Only a read error
// is returned.
func ParseSAM(in io.Reader) (*SAM, error) {
	s := &SAM{Records: map[string]*Record{}}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(nil, maxSAMLine)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '@' {
			continue
		}
		if err := s.add(line); err != nil {
			log.Error.Printf("SAM line %d skipped: %v", lineNo, err)
			s.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "read SAM")
	}
	return s, nil
}

func (s *SAM) add(line string) error {
	fields := strings.Split(line, "\t")
	if len(fields) < 11 {
		return errors.E(errors.Invalid, "expected at least 11 fields, got", strconv.Itoa(len(fields)))
	}
	name := fields[0]
	flag, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return errors.E(errors.Invalid, err, "bad FLAG")
	}
	flags := sam.Flags(flag)
	if flags&sam.Unmapped != 0 || fields[2] == "*" || fields[5] == "*" {
		s.Unmapped++
		return nil
	}
	if flags&(sam.Secondary|sam.Supplementary) != 0 {
		s.Secondary++
		return nil
	}
	pos, err := strconv.Atoi(fields[3])
	if err != nil || pos < 1 {
		return errors.E(errors.Invalid, "bad POS", fields[3])
	}
	cigar, err := sam.ParseCigar([]byte(fields[5]))
	if err != nil {
		return errors.E(errors.Invalid, err, "bad CIGAR")
	}
	md, found := "", false
	for _, f := range fields[11:] {
		if !strings.HasPrefix(f, "MD:") {
			continue
		}
		aux, err := sam.ParseAux([]byte(f))
		if err != nil {
			return errors.E(errors.Invalid, err, "bad MD tag")
		}
		if aux.Tag() == mdTag {
			md, found = aux.Value().(string)
		}
	}
	if !found {
		return errors.E(errors.Invalid, "read", name, "has no MD tag")
	}
	if _, dup := s.Records[name]; dup {
		return errors.E(errors.Invalid, "duplicate primary alignment for", name)
	}
	rec, err := NewRecord(name, pos-1, cigar, md, fields[9])
	if err != nil {
		return err
	}
	s.Records[name] = rec
	return nil
}
