package truth

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/editsim/edit"
)

// editRow is one line of the edits TSV. Multi-position values are
// comma-separated.
type editRow struct {
	ReadName          string `tsv:"read_name"`
	EditType          string `tsv:"edit_type"`
	EditPosition      string `tsv:"edit_position"`
	EditSize          int    `tsv:"edit_size"`
	OriginalSeq       string `tsv:"original_seq"`
	EditedSeq         string `tsv:"edited_seq"`
	SeqErrorCount     int    `tsv:"seq_error_count"`
	SeqErrorPositions string `tsv:"seq_error_positions"`
	SeqErrorOriginal  string `tsv:"seq_error_original"`
	SeqErrorNew       string `tsv:"seq_error_new"`
	PEOutcome         string `tsv:"pe_outcome"`
}

func joinBytes(n int, get func(i int) byte) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = string(get(i))
	}
	return strings.Join(parts, ",")
}

func joinInts(n int, get func(i int) int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.Itoa(get(i))
	}
	return strings.Join(parts, ",")
}

func newRow(r *Record) editRow {
	e := r.Edit
	row := editRow{
		ReadName:      r.Name,
		EditType:      e.Kind.String(),
		EditPosition:  strconv.Itoa(e.Pos),
		EditSize:      e.Size,
		OriginalSeq:   e.Orig,
		EditedSeq:     e.New,
		SeqErrorCount: len(r.Errors),
		PEOutcome:     string(e.Outcome),
	}
	if e.Kind == edit.Substitution {
		c := e.Changes
		row.EditPosition = joinInts(len(c), func(i int) int { return c[i].Pos })
		row.OriginalSeq = joinBytes(len(c), func(i int) byte { return c[i].Orig })
		row.EditedSeq = joinBytes(len(c), func(i int) byte { return c[i].New })
	}
	if errs := r.Errors; len(errs) > 0 {
		row.SeqErrorPositions = joinInts(len(errs), func(i int) int { return errs[i].Pos })
		row.SeqErrorOriginal = joinBytes(len(errs), func(i int) byte { return errs[i].Orig })
		row.SeqErrorNew = joinBytes(len(errs), func(i int) byte { return errs[i].New })
	}
	return row
}

// WriteEdits writes the edits TSV, with a header row, to w.
func WriteEdits(w io.Writer, records []Record) error {
	rw := tsv.NewRowWriter(w)
	for i := range records {
		row := newRow(&records[i])
		if err := rw.Write(&row); err != nil {
			return err
		}
	}
	return rw.Flush()
}

// WriteEditsFile writes the edits TSV to path.
func WriteEditsFile(ctx context.Context, path string, records []Record) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return WriteEdits(out.Writer(ctx), records)
}

// ReadEdits parses an edits TSV written by WriteEdits.
func ReadEdits(r io.Reader) ([]Record, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	var records []Record
	for line := 2; ; line++ {
		var row editRow
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("edits TSV line %d", line))
		}
		rec, err := row.record()
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("edits TSV line %d", line))
		}
		records = append(records, rec)
	}
}

// ReadEditsFile parses the edits TSV at path.
func ReadEditsFile(ctx context.Context, path string) (records []Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	return ReadEdits(in.Reader(ctx))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("bad position %q", p))
		}
		vals[i] = v
	}
	return vals, nil
}

func parseBases(s string, n int) ([]byte, error) {
	parts := splitList(s)
	if len(parts) != n {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("expected %d bases, got %q", n, s))
	}
	vals := make([]byte, n)
	for i, p := range parts {
		if len(p) != 1 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("bad base %q", p))
		}
		vals[i] = p[0]
	}
	return vals, nil
}

func (row *editRow) record() (Record, error) {
	rec := Record{Name: row.ReadName}
	kind, err := edit.ParseKind(row.EditType)
	if err != nil {
		return rec, err
	}
	positions, err := parseInts(row.EditPosition)
	if err != nil {
		return rec, err
	}
	e := edit.Edit{Kind: kind, Size: row.EditSize, Outcome: edit.Outcome(row.PEOutcome)}
	if kind == edit.Substitution {
		orig, err := parseBases(row.OriginalSeq, len(positions))
		if err != nil {
			return rec, err
		}
		seq, err := parseBases(row.EditedSeq, len(positions))
		if err != nil {
			return rec, err
		}
		for i, pos := range positions {
			e.Changes = append(e.Changes, edit.Change{Pos: pos, Orig: orig[i], New: seq[i]})
		}
		if len(positions) > 0 {
			e.Pos = positions[0]
		}
	} else {
		if len(positions) != 1 {
			return rec, errors.E(errors.Invalid, fmt.Sprintf("bad edit position %q", row.EditPosition))
		}
		e.Pos, e.Orig, e.New = positions[0], row.OriginalSeq, row.EditedSeq
	}
	rec.Edit = e

	errPositions, err := parseInts(row.SeqErrorPositions)
	if err != nil {
		return rec, err
	}
	if len(errPositions) != row.SeqErrorCount {
		return rec, errors.E(errors.Invalid, fmt.Sprintf("seq_error_count %d does not match %d positions",
			row.SeqErrorCount, len(errPositions)))
	}
	orig, err := parseBases(row.SeqErrorOriginal, len(errPositions))
	if err != nil {
		return rec, err
	}
	seq, err := parseBases(row.SeqErrorNew, len(errPositions))
	if err != nil {
		return rec, err
	}
	for i, pos := range errPositions {
		rec.Errors = append(rec.Errors, edit.SequencingError{Pos: pos, Orig: orig[i], New: seq[i]})
	}
	return rec, nil
}
