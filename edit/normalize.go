package edit

// LeftAlign moves a deletion or insertion to its leftmost equivalent
// position, matching the placement reported by standard aligners. Other
// kinds, including PrimeEdit, are returned unchanged.
//
// A deletion shifts left while the base preceding it equals its last base.
// An insertion shifts left while the preceding base equals its last base,
// rotating the inserted sequence by one each step.
func LeftAlign(amplicon string, e Edit) Edit {
	switch e.Kind {
	case Deletion:
		pos, size := e.Pos, e.Size
		for pos > 0 && amplicon[pos-1] == amplicon[pos+size-1] {
			pos--
		}
		if pos != e.Pos {
			e.Pos = pos
			e.Orig = amplicon[pos : pos+size]
		}
	case Insertion:
		ins := []byte(e.New)
		pos := e.Pos
		n := len(ins)
		for n > 0 && pos > 0 && amplicon[pos-1] == ins[n-1] {
			last := ins[n-1]
			copy(ins[1:], ins[:n-1])
			ins[0] = last
			pos--
		}
		if pos != e.Pos {
			e.Pos = pos
			e.New = string(ins)
		}
	}
	return e
}
