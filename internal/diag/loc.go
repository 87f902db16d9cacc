package diag

// SrcLoc is a byte range into the translation unit's source text.
type SrcLoc struct {
	Off uint64
	Len uint32
}

func Loc(off uint64, len uint32) SrcLoc {
	return SrcLoc{Off: off, Len: len}
}

// Span builds the location covering [off, end).
func Span(off, end uint64) SrcLoc {
	return SrcLoc{Off: off, Len: uint32(end - off)}
}

func (l SrcLoc) End() uint64 {
	return l.Off + uint64(l.Len)
}

// Union returns the smallest location covering both l and other.
func (l SrcLoc) Union(other SrcLoc) SrcLoc {
	off := min(l.Off, other.Off)
	return SrcLoc{Off: off, Len: uint32(max(l.End(), other.End()) - off)}
}

// Truncate returns l shrunk to n bytes; Truncate(0) is the point form used
// for caret-only diagnostics.
func (l SrcLoc) Truncate(n uint32) SrcLoc {
	if n < l.Len {
		l.Len = n
	}
	return l
}
