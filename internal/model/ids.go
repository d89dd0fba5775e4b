package model

// SplitHalf tags a code that was produced by an A/B overflow split.
type SplitHalf int8

const (
	SplitNone SplitHalf = iota
	SplitA
	SplitB
)

// Code identifies a partner or an asset. Split halves carry an explicit tag
// instead of a munged suffix so downstream stages can recover the parent.
type Code struct {
	Base string
	Half SplitHalf
}

// NewCode returns an unsplit code for the given raw identifier.
func NewCode(base string) Code {
	return Code{Base: base}
}

func (c Code) String() string {
	switch c.Half {
	case SplitA:
		return c.Base + "_A"
	case SplitB:
		return c.Base + "_B"
	default:
		return c.Base
	}
}

// Parent returns the pre-split code. For unsplit codes it returns the code
// itself.
func (c Code) Parent() Code {
	return Code{Base: c.Base}
}

// IsSplit reports whether the code is an A/B half.
func (c Code) IsSplit() bool {
	return c.Half != SplitNone
}

// WithHalf returns a copy of the code tagged with the given half.
func (c Code) WithHalf(h SplitHalf) Code {
	c.Half = h
	return c
}
