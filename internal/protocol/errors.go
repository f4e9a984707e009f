package protocol

import "fmt"

// badMagicError signals a snapshot buffer whose magic tag does not match.
type badMagicError struct{ got uint32 }

func (e badMagicError) Error() string {
	return fmt.Sprintf("bad frame magic: 0x%08X (want 0x%08X)", e.got, FrameMagic)
}

// ErrBadMagic constructs a bad-magic decode error.
func ErrBadMagic(got uint32) error { return badMagicError{got: got} }

// IsBadMagic reports whether err indicates a wrong magic tag.
func IsBadMagic(err error) bool {
	_, ok := err.(badMagicError)
	return ok
}

// versionMismatchError signals an unsupported frame layout version.
type versionMismatchError struct{ got uint32 }

func (e versionMismatchError) Error() string {
	return fmt.Sprintf("frame version mismatch: %d (want %d)", e.got, FrameVersion)
}

// ErrVersionMismatch constructs a version-mismatch decode error.
func ErrVersionMismatch(got uint32) error { return versionMismatchError{got: got} }

// IsVersionMismatch reports whether err indicates an unsupported frame version.
func IsVersionMismatch(err error) bool {
	_, ok := err.(versionMismatchError)
	return ok
}

// malformedError signals a message that failed to tokenize or a buffer too
// short to carry a frame header. The caller drops the frame and continues.
type malformedError struct{ msg string }

func (e malformedError) Error() string { return "malformed message: " + e.msg }

// ErrMalformed constructs a malformed-message error.
func ErrMalformed(msg string) error { return malformedError{msg: msg} }

// IsMalformed reports whether err indicates an untokenizable message.
func IsMalformed(err error) bool {
	_, ok := err.(malformedError)
	return ok
}

// unbalancedStackError signals a frame whose clip/transform/state pushes and
// pops do not balance. The parser repairs the sequence; this error is the
// diagnostic record of the repair.
type unbalancedStackError struct{ detail string }

func (e unbalancedStackError) Error() string { return "unbalanced state stack: " + e.detail }

// ErrUnbalancedStack constructs an unbalanced-stack diagnostic.
func ErrUnbalancedStack(detail string) error { return unbalancedStackError{detail: detail} }

// IsUnbalancedStack reports whether err records a state-stack repair.
func IsUnbalancedStack(err error) bool {
	_, ok := err.(unbalancedStackError)
	return ok
}
