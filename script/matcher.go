package script

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/txscript"
)

// scriptMatcher is an interface implemented by functions which can be used to
// match elements in bitcoin script.
type scriptMatcher interface {
	match(r io.Reader) (bool, error)
}

// exactMatcher matches script exactly with an expected set of bytes, checking
// that we read the expected number of bytes out and that the value is exactly
// the same.
type exactMatcher struct {
	script []byte
}

// newOpcodeMatcher creates an exact matcher for opcodes. It uses script builder
// to cover any edge cases where an opcode adds more than one element to the
// stack.
func newOpcodeMatcher(opcode byte) (*exactMatcher, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(opcode)

	script, err := builder.Script()
	if err != nil {
		return nil, err
	}

	return &exactMatcher{
		script: script,
	}, nil
}

// newDataMatcher returns an exact matcher which will exactly match data
// elements with our script. It uses a script builder to match data elements
// because script adds different data opcodes based on length.
func newDataMatcher(data []byte) (*exactMatcher, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(data)

	script, err := builder.Script()
	if err != nil {
		return nil, err
	}

	return &exactMatcher{
		script: script,
	}, nil
}

// match matches an expected script against our reader. It checks that we read
// the number of bytes we expect, and that the value is the same.
//
// Note: part of the scriptMatcher interface.
func (e *exactMatcher) match(r io.Reader) (bool, error) {
	scratch := make([]byte, len(e.script))

	n, err := r.Read(scratch)
	if err != nil {
		return false, err
	}

	// Check that we read our expected length from the reader, this check
	// ensures that we did not run out of bytes.
	if n != len(e.script) {
		return false, nil
	}

	// Return true if the element we read from the buffer is our script.
	return bytes.Equal(e.script, scratch), nil
}

// lengthMatcher matches a data element in bitcoin script by its length, but
// does not check the actual contents against any specific value. This type of
// matcher should be used to data elements that we know to be present, but do
// not have the exact values for them.
type lengthMatcher struct {
	length int
}

// newLengthMatcher creates a length based matcher which will check that a data
// element of the expected length is present, but does not match its actual
// contents. The push opcode itself is checked, so a 33 byte key must be pushed
// with OP_DATA_33.
func newLengthMatcher(length int) (*exactPrefixMatcher, error) {
	scratch := make([]byte, length)

	builder := txscript.NewScriptBuilder()
	builder.AddData(scratch)

	script, err := builder.Script()
	if err != nil {
		return nil, err
	}

	// Everything before our data element is the push opcode (and its
	// length bytes for larger pushes), which we match exactly.
	prefix := script[:len(script)-length]

	return &exactPrefixMatcher{
		prefix: prefix,
		lengthMatcher: lengthMatcher{
			length: length,
		},
	}, nil
}

// match matches a data element by length but does not check the actual
// contents.
//
// Note: part of the scriptMatcher interface.
func (l *lengthMatcher) match(r io.Reader) (bool, error) {
	// Create a byte slice equal to the length of our desired data element.
	scratch := make([]byte, l.length)

	n, err := r.Read(scratch)
	if err != nil {
		return false, err
	}

	// Since we don't need to check our actual value, we just check our
	// length against the number of bytes we read out.
	return n == l.length, nil
}

// exactPrefixMatcher matches a push opcode exactly, followed by a data element
// that is only matched by length.
type exactPrefixMatcher struct {
	prefix []byte
	lengthMatcher
}

// match checks our push opcode, then the length of the data that follows it.
//
// Note: part of the scriptMatcher interface.
func (p *exactPrefixMatcher) match(r io.Reader) (bool, error) {
	prefix := &exactMatcher{script: p.prefix}

	ok, err := prefix.match(r)
	if err != nil || !ok {
		return ok, err
	}

	return p.lengthMatcher.match(r)
}

// scriptNumMatcher matches a minimally encoded positive script number such as
// a csv delay or cltv expiry. Small values are encoded as OP_1-OP_16, larger
// values as a data push of at most maxLength bytes. We do not know the value
// that a commitment used, so any value in range matches.
type scriptNumMatcher struct {
	maxLength int
}

// match reads a single number element from the reader.
//
// Note: part of the scriptMatcher interface.
func (s *scriptNumMatcher) match(r io.Reader) (bool, error) {
	var opcode [1]byte
	if _, err := io.ReadFull(r, opcode[:]); err != nil {
		return false, err
	}

	switch op := opcode[0]; {
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		return true, nil

	case op >= txscript.OP_DATA_1 && int(op) <= s.maxLength:
		scratch := make([]byte, op)
		_, err := io.ReadFull(r, scratch)
		switch err {
		case nil:
			return true, nil

		// Running out of bytes part way through our number means that
		// the script is truncated, which is not a match.
		case io.ErrUnexpectedEOF:
			return false, io.EOF

		default:
			return false, err
		}

	default:
		return false, nil
	}
}

// templateBuilder accumulates the matchers that make up a script template. The
// first error encountered is kept and returned by template, so that templates
// can be declared as a single chain of calls.
type templateBuilder struct {
	matchers []scriptMatcher
	err      error
}

// op adds exact matchers for each of the opcodes provided.
func (b *templateBuilder) op(opcodes ...byte) *templateBuilder {
	for _, opcode := range opcodes {
		if b.err != nil {
			return b
		}

		var matcher *exactMatcher
		matcher, b.err = newOpcodeMatcher(opcode)
		if b.err == nil {
			b.matchers = append(b.matchers, matcher)
		}
	}

	return b
}

// data adds an exact matcher for a data push.
func (b *templateBuilder) data(data []byte) *templateBuilder {
	if b.err != nil {
		return b
	}

	var matcher *exactMatcher
	matcher, b.err = newDataMatcher(data)
	if b.err == nil {
		b.matchers = append(b.matchers, matcher)
	}

	return b
}

// length adds a matcher for a data push of the length provided.
func (b *templateBuilder) length(length int) *templateBuilder {
	if b.err != nil {
		return b
	}

	var matcher *exactPrefixMatcher
	matcher, b.err = newLengthMatcher(length)
	if b.err == nil {
		b.matchers = append(b.matchers, matcher)
	}

	return b
}

// number adds a matcher for a script number of at most maxLength bytes.
func (b *templateBuilder) number(maxLength int) *templateBuilder {
	if b.err == nil {
		b.matchers = append(b.matchers, &scriptNumMatcher{
			maxLength: maxLength,
		})
	}

	return b
}

// template returns the set of matchers built, or the first error we hit.
func (b *templateBuilder) template() ([]scriptMatcher, error) {
	if b.err != nil {
		return nil, b.err
	}

	return b.matchers, nil
}

// matchScript attempts to match a bitcoin script with the set of required
// elements provided.
func matchScript(script []byte, scriptMatches []scriptMatcher) (bool, error) {
	r := bytes.NewReader(script)

	// Run through our set of script matchers, consuming the bytes in our
	// reader. If we do not get a match, we fail the match.
	for _, m := range scriptMatches {
		ok, err := m.match(r)
		switch err {
		// If we get an EOF error, we ran out of bytes in our script so
		// we can't possibly match it.
		case io.EOF:
			return false, nil

		// If we have no error, fallthrough to check our match.
		case nil:

		// If our error is a non-nil error that is not an EOF, we return
		// it.
		default:
			return false, err
		}

		// If we did not successfully match this item, return false.
		if !ok {
			return false, nil
		}
	}

	// Return true if there are no bytes left in our script and we have
	// matched everything.
	return r.Len() == 0, nil
}
