package script

import (
	"github.com/btcsuite/btcd/txscript"
)

const (
	// preimageLength is the number of bytes a htlc preimage takes up.
	preimageLength = 32

	// hashLength is the length of the ripemd160 hashes we include in htlc
	// scripts.
	hashLength = 20

	// keyLength is the length of the compressed public keys used in
	// commitment scripts.
	keyLength = 33

	// maxCsvLength is the largest number of bytes a to_self_delay can be
	// encoded with. The delay is a uint16, which may need a sign byte.
	maxCsvLength = 3

	// maxCltvLength is the largest number of bytes a cltv expiry can be
	// encoded with.
	maxCltvLength = 5
)

// Template identifies the bolt03 script that an output commits to.
type Template int

const (
	// TemplateUnknown is returned for scripts that are not a commitment
	// output script.
	TemplateUnknown Template = iota

	// TemplateToLocal is the delayed output paying the commitment's
	// broadcaster, which the counterparty can claim with the revocation
	// key.
	TemplateToLocal

	// TemplateToRemote is the to_remote output of anchor channels, which
	// carries a one block csv delay.
	TemplateToRemote

	// TemplateOfferedHtlc is a htlc offered by the commitment's
	// broadcaster.
	TemplateOfferedHtlc

	// TemplateReceivedHtlc is a htlc received by the commitment's
	// broadcaster.
	TemplateReceivedHtlc

	// TemplateAnchor is an anchor output.
	TemplateAnchor
)

// String returns the bolt03 name of a template.
func (t Template) String() string {
	switch t {
	case TemplateToLocal:
		return "to_local"

	case TemplateToRemote:
		return "to_remote"

	case TemplateOfferedHtlc:
		return "offered_htlc"

	case TemplateReceivedHtlc:
		return "received_htlc"

	case TemplateAnchor:
		return "anchor"

	default:
		return "unknown"
	}
}

// newToLocalMatcher creates a matcher for the to_local output script:
//
//	OP_IF
//		[33 byte revocation key]
//	OP_ELSE
//		<to_self_delay> OP_CHECKSEQUENCEVERIFY OP_DROP
//		[33 byte delayed key]
//	OP_ENDIF
//	OP_CHECKSIG
func newToLocalMatcher() ([]scriptMatcher, error) {
	b := &templateBuilder{}

	return b.op(txscript.OP_IF).
		length(keyLength).
		op(txscript.OP_ELSE).
		number(maxCsvLength).
		op(txscript.OP_CHECKSEQUENCEVERIFY, txscript.OP_DROP).
		length(keyLength).
		op(txscript.OP_ENDIF, txscript.OP_CHECKSIG).
		template()
}

// newToRemoteMatcher creates a matcher for the anchor channel to_remote
// output script:
//
//	[33 byte remote key] OP_CHECKSIGVERIFY 1 OP_CHECKSEQUENCEVERIFY
func newToRemoteMatcher() ([]scriptMatcher, error) {
	b := &templateBuilder{}

	return b.length(keyLength).
		op(
			txscript.OP_CHECKSIGVERIFY, txscript.OP_1,
			txscript.OP_CHECKSEQUENCEVERIFY,
		).
		template()
}

// newAnchorMatcher creates a matcher for an anchor output script:
//
//	[33 byte funding key] OP_CHECKSIG OP_IFDUP
//	OP_NOTIF
//		OP_16 OP_CHECKSEQUENCEVERIFY
//	OP_ENDIF
func newAnchorMatcher() ([]scriptMatcher, error) {
	b := &templateBuilder{}

	return b.length(keyLength).
		op(
			txscript.OP_CHECKSIG, txscript.OP_IFDUP,
			txscript.OP_NOTIF, txscript.OP_16,
			txscript.OP_CHECKSEQUENCEVERIFY, txscript.OP_ENDIF,
		).
		template()
}

// htlcPrefix adds the revocation branch and remote key that both offered and
// received htlcs start with:
//
//	OP_DUP OP_HASH160 [20 byte revocation key hash] OP_EQUAL
//	OP_IF
//		OP_CHECKSIG
//	OP_ELSE
//		[33 byte remote htlc key] OP_SWAP OP_SIZE 32 OP_EQUAL
func htlcPrefix(b *templateBuilder) *templateBuilder {
	return b.op(txscript.OP_DUP, txscript.OP_HASH160).
		length(hashLength).
		op(
			txscript.OP_EQUAL, txscript.OP_IF, txscript.OP_CHECKSIG,
			txscript.OP_ELSE,
		).
		length(keyLength).
		op(txscript.OP_SWAP, txscript.OP_SIZE).
		data([]byte{preimageLength}).
		op(txscript.OP_EQUAL)
}

// htlcSuffix closes a htlc script. Anchor channels add a one block csv to
// every htlc spend path that is not the revocation path.
func htlcSuffix(b *templateBuilder, anchors bool) *templateBuilder {
	if anchors {
		b.op(
			txscript.OP_1, txscript.OP_CHECKSEQUENCEVERIFY,
			txscript.OP_DROP,
		)
	}

	return b.op(txscript.OP_ENDIF)
}

// newOfferedHtlcMatcher creates a matcher for an offered htlc:
//
//	<htlc prefix>
//		OP_NOTIF
//			OP_DROP 2 OP_SWAP [33 byte local htlc key] 2 OP_CHECKMULTISIG
//		OP_ELSE
//			OP_HASH160 [20 byte payment hash] OP_EQUALVERIFY
//			OP_CHECKSIG
//		OP_ENDIF
//		[1 OP_CHECKSEQUENCEVERIFY OP_DROP]
//	OP_ENDIF
func newOfferedHtlcMatcher(anchors bool) ([]scriptMatcher, error) {
	b := htlcPrefix(&templateBuilder{}).
		op(txscript.OP_NOTIF, txscript.OP_DROP, txscript.OP_2,
			txscript.OP_SWAP).
		length(keyLength).
		op(txscript.OP_2, txscript.OP_CHECKMULTISIG, txscript.OP_ELSE,
			txscript.OP_HASH160).
		length(hashLength).
		op(txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG,
			txscript.OP_ENDIF)

	return htlcSuffix(b, anchors).template()
}

// newReceivedHtlcMatcher creates a matcher for a received htlc:
//
//	<htlc prefix>
//		OP_IF
//			OP_HASH160 [20 byte payment hash] OP_EQUALVERIFY
//			2 OP_SWAP [33 byte local htlc key] 2 OP_CHECKMULTISIG
//		OP_ELSE
//			OP_DROP <cltv_expiry> OP_CHECKLOCKTIMEVERIFY OP_DROP
//			OP_CHECKSIG
//		OP_ENDIF
//		[1 OP_CHECKSEQUENCEVERIFY OP_DROP]
//	OP_ENDIF
func newReceivedHtlcMatcher(anchors bool) ([]scriptMatcher, error) {
	b := htlcPrefix(&templateBuilder{}).
		op(txscript.OP_IF, txscript.OP_HASH160).
		length(hashLength).
		op(txscript.OP_EQUALVERIFY, txscript.OP_2, txscript.OP_SWAP).
		length(keyLength).
		op(txscript.OP_2, txscript.OP_CHECKMULTISIG, txscript.OP_ELSE,
			txscript.OP_DROP).
		number(maxCltvLength).
		op(txscript.OP_CHECKLOCKTIMEVERIFY, txscript.OP_DROP,
			txscript.OP_CHECKSIG, txscript.OP_ENDIF)

	return htlcSuffix(b, anchors).template()
}

// templateMatcher pairs a template with a function that creates its matchers.
type templateMatcher struct {
	template Template
	matcher  func() ([]scriptMatcher, error)
}

// commitmentTemplates is the set of templates that we try to match against a
// witness script, in order.
var commitmentTemplates = []templateMatcher{
	{
		template: TemplateToLocal,
		matcher:  newToLocalMatcher,
	},
	{
		template: TemplateToRemote,
		matcher:  newToRemoteMatcher,
	},
	{
		template: TemplateAnchor,
		matcher:  newAnchorMatcher,
	},
	{
		template: TemplateOfferedHtlc,
		matcher: func() ([]scriptMatcher, error) {
			return newOfferedHtlcMatcher(false)
		},
	},
	{
		template: TemplateOfferedHtlc,
		matcher: func() ([]scriptMatcher, error) {
			return newOfferedHtlcMatcher(true)
		},
	},
	{
		template: TemplateReceivedHtlc,
		matcher: func() ([]scriptMatcher, error) {
			return newReceivedHtlcMatcher(false)
		},
	},
	{
		template: TemplateReceivedHtlc,
		matcher: func() ([]scriptMatcher, error) {
			return newReceivedHtlcMatcher(true)
		},
	},
}

// MatchTemplate identifies the bolt03 commitment template of a witness script.
// Keys, hashes, delays and expiries are matched by length only, so the script
// of any channel can be matched without knowing its keys. TemplateUnknown is
// returned if the script does not match any template.
func MatchTemplate(script []byte) (Template, error) {
	for _, t := range commitmentTemplates {
		matchers, err := t.matcher()
		if err != nil {
			return TemplateUnknown, err
		}

		ok, err := matchScript(script, matchers)
		if err != nil {
			return TemplateUnknown, err
		}

		if ok {
			return t.template, nil
		}
	}

	return TemplateUnknown, nil
}
