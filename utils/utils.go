// Package utils contains helpers for parsing the string encoded chain values
// that lnd returns.
package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrNoHash is returned when a transaction hash string is empty.
var ErrNoHash = errors.New("no transaction hash")

// GetOutPointFromString gets the channel outpoint from a string.
func GetOutPointFromString(chanStr string) (*wire.OutPoint, error) {
	chanpoint := strings.Split(chanStr, ":")
	if len(chanpoint) != 2 {
		return nil, fmt.Errorf("expected 2 parts of channel point, "+
			"got: %v", len(chanpoint))
	}

	index, err := strconv.ParseUint(chanpoint[1], 10, 32)
	if err != nil {
		return nil, err
	}

	hash, err := chainhash.NewHashFromStr(chanpoint[0])
	if err != nil {
		return nil, err
	}

	return &wire.OutPoint{
		Hash:  *hash,
		Index: uint32(index),
	}, nil
}

// GetHashFromString parses a transaction hash. lnd reports channels that
// never confirmed a close with an empty hash, so an empty string returns the
// zero hash along with ErrNoHash and callers that allow this can check for it
// with errors.Is.
func GetHashFromString(hashStr string) (chainhash.Hash, error) {
	if hashStr == "" {
		return chainhash.Hash{}, ErrNoHash
	}

	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return chainhash.Hash{}, err
	}

	return *hash, nil
}
