package mintid

import (
	"encoding/hex"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// ID is the normalized on-chain idempotency key for a mint request.
// It is the keccak256 digest of the caller-supplied key, so the same
// request string always maps to the same contract slot.
type ID [32]byte

var ErrEmptyKey = errors.New("empty mint id")

// FromString derives the ID for a caller-supplied request key.
func FromString(key string) (ID, error) {
	return FromBytes([]byte(key))
}

// FromBytes derives the ID for a caller-supplied request key.
func FromBytes(key []byte) (ID, error) {
	if len(key) == 0 {
		return ID{}, ErrEmptyKey
	}
	var id ID
	copy(id[:], crypto.Keccak256(key))
	return id, nil
}

func (id ID) Bytes() []byte { return id[:] }

func (id ID) Hex() string { return "0x" + hex.EncodeToString(id[:]) }

func (id ID) String() string { return id.Hex() }
