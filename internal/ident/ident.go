// Package ident holds the fixed-width identifiers shared by the registry and the oracle gateway.
package ident

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// JobIDLength is the number of ASCII characters a job identifier must have.
const JobIDLength = 32

// ErrIncorrectLength is returned when a job identifier is not exactly JobIDLength bytes.
var ErrIncorrectLength = errors.New("incorrect length")

// RequestID is the opaque key assigned by the dispatch mechanism.
type RequestID = common.Hash

// JobID selects the off-chain task definition. It is the raw ASCII of the
// identifier packed into a fixed 32-byte value.
type JobID [32]byte

// NewJobID packs s into a JobID. Any length other than JobIDLength is rejected.
func NewJobID(s string) (JobID, error) {
	var id JobID
	if len(s) != JobIDLength {
		return id, fmt.Errorf("%w: job id must be %d bytes, got %d", ErrIncorrectLength, JobIDLength, len(s))
	}
	copy(id[:], s)
	return id, nil
}

// String returns the ASCII form.
func (j JobID) String() string {
	return string(j[:])
}

// Hex returns the 0x-prefixed encoding of the 32 bytes.
func (j JobID) Hex() string {
	return hexutil.Encode(j[:])
}

// IsZero reports whether the job id was never set.
func (j JobID) IsZero() bool {
	return j == JobID{}
}

// DeriveRequestID computes keccak256(consumer || uint256(nonce)).
func DeriveRequestID(consumer common.Address, nonce uint64) RequestID {
	n := new(big.Int).SetUint64(nonce)
	return crypto.Keccak256Hash(consumer.Bytes(), common.LeftPadBytes(n.Bytes(), 32))
}
