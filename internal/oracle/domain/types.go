// Package domain contains the boundary between the request registry and the
// external oracle network.
package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/storage"
)

// CallbackSignature is the function the oracle calls back with the result.
const CallbackSignature = "fulfill(bytes32,uint8,uint256)"

// CallbackSelector is the 4-byte selector of CallbackSignature.
var CallbackSelector = hexutil.Encode(crypto.Keccak256([]byte(CallbackSignature))[:4])

// Descriptor is the outbound request handed to the oracle.
type Descriptor struct {
	RequestID        ident.RequestID `json:"requestId"`
	Oracle           common.Address  `json:"oracle"`
	JobID            string          `json:"jobId"`
	CallbackAddress  common.Address  `json:"callbackAddress"`
	CallbackFunction string          `json:"callbackFunction"`
	CallbackSelector string          `json:"callbackSelector"`
	Payment          string          `json:"payment"`
	Requester        common.Address  `json:"requester"`
	Revealee         common.Address  `json:"revealee"`
	Nonce            uint64          `json:"nonce"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// PaymentAmount parses Payment.
func (d Descriptor) PaymentAmount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(d.Payment, 10)
	if !ok {
		return nil, fmt.Errorf("payment %q is not an integer", d.Payment)
	}
	return amount, nil
}

func (d Descriptor) toStorage() *storage.Dispatch {
	return &storage.Dispatch{
		RequestID: d.RequestID.Hex(),
		Oracle:    d.Oracle.Hex(),
		JobID:     d.JobID,
		Callback:  d.CallbackFunction,
		Payment:   d.Payment,
		Requester: d.Requester.Hex(),
		Revealee:  d.Revealee.Hex(),
		CreatedAt: d.CreatedAt.Unix(),
	}
}

func descriptorFromStorage(rec *storage.Dispatch, consumer common.Address) Descriptor {
	return Descriptor{
		RequestID:        common.HexToHash(rec.RequestID),
		Oracle:           common.HexToAddress(rec.Oracle),
		JobID:            rec.JobID,
		CallbackAddress:  consumer,
		CallbackFunction: rec.Callback,
		CallbackSelector: hexutil.Encode(crypto.Keccak256([]byte(rec.Callback))[:4]),
		Payment:          rec.Payment,
		Requester:        common.HexToAddress(rec.Requester),
		Revealee:         common.HexToAddress(rec.Revealee),
		CreatedAt:        time.Unix(rec.CreatedAt, 0),
	}
}

