// Package domain contains the owner-gated deployment parameters.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/ident"
)

// Settings is the current admin configuration.
type Settings struct {
	Owner     common.Address
	Oracle    common.Address
	Payment   *big.Int
	Link      common.Address
	SignUpURL string
	JobID     ident.JobID
	UpdatedAt time.Time
}

// Param names an admin parameter. Used for metrics and logs.
type Param string

const (
	ParamOracle    Param = "oracle"
	ParamPayment   Param = "payment"
	ParamLink      Param = "link"
	ParamSignUpURL Param = "sign_up_url"
	ParamJobID     Param = "job_id"
	ParamOwner     Param = "owner"
)
