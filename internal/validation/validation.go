// Package validation provides input validation for the revealer API.
package validation

import (
	"errors"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress validates and parses an EVM address (0x + 40 hex).
func ParseAddress(addr string) (common.Address, error) {
	if len(addr) != 42 {
		return common.Address{}, errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return common.Address{}, errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, errors.New("invalid address: contains non-hex characters")
	}
	return common.HexToAddress(addr), nil
}

// ParseNonZeroAddress is ParseAddress that also rejects the zero address.
func ParseNonZeroAddress(addr string) (common.Address, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return a, err
	}
	if a == (common.Address{}) {
		return a, errors.New("invalid address: zero address")
	}
	return a, nil
}

// ParseRequestID validates and parses a 32-byte request identifier (0x + 64 hex).
func ParseRequestID(id string) (common.Hash, error) {
	if len(id) != 66 || !strings.HasPrefix(id, "0x") {
		return common.Hash{}, errors.New("invalid request id: must be 0x followed by 64 hex characters")
	}
	if !isHex(id[2:]) {
		return common.Hash{}, errors.New("invalid request id: contains non-hex characters")
	}
	return common.HexToHash(id), nil
}

// ParseAmount parses a non-negative base-10 token amount.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("invalid amount: must be a base-10 integer")
	}
	if amount.Sign() < 0 {
		return nil, errors.New("invalid amount: must not be negative")
	}
	return amount, nil
}

// ValidateURL validates an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("invalid url: scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("invalid url: missing host")
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}
