package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress returns the canonical storage form of an Ethereum address:
// lowercase hex with 0x prefix. An empty address yields ErrMissingWallet.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrMissingWallet
	}
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// AddressKey normalizes a common.Address. The zero address is treated as
// missing.
func AddressKey(addr common.Address) (string, error) {
	if addr == (common.Address{}) {
		return "", ErrMissingWallet
	}
	return strings.ToLower(addr.Hex()), nil
}
