// Package ledger prepares the values handed to the wallet-mediated mint
// call. The contract call itself happens outside this module.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"

	"github.com/shopspring/decimal"

	"invoice_nft_receipt/invoice"
)

// EtherDecimals is the base-unit exponent used by parseEther.
const EtherDecimals int32 = 18

var (
	ErrInvalidTokenURI = errors.New("token uri must be an absolute http(s) url")
	ErrInvalidAmount   = errors.New("mint amount must be greater than zero")
)

// MintRequest is what the ledger-write collaborator receives.
type MintRequest struct {
	TokenURI string          `json:"tokenUri"`
	Amount   decimal.Decimal `json:"amount"`
}

func NewMintRequest(tokenURI string, amount decimal.Decimal) (MintRequest, error) {
	u, err := url.Parse(tokenURI)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return MintRequest{}, fmt.Errorf("%w: %q", ErrInvalidTokenURI, tokenURI)
	}
	if amount.Sign() <= 0 {
		return MintRequest{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return MintRequest{TokenURI: tokenURI, Amount: amount}, nil
}

// CheckAmount reports whether amount can be minted at EtherDecimals. It runs
// before anything is pinned.
func CheckAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	_, err := MintRequest{Amount: amount}.Wei()
	return err
}

// FromReceipt builds the request for a pinned receipt.
func FromReceipt(r invoice.Receipt) (MintRequest, error) {
	return NewMintRequest(r.TokenURI, r.Record.Amount)
}

// BaseUnits converts the decimal amount into integer base units with the
// given number of decimals. Amounts finer than one base unit are rejected
// rather than rounded.
func (m MintRequest) BaseUnits(decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("decimals must not be negative: %d", decimals)
	}
	shifted := m.Amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%s has more than %d decimal places", m.Amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}

// Wei is BaseUnits at EtherDecimals.
func (m MintRequest) Wei() (*big.Int, error) {
	return m.BaseUnits(EtherDecimals)
}
