// Package chain defines the on-chain data the snapshot job consumes and the
// wallet address rules shared by the bot and the providers.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidWallet is returned for strings that are not Solana account addresses.
var ErrInvalidWallet = errors.New("invalid wallet address")

// Balance is the total amount of the tracked token held by one owner,
// summed over all of the owner's token accounts and scaled by the mint decimals.
type Balance struct {
	Owner  string
	Amount float64
}

// HolderSource lists every owner of a token mint.
type HolderSource interface {
	FetchHolders(ctx context.Context, mint string) ([]Balance, error)
}

// PriceSource quotes a token mint in USD. A zero price with a nil error means no market.
type PriceSource interface {
	FetchPriceUSD(ctx context.Context, mint string) (float64, error)
}

// ValidateWallet checks that addr is a base58 string of 32 to 44 characters
// that decodes to a 32-byte public key.
func ValidateWallet(addr string) error {
	if n := len(addr); n < 32 || n > 44 {
		return fmt.Errorf("%w: length %d", ErrInvalidWallet, n)
	}

	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWallet, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: decodes to %d bytes", ErrInvalidWallet, len(raw))
	}

	return nil
}

// ShortAddress abbreviates addr for display, e.g. "So11...1112".
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
