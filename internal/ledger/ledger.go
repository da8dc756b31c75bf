// Package ledger orders a user's deposit/withdraw interactions and tracks the
// running share position across them.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/yourorg/vault-yield/internal/model"
)

// OverdrawPolicy decides what happens when a withdrawal's share delta exceeds
// the tracked balance. That situation indicates either an ordering bug in the
// ledger or a share transfer the ledger never saw, so the default is to fail.
type OverdrawPolicy string

const (
	// OverdrawError surfaces the violation to the caller.
	OverdrawError OverdrawPolicy = "error"

	// OverdrawClamp floors the balance at zero and records a diagnostic.
	OverdrawClamp OverdrawPolicy = "clamp"

	// OverdrawAllow carries the signed balance and records a diagnostic.
	OverdrawAllow OverdrawPolicy = "allow"
)

// ErrOverdrawn is returned under OverdrawError when a withdrawal exceeds the
// running share balance.
var ErrOverdrawn = errors.New("withdrawal exceeds tracked share balance")

// Sort returns a copy of the interactions ordered by block number, with
// deposits before withdrawals at equal blocks. The tie-break matters: a
// same-block deposit+withdraw pair must not be read as a transient negative
// position.
func Sort(interactions []model.Interaction) []model.Interaction {
	sorted := make([]model.Interaction, len(interactions))
	copy(sorted, interactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Block != sorted[j].Block {
			return sorted[i].Block < sorted[j].Block
		}
		return sorted[i].Kind == model.Deposit && sorted[j].Kind == model.Withdraw
	})
	return sorted
}

// Position is the running state of the fold over sorted interactions.
type Position struct {
	// Shares is the current share balance in share base units.
	Shares *big.Int

	// Deposited sums the assetsDelta of all deposits applied so far.
	Deposited *big.Int
}

// NewPosition returns an empty position.
func NewPosition() *Position {
	return &Position{Shares: new(big.Int), Deposited: new(big.Int)}
}

// Apply folds one interaction into the position. It reports whether the
// interaction overdrew the balance; under OverdrawError that is returned as
// an error wrapping ErrOverdrawn and the position is left unchanged.
func (p *Position) Apply(in model.Interaction, policy OverdrawPolicy) (overdrawn bool, err error) {
	delta := in.SignedShares()
	next := new(big.Int).Add(p.Shares, delta)

	if next.Sign() < 0 {
		switch policy {
		case OverdrawClamp:
			next.SetInt64(0)
			overdrawn = true
		case OverdrawAllow:
			overdrawn = true
		default:
			return false, fmt.Errorf("block %d: withdraw %s from balance %s: %w",
				in.Block, in.SharesDelta, p.Shares, ErrOverdrawn)
		}
	}

	p.Shares = next
	if in.Kind == model.Deposit && in.AssetsDelta != nil {
		p.Deposited = new(big.Int).Add(p.Deposited, in.AssetsDelta)
	}
	return overdrawn, nil
}

// Flat reports whether the position holds no shares.
func (p *Position) Flat() bool {
	return p.Shares.Sign() == 0
}

// TotalDeposited sums the assetsDelta of every deposit in the ledger.
func TotalDeposited(interactions []model.Interaction) *big.Int {
	total := new(big.Int)
	for _, in := range interactions {
		if in.Kind == model.Deposit && in.AssetsDelta != nil {
			total.Add(total, in.AssetsDelta)
		}
	}
	return total
}
