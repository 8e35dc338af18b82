package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lpcustody/internal/model"
)

// SweepToken recovers stray fungible tokens sent to the vault outside the
// deposit flow.
func (v *Vault) SweepToken(ctx context.Context, caller, token, to common.Address, amount *big.Int) error {
	if caller != v.admin {
		return ErrNotAdmin
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if err := v.bank.Transfer(ctx, token, v.address, to, amount); err != nil {
		return fmt.Errorf("sweep %s: %w", token.Hex(), err)
	}
	v.record(ctx, model.Event{
		Kind:         model.EventSweep,
		Owner:        caller.Hex(),
		Counterparty: to.Hex(),
		Amount0:      bigStr(amount),
		Asset:        token.Hex(),
	})
	return nil
}

// SweepPosition recovers a stray position. Positions tied to a live
// depositor record are never sweepable.
func (v *Vault) SweepPosition(ctx context.Context, caller common.Address, id uint64, to common.Address) error {
	if caller != v.admin {
		return ErrNotAdmin
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if _, ok := v.OwnerOf(id); ok {
		return ErrSweepLivePosition
	}
	if err := v.positions.Transfer(ctx, id, to); err != nil {
		return fmt.Errorf("sweep position %d: %w", id, err)
	}
	v.record(ctx, model.Event{
		Kind:         model.EventSweep,
		Owner:        caller.Hex(),
		Counterparty: to.Hex(),
		PositionID:   id,
	})
	return nil
}
