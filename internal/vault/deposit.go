package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpcustody/internal/model"
)

// OnPositionReceived is the deposit notification hook invoked when the
// position primitive transfers a position into the vault's custody.
func (v *Vault) OnPositionReceived(ctx context.Context, from common.Address, id uint64) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()
	return v.accept(ctx, from, id)
}

// DepositOnBehalf lets the admin credit a custodied position to another
// depositor, for positions routed through a migration path.
func (v *Vault) DepositOnBehalf(ctx context.Context, caller, owner common.Address, id uint64) error {
	if caller != v.admin {
		return ErrNotAdmin
	}
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()
	return v.accept(ctx, owner, id)
}

func (v *Vault) accept(ctx context.Context, owner common.Address, id uint64) error {
	if v.DepositsPaused() {
		return ErrDepositsPaused
	}

	pos, err := v.positions.Position(ctx, id)
	if err != nil {
		return fmt.Errorf("position %d: %w", id, err)
	}
	if !v.oracle.SupportsPool(pos.Pool) {
		return ErrUnsupportedPool
	}

	v.mu.Lock()
	if len(v.userTokens[owner]) >= v.userTokensMax {
		v.mu.Unlock()
		return ErrTooManyPositions
	}
	v.owners[id] = owner
	v.userTokens[owner] = append(v.userTokens[owner], id)
	v.mu.Unlock()

	v.logger.Info("position deposited",
		zap.Uint64("position", id),
		zap.String("owner", owner.Hex()),
		zap.String("pool", pos.Pool.Hex()),
	)
	v.record(ctx, model.Event{
		Kind:       model.EventDeposit,
		Owner:      owner.Hex(),
		PositionID: id,
		Liquidity:  bigStr(pos.Liquidity),
	})
	return nil
}

// Withdraw transfers a custodied position back to its owner's chosen
// recipient and purges the custody record. Withdrawal is refused while the
// market reports the owner as not liquid.
func (v *Vault) Withdraw(ctx context.Context, caller common.Address, id uint64, recipient common.Address) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.leave()

	if err := v.requireOwner(caller, id); err != nil {
		return err
	}
	if recipient == v.address {
		return ErrBadRecipient
	}

	liquid, err := v.marketV.IsAccountLiquid(ctx, caller)
	if err != nil {
		return err
	}
	if !liquid {
		return ErrInsolventWithdrawal
	}

	if err := v.positions.Transfer(ctx, id, recipient); err != nil {
		return fmt.Errorf("transfer position %d: %w", id, err)
	}
	v.purge(caller, id)

	v.logger.Info("position withdrawn",
		zap.Uint64("position", id),
		zap.String("owner", caller.Hex()),
		zap.String("recipient", recipient.Hex()),
	)
	v.record(ctx, model.Event{
		Kind:         model.EventWithdraw,
		Owner:        caller.Hex(),
		Counterparty: recipient.Hex(),
		PositionID:   id,
	})
	return nil
}

// purge removes a position record with swap-and-pop index maintenance.
func (v *Vault) purge(owner common.Address, id uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.owners, id)
	list := v.userTokens[owner]
	for i, candidate := range list {
		if candidate == id {
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			break
		}
	}
	if len(list) == 0 {
		delete(v.userTokens, owner)
	} else {
		v.userTokens[owner] = list
	}
}

// append records custody of a freshly minted position for an owner.
func (v *Vault) appendRecord(owner common.Address, id uint64) {
	v.mu.Lock()
	v.owners[id] = owner
	v.userTokens[owner] = append(v.userTokens[owner], id)
	v.mu.Unlock()
}
