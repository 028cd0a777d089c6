package ledger

import (
	"context"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
)

// AssetRegistry is the system of record for asset ownership and marketplace approvals.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, key entity.AssetKey) (entity.Address, error)
	IsApprovedForMarketplace(ctx context.Context, key entity.AssetKey, owner entity.Address) (bool, error)
	Transfer(ctx context.Context, key entity.AssetKey, from, to entity.Address) error
	// Reclaim undoes the marketplace's last Transfer of key, moving it from
	// holder back to owner with the approvals it had before the transfer.
	Reclaim(ctx context.Context, key entity.AssetKey, holder, owner entity.Address) error
}

// Payments moves native funds in and out of marketplace custody.
type Payments interface {
	Receive(ctx context.Context, from entity.Address, amount *big.Int) error
	Send(ctx context.Context, to entity.Address, amount *big.Int) error
}

// Emitter receives the events of each committed top-level invocation, in order.
type Emitter interface {
	Emit(events ...entity.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(...entity.Event) {}
