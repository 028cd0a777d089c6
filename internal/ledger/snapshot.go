package ledger

import (
	"context"
	"math/big"
	"sort"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"golang.org/x/xerrors"
)

// Snapshot is a point-in-time copy of the ledger's own state.
type Snapshot struct {
	Seq      uint64           `json:"seq"`
	Listings []ListingRecord  `json:"listings"`
	Proceeds []ProceedsRecord `json:"proceeds"`
}

type ListingRecord struct {
	Asset   entity.AssetKey `json:"asset"`
	Listing entity.Listing  `json:"listing"`
}

type ProceedsRecord struct {
	Address entity.Address `json:"address"`
	Amount  *big.Int       `json:"amount"`
}

// Snapshot copies the committed state. Records are sorted so equal states
// produce equal snapshots.
func (l *Ledger) Snapshot(ctx context.Context) Snapshot {
	var snap Snapshot
	l.view(ctx, func() {
		snap = l.snapshot()
	})

	return snap
}

// Capture hands fn the ledger snapshot while no invocation can run, so
// collaborator state read inside fn matches the ledger's.
func (l *Ledger) Capture(ctx context.Context, fn func(snap Snapshot)) {
	l.view(ctx, func() {
		fn(l.snapshot())
	})
}

func (l *Ledger) snapshot() Snapshot {
	snap := Snapshot{
		Seq:      l.seq,
		Listings: make([]ListingRecord, 0, len(l.listings)),
		Proceeds: make([]ProceedsRecord, 0, len(l.proceeds)),
	}
	for key, listing := range l.listings {
		snap.Listings = append(snap.Listings, ListingRecord{key, listing.Copy()})
	}
	for addr, amount := range l.proceeds {
		snap.Proceeds = append(snap.Proceeds, ProceedsRecord{addr, new(big.Int).Set(amount)})
	}

	sort.Slice(snap.Listings, func(i, j int) bool {
		a, b := snap.Listings[i].Asset, snap.Listings[j].Asset
		if a.Registry != b.Registry {
			return a.Registry < b.Registry
		}
		return a.TokenId < b.TokenId
	})
	sort.Slice(snap.Proceeds, func(i, j int) bool {
		return snap.Proceeds[i].Address < snap.Proceeds[j].Address
	})

	return snap
}

// Restore replaces the ledger state with snap. The snapshot is validated
// against the listing and proceeds invariants before anything is replaced.
func (l *Ledger) Restore(snap Snapshot) error {
	listings := make(map[entity.AssetKey]entity.Listing, len(snap.Listings))
	for _, r := range snap.Listings {
		if _, dup := listings[r.Asset]; dup {
			return xerrors.Errorf("restore %s: %w", r.Asset, ErrAlreadyListed)
		}
		if r.Listing.Price == nil || r.Listing.Price.Sign() <= 0 {
			return xerrors.Errorf("restore %s: %w", r.Asset, ErrInvalidPrice)
		}
		if r.Listing.Seller.IsZero() {
			return xerrors.Errorf("restore %s: listing without seller", r.Asset)
		}
		listings[r.Asset] = r.Listing.Copy()
	}

	proceeds := make(map[entity.Address]*big.Int, len(snap.Proceeds))
	for _, r := range snap.Proceeds {
		if r.Amount == nil || r.Amount.Sign() < 0 {
			return xerrors.Errorf("restore proceeds %s: invalid amount", r.Address)
		}
		if r.Amount.Sign() == 0 {
			continue
		}
		if _, dup := proceeds[r.Address]; dup {
			return xerrors.Errorf("restore proceeds %s: duplicate address", r.Address)
		}
		proceeds[r.Address] = new(big.Int).Set(r.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.listings = listings
	l.proceeds = proceeds
	l.seq = snap.Seq

	return nil
}
