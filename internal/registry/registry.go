package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token already minted")
	ErrNotTokenOwner = errors.New("not token owner")
	ErrNotApproved   = errors.New("marketplace not approved")
	ErrInvalidOwner  = errors.New("invalid owner")
	ErrNoTransfer    = errors.New("no transfer to reclaim")
)

// Registry is an in-memory ZRC6 style asset registry. Only the marketplace
// moves tokens, and only when the owner approved it for the token or as an
// operator for all of the owner's tokens.
type Registry interface {
	Mint(ctx context.Context, key entity.AssetKey, owner entity.Address) error
	Approve(ctx context.Context, key entity.AssetKey, owner, spender entity.Address) error
	SetApprovalForAll(ctx context.Context, owner, operator entity.Address, approved bool) error
	GetApproved(ctx context.Context, key entity.AssetKey) (entity.Address, error)

	OwnerOf(ctx context.Context, key entity.AssetKey) (entity.Address, error)
	IsApprovedForMarketplace(ctx context.Context, key entity.AssetKey, owner entity.Address) (bool, error)
	Transfer(ctx context.Context, key entity.AssetKey, from, to entity.Address) error
	Reclaim(ctx context.Context, key entity.AssetKey, holder, owner entity.Address) error

	Snapshot(ctx context.Context) Snapshot
	Restore(snap Snapshot) error
}

type token struct {
	owner    entity.Address
	approved entity.Address
	// state before the last marketplace transfer, until it is reclaimed
	previous *token
}

type registry struct {
	mu          sync.RWMutex
	marketplace entity.Address
	tokens      map[entity.AssetKey]*token
	operators   map[entity.Address]map[entity.Address]bool
}

func NewRegistry(marketplace entity.Address) Registry {
	return &registry{
		marketplace: marketplace,
		tokens:      make(map[entity.AssetKey]*token),
		operators:   make(map[entity.Address]map[entity.Address]bool),
	}
}

func (r *registry) Mint(_ context.Context, key entity.AssetKey, owner entity.Address) error {
	if owner.IsZero() {
		return ErrInvalidOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[key]; exists {
		return ErrTokenExists
	}
	r.tokens[key] = &token{owner: owner}

	zap.L().With(zap.String("asset", key.String()), zap.String("owner", owner.String())).Info("Registry: Minted token")

	return nil
}

func (r *registry) Approve(_ context.Context, key entity.AssetKey, owner, spender entity.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[key]
	if !ok {
		return ErrTokenNotFound
	}
	if t.owner != owner && !r.operators[t.owner][owner] {
		return ErrNotTokenOwner
	}
	t.approved = spender

	zap.L().With(zap.String("asset", key.String()), zap.String("spender", spender.String())).Debug("Registry: Approved spender")

	return nil
}

func (r *registry) SetApprovalForAll(_ context.Context, owner, operator entity.Address, approved bool) error {
	if owner.IsZero() {
		return ErrInvalidOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.operators[owner]; !ok {
		r.operators[owner] = make(map[entity.Address]bool)
	}
	if approved {
		r.operators[owner][operator] = true
	} else {
		delete(r.operators[owner], operator)
	}

	return nil
}

func (r *registry) GetApproved(_ context.Context, key entity.AssetKey) (entity.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[key]
	if !ok {
		return "", ErrTokenNotFound
	}

	return t.approved, nil
}

func (r *registry) OwnerOf(_ context.Context, key entity.AssetKey) (entity.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[key]
	if !ok {
		return "", ErrTokenNotFound
	}

	return t.owner, nil
}

func (r *registry) IsApprovedForMarketplace(_ context.Context, key entity.AssetKey, owner entity.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[key]
	if !ok {
		return false, ErrTokenNotFound
	}

	return r.marketplaceApproved(t, owner), nil
}

func (r *registry) Transfer(_ context.Context, key entity.AssetKey, from, to entity.Address) error {
	if to.IsZero() {
		return ErrInvalidOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[key]
	if !ok {
		return ErrTokenNotFound
	}
	if t.owner != from {
		return ErrNotTokenOwner
	}
	if !r.marketplaceApproved(t, from) {
		return ErrNotApproved
	}

	t.previous = &token{owner: t.owner, approved: t.approved}
	t.owner = to
	t.approved = ""

	zap.L().With(
		zap.String("asset", key.String()),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	).Info("Registry: Transferred token")

	return nil
}

// Reclaim reverts the last marketplace transfer of key. It needs no approval
// from holder: only the marketplace transfers tokens and this undoes its own
// transfer, restoring the owner and the single token approval.
func (r *registry) Reclaim(_ context.Context, key entity.AssetKey, holder, owner entity.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[key]
	if !ok {
		return ErrTokenNotFound
	}
	if t.owner != holder {
		return ErrNotTokenOwner
	}
	if t.previous == nil || t.previous.owner != owner {
		return ErrNoTransfer
	}

	t.owner = t.previous.owner
	t.approved = t.previous.approved
	t.previous = nil

	zap.L().With(
		zap.String("asset", key.String()),
		zap.String("from", holder.String()),
		zap.String("to", owner.String()),
	).Info("Registry: Reclaimed token")

	return nil
}

func (r *registry) marketplaceApproved(t *token, owner entity.Address) bool {
	if t.owner != owner {
		return false
	}

	return t.approved == r.marketplace || r.operators[owner][r.marketplace]
}

// Snapshot is a copy of every token and operator approval.
type Snapshot struct {
	Tokens    []TokenRecord    `json:"tokens"`
	Operators []OperatorRecord `json:"operators"`
}

type TokenRecord struct {
	Asset    entity.AssetKey `json:"asset"`
	Owner    entity.Address  `json:"owner"`
	Approved entity.Address  `json:"approved,omitempty"`
}

type OperatorRecord struct {
	Owner    entity.Address `json:"owner"`
	Operator entity.Address `json:"operator"`
}

func (r *registry) Snapshot(_ context.Context) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Tokens:    make([]TokenRecord, 0, len(r.tokens)),
		Operators: make([]OperatorRecord, 0),
	}
	for key, t := range r.tokens {
		snap.Tokens = append(snap.Tokens, TokenRecord{Asset: key, Owner: t.owner, Approved: t.approved})
	}
	for owner, operators := range r.operators {
		for operator := range operators {
			snap.Operators = append(snap.Operators, OperatorRecord{Owner: owner, Operator: operator})
		}
	}

	sort.Slice(snap.Tokens, func(i, j int) bool {
		a, b := snap.Tokens[i].Asset, snap.Tokens[j].Asset
		if a.Registry != b.Registry {
			return a.Registry < b.Registry
		}
		return a.TokenId < b.TokenId
	})
	sort.Slice(snap.Operators, func(i, j int) bool {
		a, b := snap.Operators[i], snap.Operators[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Operator < b.Operator
	})

	return snap
}

// Restore replaces every token and approval with the snapshot's.
func (r *registry) Restore(snap Snapshot) error {
	tokens := make(map[entity.AssetKey]*token, len(snap.Tokens))
	for _, rec := range snap.Tokens {
		if rec.Owner.IsZero() {
			return xerrors.Errorf("restore %s: %w", rec.Asset, ErrInvalidOwner)
		}
		if _, exists := tokens[rec.Asset]; exists {
			return xerrors.Errorf("restore %s: %w", rec.Asset, ErrTokenExists)
		}
		tokens[rec.Asset] = &token{owner: rec.Owner, approved: rec.Approved}
	}

	operators := make(map[entity.Address]map[entity.Address]bool)
	for _, rec := range snap.Operators {
		if rec.Owner.IsZero() {
			return xerrors.Errorf("restore operator %s: %w", rec.Operator, ErrInvalidOwner)
		}
		if _, ok := operators[rec.Owner]; !ok {
			operators[rec.Owner] = make(map[entity.Address]bool)
		}
		operators[rec.Owner][rec.Operator] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = tokens
	r.operators = operators

	return nil
}
