package entity

import "math/big"

type EventType string

const (
	ItemListedEvent        EventType = "ItemListed"
	ItemCanceledEvent      EventType = "ItemCanceled"
	ListingUpdatedEvent    EventType = "ListingUpdated"
	ItemBoughtEvent        EventType = "ItemBought"
	ProceedsWithdrawnEvent EventType = "ProceedsWithdrawn"
)

// Event is a fact emitted by the marketplace once an invocation commits.
type Event interface {
	Type() EventType
}

type ItemListed struct {
	Seller Address  `json:"seller"`
	Asset  AssetKey `json:"asset"`
	Price  *big.Int `json:"price"`
}

type ItemCanceled struct {
	Seller Address  `json:"seller"`
	Asset  AssetKey `json:"asset"`
}

type ListingUpdated struct {
	Seller   Address  `json:"seller"`
	Asset    AssetKey `json:"asset"`
	NewPrice *big.Int `json:"newPrice"`
}

type ItemBought struct {
	Buyer  Address  `json:"buyer"`
	Seller Address  `json:"seller"`
	Asset  AssetKey `json:"asset"`
	Price  *big.Int `json:"price"`
	Paid   *big.Int `json:"paid"`
}

type ProceedsWithdrawn struct {
	Seller Address  `json:"seller"`
	Amount *big.Int `json:"amount"`
}

func (ItemListed) Type() EventType        { return ItemListedEvent }
func (ItemCanceled) Type() EventType      { return ItemCanceledEvent }
func (ListingUpdated) Type() EventType    { return ListingUpdatedEvent }
func (ItemBought) Type() EventType        { return ItemBoughtEvent }
func (ProceedsWithdrawn) Type() EventType { return ProceedsWithdrawnEvent }
