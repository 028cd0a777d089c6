package entity

import (
	"crypto/md5"
	"fmt"
	"time"
)

type Entity interface {
	Slug() string
}

// MarketplaceAction is the indexed, queryable record of a committed marketplace event.
type MarketplaceAction struct {
	EventId  string     `json:"eventId"`
	Registry string     `json:"registry"`
	TokenId  uint64     `json:"tokenId"`
	Action   ActionType `json:"action"`
	From     string     `json:"from"`
	To       string     `json:"to"`
	Price    string     `json:"price"`
	Paid     string     `json:"paid"`
	Time     time.Time  `json:"time"`
}

type ActionType string

const (
	MarketplaceListingAction    ActionType = "listing"
	MarketplaceUpdateAction     ActionType = "update"
	MarketplaceDelistingAction  ActionType = "delisting"
	MarketplaceSaleAction       ActionType = "sale"
	MarketplaceWithdrawalAction ActionType = "withdrawal"
)

func (a MarketplaceAction) Slug() string {
	return CreateMarketplaceActionSlug(a.EventId, string(a.Action))
}

func CreateMarketplaceActionSlug(eventId, action string) string {
	data := []byte(fmt.Sprintf("marketplaceaction-%s-%s", eventId, action))
	return fmt.Sprintf("%x", md5.Sum(data))
}
