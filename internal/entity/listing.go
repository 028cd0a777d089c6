package entity

import "math/big"

// Listing is a seller's standing offer for one asset. A Listing only exists
// while the asset is for sale, so Price is strictly positive for any listing
// returned alongside a true presence flag.
type Listing struct {
	Seller Address  `json:"seller"`
	Price  *big.Int `json:"price"`
}

func (l Listing) Copy() Listing {
	c := Listing{Seller: l.Seller}
	if l.Price != nil {
		c.Price = new(big.Int).Set(l.Price)
	}
	return c
}

// Empty reports whether l is the zero Listing returned for unlisted assets.
func (l Listing) Empty() bool {
	return l.Seller == "" && (l.Price == nil || l.Price.Sign() == 0)
}
