package entity

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gosimple/slug"
)

// AssetKey identifies one non-fungible asset across all supported registries.
type AssetKey struct {
	Registry Address `json:"registry"`
	TokenId  uint64  `json:"tokenId"`
}

var (
	ErrInvalidTokenId = errors.New("invalid token id")
	ErrInvalidAmount  = errors.New("invalid amount")
)

func NewAssetKey(registry string, tokenId string) (AssetKey, error) {
	addr, err := ParseAddress(registry)
	if err != nil {
		return AssetKey{}, err
	}

	id, err := strconv.ParseUint(tokenId, 10, 64)
	if err != nil {
		return AssetKey{}, ErrInvalidTokenId
	}

	return AssetKey{Registry: addr, TokenId: id}, nil
}

func (k AssetKey) Slug() string {
	return CreateAssetSlug(k.TokenId, k.Registry)
}

func (k AssetKey) String() string {
	return fmt.Sprintf("%s/%d", k.Registry, k.TokenId)
}

func CreateAssetSlug(tokenId uint64, registry Address) string {
	return slug.Make(fmt.Sprintf("asset-%d-%s", tokenId, registry))
}

// ParseAmount reads a non-negative base 10 integer amount.
func ParseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	return amount, nil
}

func AmountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
