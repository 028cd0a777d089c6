package entity

import (
	"errors"
	"regexp"
	"strings"

	"github.com/Zilliqa/gozilliqa-sdk/bech32"
)

// Address is a 20 byte account or contract address in canonical form:
// lowercase hex with a 0x prefix.
type Address string

const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

var (
	ErrInvalidAddress = errors.New("invalid address")

	hexAddress = regexp.MustCompile("^0x[0-9a-f]{40}$")
)

// ParseAddress accepts a hex address (with or without 0x) or a bech32 zil1 address.
func ParseAddress(addr string) (Address, error) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(strings.ToLower(addr), "zil1") {
		hex, err := bech32.FromBech32Addr(addr)
		if err != nil {
			return "", ErrInvalidAddress
		}
		addr = hex
	}

	addr = strings.ToLower(addr)
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}

	if !hexAddress.MatchString(addr) {
		return "", ErrInvalidAddress
	}

	return Address(addr), nil
}

func MustParseAddress(addr string) Address {
	a, err := ParseAddress(addr)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return string(a)
}

func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) Bech32() string {
	bech32Address, err := bech32.ToBech32Address(string(a))
	if err != nil {
		return ""
	}
	return bech32Address
}
