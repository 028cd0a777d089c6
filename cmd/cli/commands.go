package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/client"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/repository"
	"github.com/urfave/cli/v2"
)

var (
	registryFlag = &cli.StringFlag{Name: "registry", Aliases: []string{"r"}, Usage: "asset registry address (hex or bech32)", Required: true}
	tokenFlag    = &cli.StringFlag{Name: "token", Aliases: []string{"t"}, Usage: "token id", Required: true}
	callerFlag   = &cli.StringFlag{Name: "caller", Aliases: []string{"c"}, Usage: "address making the call", Required: true}
	priceFlag    = &cli.StringFlag{Name: "price", Aliases: []string{"p"}, Usage: "listing price in the smallest native unit", Required: true}
	ownerFlag    = &cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "token owner", Required: true}
	addressFlag  = &cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "account address", Required: true}
	amountFlag   = &cli.StringFlag{Name: "amount", Usage: "amount in the smallest native unit", Required: true}
)

type historyFunc func() (repository.ActionRepository, error)
type messengerFunc func() (messenger.MessageService, error)

func newApp(c *client.Client, history historyFunc, queue messengerFunc, out io.Writer) *cli.App {
	write := func(v interface{}) error {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}
	result := func(v interface{}, err error) error {
		if err != nil {
			return err
		}
		return write(v)
	}

	return &cli.App{
		Name:      "marketplace",
		Usage:     "operate the NFT marketplace ledger",
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list an owned and approved asset for sale",
				Flags: []cli.Flag{registryFlag, tokenFlag, callerFlag, priceFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.ListItem(ctx.Context, ctx.String("registry"), ctx.String("token"), ctx.String("caller"), ctx.String("price")))
				},
			},
			{
				Name:  "update",
				Usage: "change the price of your listing",
				Flags: []cli.Flag{registryFlag, tokenFlag, callerFlag, priceFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.UpdateListing(ctx.Context, ctx.String("registry"), ctx.String("token"), ctx.String("caller"), ctx.String("price")))
				},
			},
			{
				Name:  "cancel",
				Usage: "remove your listing",
				Flags: []cli.Flag{registryFlag, tokenFlag, callerFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.CancelListing(ctx.Context, ctx.String("registry"), ctx.String("token"), ctx.String("caller")))
				},
			},
			{
				Name:  "buy",
				Usage: "buy a listed asset",
				Flags: []cli.Flag{registryFlag, tokenFlag, callerFlag, &cli.StringFlag{Name: "payment", Usage: "amount paid", Required: true}},
				Action: func(ctx *cli.Context) error {
					return result(c.BuyItem(ctx.Context, ctx.String("registry"), ctx.String("token"), ctx.String("caller"), ctx.String("payment")))
				},
			},
			{
				Name:  "withdraw",
				Usage: "withdraw all accrued sale proceeds",
				Flags: []cli.Flag{callerFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.WithdrawProceeds(ctx.Context, ctx.String("caller")))
				},
			},
			{
				Name:  "listing",
				Usage: "show the listing for an asset",
				Flags: []cli.Flag{registryFlag, tokenFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.GetListing(ctx.Context, ctx.String("registry"), ctx.String("token")))
				},
			},
			{
				Name:  "proceeds",
				Usage: "show the proceeds owed to an address",
				Flags: []cli.Flag{addressFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.GetProceeds(ctx.Context, ctx.String("address")))
				},
			},
			{
				Name:  "mint",
				Usage: "sandbox: mint a token to an owner",
				Flags: []cli.Flag{registryFlag, tokenFlag, ownerFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.Mint(ctx.Context, ctx.String("registry"), ctx.String("token"), ctx.String("owner")))
				},
			},
			{
				Name:  "approve",
				Usage: "sandbox: approve the marketplace for a token",
				Flags: []cli.Flag{registryFlag, tokenFlag, ownerFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.Approve(ctx.Context, ctx.String("registry"), ctx.String("token"), ctx.String("owner")))
				},
			},
			{
				Name:  "deposit",
				Usage: "sandbox: credit native funds to an address",
				Flags: []cli.Flag{addressFlag, amountFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.Deposit(ctx.Context, ctx.String("address"), ctx.String("amount")))
				},
			},
			{
				Name:  "balance",
				Usage: "sandbox: show the native balance of an address",
				Flags: []cli.Flag{addressFlag},
				Action: func(ctx *cli.Context) error {
					return result(c.GetBalance(ctx.Context, ctx.String("address")))
				},
			},
			{
				Name:  "history",
				Usage: "show indexed marketplace actions for an asset or an address",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "registry", Aliases: []string{"r"}},
					&cli.StringFlag{Name: "token", Aliases: []string{"t"}},
					&cli.StringFlag{Name: "address", Aliases: []string{"a"}},
					&cli.IntFlag{Name: "size", Value: 20},
					&cli.IntFlag{Name: "page", Value: 1},
				},
				Action: func(ctx *cli.Context) error {
					repo, err := history()
					if err != nil {
						return err
					}

					var actions []entity.MarketplaceAction
					var total int64
					if ctx.String("address") != "" {
						addr, err := entity.ParseAddress(ctx.String("address"))
						if err != nil {
							return err
						}
						actions, total, err = repo.GetActionsForAddress(ctx.Context, addr, ctx.Int("size"), ctx.Int("page"))
						if err != nil {
							return err
						}
					} else {
						key, err := entity.NewAssetKey(ctx.String("registry"), ctx.String("token"))
						if err != nil {
							return err
						}
						actions, total, err = repo.GetActionsForAsset(ctx.Context, key, ctx.Int("size"), ctx.Int("page"))
						if err != nil {
							return err
						}
					}

					return write(map[string]interface{}{"total": total, "actions": actions})
				},
			},
			{
				Name:  "queue",
				Usage: "show the number of marketplace events waiting in the amqp queue",
				Action: func(ctx *cli.Context) error {
					m, err := queue()
					if err != nil {
						return err
					}
					size, err := m.GetQueueSize(messenger.MarketplaceEvents)
					if err != nil {
						return err
					}
					return write(map[string]int{"messages": *size})
				},
			},
		},
	}
}
