package messenger

import "github.com/streadway/amqp"

type exchange struct {
	Name        string
	Type        string
	Durable     bool
	AutoDeleted bool
	Internal    bool
	NoWait      bool
	Arguments   amqp.Table
	// BindingKey is the routing pattern a consumer queue binds with.
	BindingKey string
}

var exchanges = map[Item]exchange{
	MarketplaceEvents: {
		Name:        string(MarketplaceEvents),
		Type:        amqp.ExchangeTopic,
		Durable:     true,
		AutoDeleted: false,
		Internal:    false,
		NoWait:      false,
		Arguments:   nil,
		BindingKey:  "#",
	},
}

func exchangeFor(item Item) (exchange, error) {
	ex, ok := exchanges[item]
	if !ok {
		return exchange{}, ErrExchangeNotFound
	}
	return ex, nil
}
