package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/nu7hatch/gouuid"
	"golang.org/x/xerrors"
)

type Type string

const (
	ItemListedEvent        = Type(entity.ItemListedEvent)
	ItemCanceledEvent      = Type(entity.ItemCanceledEvent)
	ListingUpdatedEvent    = Type(entity.ListingUpdatedEvent)
	ItemBoughtEvent        = Type(entity.ItemBoughtEvent)
	ProceedsWithdrawnEvent = Type(entity.ProceedsWithdrawnEvent)

	// InvocationCommittedEvent fires once per committed ledger invocation,
	// after the envelopes it produced. The message is the []Envelope batch.
	InvocationCommittedEvent Type = "InvocationCommitted"
)

var MarketplaceEvents = []Type{
	ItemListedEvent,
	ItemCanceledEvent,
	ListingUpdatedEvent,
	ItemBoughtEvent,
	ProceedsWithdrawnEvent,
}

var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the wire form of a marketplace event.
type Envelope struct {
	Id      string          `json:"id"`
	Type    Type            `json:"type"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(ev entity.Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, xerrors.Errorf("encode %s: %w", ev.Type(), err)
	}

	u, err := uuid.NewV4()
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Id:      u.String(),
		Type:    Type(ev.Type()),
		Time:    time.Now().UTC(),
		Payload: payload,
	}, nil
}

// Decode returns the typed event carried by the envelope.
func (e Envelope) Decode() (entity.Event, error) {
	switch e.Type {
	case ItemListedEvent:
		return decode[entity.ItemListed](e)
	case ItemCanceledEvent:
		return decode[entity.ItemCanceled](e)
	case ListingUpdatedEvent:
		return decode[entity.ListingUpdated](e)
	case ItemBoughtEvent:
		return decode[entity.ItemBought](e)
	case ProceedsWithdrawnEvent:
		return decode[entity.ProceedsWithdrawn](e)
	}

	return nil, xerrors.Errorf("%s: %w", e.Type, ErrUnknownEvent)
}

func decode[T entity.Event](e Envelope) (entity.Event, error) {
	var ev T
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, xerrors.Errorf("decode %s: %w", e.Type, err)
	}

	return ev, nil
}
