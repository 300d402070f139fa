package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LogAction string

const (
	LogActionBuy                  LogAction = "BUY"
	LogActionSell                 LogAction = "SELL"
	LogActionDeposit              LogAction = "DEPOSIT"
	LogActionWithdraw             LogAction = "WITHDRAW"
	LogActionShopCreated          LogAction = "SHOP_CREATED"
	LogActionShopDestroyed        LogAction = "SHOP_DESTROYED"
	LogActionLocationChanged      LogAction = "LOCATION_CHANGED"
	LogActionInventoryLinkChanged LogAction = "INVENTORY_LINK_CHANGED"
	LogActionPriceChanged         LogAction = "PRICE_CHANGED"
	LogActionQuantityChanged      LogAction = "QUANTITY_CHANGED"
	LogActionNoteChanged          LogAction = "NOTE_CHANGED"
	LogActionNameChanged          LogAction = "NAME_CHANGED"
	LogActionOwnersChanged        LogAction = "OWNERS_CHANGED"
)

// Log is one append-only audit record of a shop. Serialized holds the JSON
// payload describing the change and is never rewritten once stored.
type Log struct {
	ID             int64
	ShopID         int64
	Action         LogAction
	UniqueID       uuid.UUID
	Serialized     []byte
	CreatedOn      time.Time
	LastModifiedOn *time.Time
}

// NewLog builds a log entry, encoding payload as JSON. A nil payload leaves
// Serialized empty.
func NewLog(action LogAction, actor uuid.UUID, payload any) (*Log, error) {
	log := &Log{Action: action, UniqueID: actor}
	if payload == nil {
		return log, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", action, err)
	}
	log.Serialized = data
	return log, nil
}

func (l *Log) Clone() *Log {
	c := *l
	if l.Serialized != nil {
		c.Serialized = append([]byte(nil), l.Serialized...)
	}
	if l.LastModifiedOn != nil {
		t := *l.LastModifiedOn
		c.LastModifiedOn = &t
	}
	return &c
}

// DecodePayload decodes the serialized payload of a log into T.
func DecodePayload[T any](l *Log) (T, error) {
	var v T
	if len(l.Serialized) == 0 {
		return v, fmt.Errorf("log %d has no payload", l.ID)
	}
	if err := json.Unmarshal(l.Serialized, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", l.Action, err)
	}
	return v, nil
}

// Transaction is the payload of BUY and SELL logs.
type Transaction struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// ValueChanged records a before/after pair.
type ValueChanged[T any] struct {
	From T `json:"from"`
	To   T `json:"to"`
}

type PriceSide string

const (
	PriceSideBuy  PriceSide = "buy"
	PriceSideSell PriceSide = "sell"
)

// PriceChanged is the payload of PRICE_CHANGED logs. Nil means the side is
// disabled.
type PriceChanged struct {
	Side PriceSide        `json:"side"`
	From *decimal.Decimal `json:"from"`
	To   *decimal.Decimal `json:"to"`
}

// LocationChanged is the payload of LOCATION_CHANGED and
// INVENTORY_LINK_CHANGED logs. All fields nil means the link was removed.
type LocationChanged struct {
	X     *int    `json:"x"`
	Y     *int    `json:"y"`
	Z     *int    `json:"z"`
	World *string `json:"world"`
}

func NewLocationChanged(l *Location) LocationChanged {
	if l == nil {
		return LocationChanged{}
	}
	x, y, z, world := l.X, l.Y, l.Z, l.World
	return LocationChanged{X: &x, Y: &y, Z: &z, World: &world}
}

// Location returns the coordinate, or nil if the payload describes removal.
func (c LocationChanged) Location() *Location {
	if c.X == nil || c.Y == nil || c.Z == nil || c.World == nil {
		return nil
	}
	return &Location{X: *c.X, Y: *c.Y, Z: *c.Z, World: *c.World}
}

// OwnersChanged is the payload of OWNERS_CHANGED logs.
type OwnersChanged struct {
	From map[uuid.UUID]int `json:"from"`
	To   map[uuid.UUID]int `json:"to"`
}
