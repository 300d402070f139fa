package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

type OwnerView struct {
	UniqueID uuid.UUID `json:"unique_id"`
	Share    int       `json:"share"`
}

type ShopView struct {
	ID              int64                  `json:"id"`
	Location        *domain.Location       `json:"location,omitempty"`
	Inventory       *domain.Location       `json:"inventory,omitempty"`
	Item            *domain.ItemDescriptor `json:"item,omitempty"`
	BuyPrice        *decimal.Decimal       `json:"buy_price,omitempty"`
	SellPrice       *decimal.Decimal       `json:"sell_price,omitempty"`
	Quantity        int                    `json:"quantity"`
	Stock           *int                   `json:"stock,omitempty"`
	Admin           bool                   `json:"admin"`
	Note            string                 `json:"note"`
	Name            *string                `json:"name,omitempty"`
	DisplayEntityID *uuid.UUID             `json:"display_entity_id,omitempty"`
	State           domain.ShopState       `json:"state"`
	Owners          []OwnerView            `json:"owners"`
	CreatedOn       time.Time              `json:"created_on"`
	LastModifiedOn  *time.Time             `json:"last_modified_on,omitempty"`
}

type LogView struct {
	ID        int64            `json:"id"`
	Action    domain.LogAction `json:"action"`
	Actor     uuid.UUID        `json:"actor"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	CreatedOn time.Time        `json:"created_on"`
}

type DraftView struct {
	ShopID    int64                  `json:"shop_id,omitempty"`
	Step      string                 `json:"step"`
	Location  *domain.Location       `json:"location,omitempty"`
	Item      *domain.ItemDescriptor `json:"item,omitempty"`
	BuyPrice  *decimal.Decimal       `json:"buy_price,omitempty"`
	SellPrice *decimal.Decimal       `json:"sell_price,omitempty"`
	Quantity  int                    `json:"quantity"`
	Note      string                 `json:"note"`
	Name      *string                `json:"name,omitempty"`
	Changes   []domain.LogAction     `json:"changes,omitempty"`
}

// NewShopView snapshots shop. Items the codec cannot decode are omitted.
func NewShopView(codec port.ItemCodec, shop *domain.Shop) ShopView {
	s := shop.Clone()
	v := ShopView{
		ID:              s.ID,
		Location:        s.Location,
		Inventory:       s.Inventory,
		BuyPrice:        s.BuyPrice,
		SellPrice:       s.SellPrice,
		Quantity:        s.Quantity,
		Stock:           s.Stock,
		Admin:           s.IsAdmin(),
		Note:            s.Note,
		Name:            s.Name,
		DisplayEntityID: s.DisplayEntityID,
		State:           s.State,
		Owners:          make([]OwnerView, 0, len(s.Owners)),
		CreatedOn:       s.CreatedOn,
		LastModifiedOn:  s.LastModifiedOn,
	}
	if desc, err := codec.Decode(s.Item); err == nil {
		v.Item = &desc
	}
	for _, o := range s.Owners {
		v.Owners = append(v.Owners, OwnerView{UniqueID: o.UniqueID, Share: o.Share})
	}
	return v
}

func NewShopViews(codec port.ItemCodec, shops []*domain.Shop) []ShopView {
	out := make([]ShopView, 0, len(shops))
	for _, s := range shops {
		out = append(out, NewShopView(codec, s))
	}
	return out
}

func NewLogViews(logs []*domain.Log) []LogView {
	out := make([]LogView, 0, len(logs))
	for _, l := range logs {
		v := LogView{ID: l.ID, Action: l.Action, Actor: l.UniqueID, CreatedOn: l.CreatedOn}
		if len(l.Serialized) > 0 {
			v.Payload = json.RawMessage(l.Serialized)
		}
		out = append(out, v)
	}
	return out
}
