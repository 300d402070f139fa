package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ShopState string

const (
	ShopStateActive  ShopState = "ACTIVE"
	ShopStateDeleted ShopState = "DELETED"
)

func (s ShopState) Valid() bool {
	return s == ShopStateActive || s == ShopStateDeleted
}

// Item is the serialized item descriptor a shop trades. The bytes are produced
// by an ItemCodec and compared as a whole for "same item type" queries.
type Item []byte

func (i Item) Equal(other Item) bool {
	return bytes.Equal(i, other)
}

// ItemDescriptor is the decoded form of an Item.
type ItemDescriptor struct {
	Material string            `json:"material"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Shop is the root aggregate: a priced, located, owned trading point with
// optional bounded stock. A nil Stock marks an admin shop.
type Shop struct {
	ID              int64
	Location        *Location
	Inventory       *Location
	Item            Item
	BuyPrice        *decimal.Decimal
	SellPrice       *decimal.Decimal
	Quantity        int
	Stock           *int
	Note            string
	Name            *string
	DisplayEntityID *uuid.UUID
	State           ShopState
	Owners          []*Owner
	Logs            []*Log
	CreatedOn       time.Time
	LastModifiedOn  *time.Time
}

func (s *Shop) HasLocation() bool {
	return s.Location != nil
}

func (s *Shop) HasInventory() bool {
	return s.Inventory != nil
}

func (s *Shop) IsAt(l Location) bool {
	return sameLocation(s.Location, l)
}

func (s *Shop) IsInventoryAt(l Location) bool {
	return sameLocation(s.Inventory, l)
}

func (s *Shop) SetLocation(l *Location) {
	s.Location = copyLocation(l)
}

func (s *Shop) SetInventory(l *Location) {
	s.Inventory = copyLocation(l)
}

func (s *Shop) IsAdmin() bool {
	return s.Stock == nil
}

func (s *Shop) IsActive() bool {
	return s.State == ShopStateActive
}

// HasStock reports whether amount units can be taken. Admin shops always can.
func (s *Shop) HasStock(amount int) bool {
	return s.Stock == nil || *s.Stock >= amount
}

func (s *Shop) SetStock(stock int) {
	s.Stock = &stock
}

func (s *Shop) Owner(id uuid.UUID) *Owner {
	for _, o := range s.Owners {
		if o.UniqueID == id {
			return o
		}
	}
	return nil
}

func (s *Shop) IsOwner(id uuid.UUID) bool {
	return s.Owner(id) != nil
}

func (s *Shop) TotalShares() int {
	total := 0
	for _, o := range s.Owners {
		total += o.Share
	}
	return total
}

// Shares returns the ownership split keyed by owner identity.
func (s *Shop) Shares() map[uuid.UUID]int {
	result := make(map[uuid.UUID]int, len(s.Owners))
	for _, o := range s.Owners {
		result[o.UniqueID] = o.Share
	}
	return result
}

// CopyFrom overwrites every persisted field of s with the values of other,
// keeping the receiver's identity so shared references observe the reload.
func (s *Shop) CopyFrom(other *Shop) {
	*s = *other.Clone()
}

// Clone returns a deep copy.
func (s *Shop) Clone() *Shop {
	c := *s
	c.Location = copyLocation(s.Location)
	c.Inventory = copyLocation(s.Inventory)
	if s.Item != nil {
		c.Item = append(Item(nil), s.Item...)
	}
	c.BuyPrice = copyDecimal(s.BuyPrice)
	c.SellPrice = copyDecimal(s.SellPrice)
	if s.Stock != nil {
		stock := *s.Stock
		c.Stock = &stock
	}
	if s.Name != nil {
		name := *s.Name
		c.Name = &name
	}
	if s.DisplayEntityID != nil {
		id := *s.DisplayEntityID
		c.DisplayEntityID = &id
	}
	if s.LastModifiedOn != nil {
		t := *s.LastModifiedOn
		c.LastModifiedOn = &t
	}
	if s.Owners != nil {
		c.Owners = make([]*Owner, len(s.Owners))
		for i, o := range s.Owners {
			oc := *o
			if o.LastModifiedOn != nil {
				t := *o.LastModifiedOn
				oc.LastModifiedOn = &t
			}
			c.Owners[i] = &oc
		}
	}
	if s.Logs != nil {
		c.Logs = make([]*Log, len(s.Logs))
		for i, l := range s.Logs {
			c.Logs[i] = l.Clone()
		}
	}
	return &c
}

func copyLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	return locationPtr(*l)
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Owner is one shareholder of a shop. Share is a percentage of proceeds.
type Owner struct {
	ID             int64
	ShopID         int64
	UniqueID       uuid.UUID
	Share          int
	CreatedOn      time.Time
	LastModifiedOn *time.Time
}

func NewOwner(id uuid.UUID, share int) *Owner {
	return &Owner{UniqueID: id, Share: share}
}
