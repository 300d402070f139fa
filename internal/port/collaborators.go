package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/slabby/internal/core/domain"
)

// EconomyResult reports the outcome of a ledger call. A failed call carries
// Success false and no error; err is reserved for transport failures.
type EconomyResult struct {
	Success bool
	Amount  decimal.Decimal
}

type Economy interface {
	Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	HasAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
	Withdraw(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (EconomyResult, error)
	Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (EconomyResult, error)
}

type Permissions interface {
	HasPermission(ctx context.Context, id uuid.UUID, permission string) bool
}

type ItemCodec interface {
	Encode(desc domain.ItemDescriptor) (domain.Item, error)
	Decode(item domain.Item) (domain.ItemDescriptor, error)
	// Same reports whether both items describe the same item type.
	Same(a, b domain.Item) bool
}

// Inventory is the actor-side item holding.
type Inventory interface {
	HasSpace(ctx context.Context, actor uuid.UUID, item domain.Item, quantity int) (bool, error)
	ContainsAtLeast(ctx context.Context, actor uuid.UUID, item domain.Item, quantity int) (bool, error)
	AddItems(ctx context.Context, actor uuid.UUID, item domain.Item, quantity int) error
	RemoveItems(ctx context.Context, actor uuid.UUID, item domain.Item, quantity int) error

	// ContainerInHand reports whether the actor holds a container and how
	// many units matching item it carries. ok is false when the held
	// container is itself the traded item.
	ContainerInHand(ctx context.Context, actor uuid.UUID, item domain.Item) (count int, ok bool, err error)
	RemoveFromContainerInHand(ctx context.Context, actor uuid.UUID, item domain.Item, quantity int) error
}

// Markers places the visual marker of a shop in the world.
type Markers interface {
	// RemoveAndRespawn removes the marker at old (when set) and the one
	// referenced by shop, then spawns a new one and returns its handle.
	RemoveAndRespawn(ctx context.Context, old *domain.Location, shop *domain.Shop) (uuid.UUID, error)
	Remove(ctx context.Context, shop *domain.Shop) error
}

type NotificationKind string

const (
	NotifyBuy               NotificationKind = "buy"
	NotifyBuyOwner          NotificationKind = "buy_owner"
	NotifySell              NotificationKind = "sell"
	NotifySellOwner         NotificationKind = "sell_owner"
	NotifyDeposit           NotificationKind = "deposit"
	NotifyWithdraw          NotificationKind = "withdraw"
	NotifyShopCreated       NotificationKind = "shop_created"
	NotifyShopUpdated       NotificationKind = "shop_updated"
	NotifyShopRemoved       NotificationKind = "shop_removed"
	NotifyInventoryLinked   NotificationKind = "inventory_linked"
	NotifyInventoryUnlinked NotificationKind = "inventory_unlinked"
	NotifyOwnersChanged     NotificationKind = "owners_changed"
)

type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Recipient uuid.UUID        `json:"recipient"`
	Actor     uuid.UUID        `json:"actor"`
	ShopID    int64            `json:"shop_id"`
	Quantity  int              `json:"quantity,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Stock     *int             `json:"stock,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
