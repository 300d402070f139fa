package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/slabby/internal/core/domain"
)

// ShopRepository is the durable store for shops, their owners and logs. It
// owns the location cache and keeps it coherent with every write.
type ShopRepository interface {
	// CreateOrUpdate inserts the shop when it has no id yet, updates it otherwise.
	// The shop is reloaded afterwards so backing-store fields are visible.
	CreateOrUpdate(ctx context.Context, shop *domain.Shop) error
	Update(ctx context.Context, shop *domain.Shop) error
	Delete(ctx context.Context, shop *domain.Shop) error

	CreateOrUpdateOwner(ctx context.Context, owner *domain.Owner) error
	UpdateOwner(ctx context.Context, owner *domain.Owner) error
	DeleteOwner(ctx context.Context, owner *domain.Owner) error
	// AddOwner attaches owner to shop and persists it.
	AddOwner(ctx context.Context, shop *domain.Shop, owner *domain.Owner) error

	// AppendLog persists log as the newest audit entry of shop.
	AppendLog(ctx context.Context, shop *domain.Shop, log *domain.Log) error

	// Refresh reloads the persisted fields of shop into the same instance.
	Refresh(ctx context.Context, shop *domain.Shop) error

	// MarkAsDeleted flags shop as DELETED, clears both locations and records
	// a SHOP_DESTROYED log.
	MarkAsDeleted(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error

	ShopAt(ctx context.Context, loc domain.Location) (*domain.Shop, error)
	ShopWithInventoryAt(ctx context.Context, loc domain.Location) (*domain.Shop, error)
	IsShopOrInventory(ctx context.Context, loc domain.Location) (bool, error)

	// ShopByID returns shops in any state, or nil when absent.
	ShopByID(ctx context.Context, id int64) (*domain.Shop, error)
	ShopsOf(ctx context.Context, owner uuid.UUID, state domain.ShopState) ([]*domain.Shop, error)
	ShopsByItem(ctx context.Context, item domain.Item) ([]*domain.Shop, error)
	ShopsInArea(ctx context.Context, area domain.Area) ([]*domain.Shop, error)

	// Transaction runs fn as one atomic unit. Calls nested inside fn join the
	// same unit.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
