package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

const PermissionInteract = "slabby.shop.interact"

// PermissionAdminToggle lets an actor enter admin mode, which lifts owner
// checks on every shop.
const PermissionAdminToggle = "slabby.admin.toggle"

var errShopDeleted = domain.New(domain.CodeNotFound, "shop is deleted")

// DefaultMaxStock is the stock ceiling used when none is configured.
const DefaultMaxStock = 54 * 64

// StackSize is the unit count a bulk restock moves at once.
const StackSize = 64

type Settings struct {
	MaxStock int
	// RestockPunch enables Restock. RestockBulk moves a whole stack instead
	// of one trade quantity, RestockShulker deposits a held container.
	RestockPunch   bool
	RestockBulk    bool
	RestockShulker bool
}

type Deps struct {
	Repository  port.ShopRepository
	Economy     port.Economy
	Permissions port.Permissions
	Codec       port.ItemCodec
	Inventory   port.Inventory
	Markers     port.Markers
	Notifier    port.Notifier
	Requests    port.IdempotencyStore
	Sessions    *EditSessions
	Logger      *zap.Logger
}

type CommerceService struct {
	repo        port.ShopRepository
	economy     port.Economy
	permissions port.Permissions
	codec       port.ItemCodec
	inventory   port.Inventory
	markers     port.Markers
	notifier    port.Notifier
	requests    port.IdempotencyStore
	sessions    *EditSessions
	logger      *zap.Logger
	settings    Settings
}

func NewCommerceService(deps Deps, settings Settings) *CommerceService {
	if settings.MaxStock <= 0 {
		settings.MaxStock = DefaultMaxStock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewEditSessions(DraftDefaults{Quantity: 1})
	}
	return &CommerceService{
		repo:        deps.Repository,
		economy:     deps.Economy,
		permissions: deps.Permissions,
		codec:       deps.Codec,
		inventory:   deps.Inventory,
		markers:     deps.Markers,
		notifier:    deps.Notifier,
		requests:    deps.Requests,
		sessions:    sessions,
		logger:      logger,
		settings:    settings,
	}
}

func (s *CommerceService) Sessions() *EditSessions {
	return s.sessions
}

func (s *CommerceService) Settings() Settings {
	return s.settings
}

// Once runs fn unless requestID was already seen. An empty id always runs.
// The id is released when fn fails so the client may retry.
func (s *CommerceService) Once(ctx context.Context, requestID string, fn func(ctx context.Context) error) error {
	if requestID == "" || s.requests == nil {
		return fn(ctx)
	}

	ok, err := s.requests.SetIdempotency(ctx, requestID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateRequest
	}

	if err := fn(ctx); err != nil {
		if relErr := s.requests.ReleaseIdempotency(ctx, requestID); relErr != nil {
			s.logger.Warn("release request id", zap.String("request_id", requestID), zap.Error(relErr))
		}
		return err
	}
	return nil
}

type ownerCut struct {
	id     uuid.UUID
	amount decimal.Decimal
}

// SplitCost divides amount between the owners of shop by share.
func (s *CommerceService) SplitCost(amount decimal.Decimal, shop *domain.Shop) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(shop.Owners))
	for _, cut := range splitCost(amount, shop) {
		out[cut.id] = cut.amount
	}
	return out
}

func splitCost(amount decimal.Decimal, shop *domain.Shop) []ownerCut {
	hundred := decimal.NewFromInt(100)
	cuts := make([]ownerCut, 0, len(shop.Owners))
	for _, o := range shop.Owners {
		cuts = append(cuts, ownerCut{id: o.UniqueID, amount: amount.Mul(decimal.NewFromInt(int64(o.Share))).Div(hundred)})
	}
	return cuts
}

// Buy sells one quantity of the shop's item to actor.
//
// The ledger withdrawal happens before the inventory space check, so an actor
// without space is still debited. Owner deposits are independent ledger calls;
// a failure part way through is logged and not compensated.
func (s *CommerceService) Buy(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error {
	if !s.permissions.HasPermission(ctx, actor, PermissionInteract) {
		return domain.ErrPermissionDenied
	}
	if err := s.refreshActive(ctx, shop); err != nil {
		return err
	}

	if shop.BuyPrice == nil {
		return domain.New(domain.CodeUnsupportedOperation, "unable to buy from shop: shop is not selling")
	}
	if !shop.HasStock(shop.Quantity) {
		return domain.ErrShopOutOfStock
	}

	price := *shop.BuyPrice
	result, err := s.economy.Withdraw(ctx, actor, price)
	if err != nil {
		return fmt.Errorf("withdraw from buyer: %w", err)
	}
	if !result.Success {
		return domain.ErrInsufficientBalance
	}

	hasSpace, err := s.inventory.HasSpace(ctx, actor, shop.Item, shop.Quantity)
	if err != nil {
		return fmt.Errorf("check inventory space: %w", err)
	}
	if !hasSpace {
		return domain.ErrPlayerOutOfInventorySpace
	}

	if !shop.IsAdmin() {
		shop.SetStock(*shop.Stock - shop.Quantity)
		for _, cut := range splitCost(result.Amount, shop) {
			s.depositOwner(ctx, shop, cut)
		}
	}

	if err := s.commitWithLog(ctx, actor, shop, domain.LogActionBuy,
		domain.Transaction{Price: price, Quantity: shop.Quantity}); err != nil {
		return err
	}

	if err := s.inventory.AddItems(ctx, actor, shop.Item, shop.Quantity); err != nil {
		s.logger.Error("grant bought items", zap.Int64("shop_id", shop.ID), zap.Stringer("actor", actor), zap.Error(err))
		return fmt.Errorf("grant items: %w", err)
	}

	s.notifyTrade(ctx, actor, shop, port.NotifyBuy, port.NotifyBuyOwner, price)
	return nil
}

// Sell buys one quantity of the shop's item from actor. Owners' balances are
// checked before stock changes; their withdrawals run after the commit.
func (s *CommerceService) Sell(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error {
	if !s.permissions.HasPermission(ctx, actor, PermissionInteract) {
		return domain.ErrPermissionDenied
	}
	if err := s.refreshActive(ctx, shop); err != nil {
		return err
	}

	if shop.SellPrice == nil {
		return domain.New(domain.CodeUnsupportedOperation, "unable to sell to shop: shop is not buying")
	}

	holds, err := s.inventory.ContainsAtLeast(ctx, actor, shop.Item, shop.Quantity)
	if err != nil {
		return fmt.Errorf("check held items: %w", err)
	}
	if !holds {
		return domain.ErrPlayerOutOfStock
	}

	price := *shop.SellPrice
	cuts := splitCost(price, shop)

	if !shop.IsAdmin() {
		for _, cut := range cuts {
			ok, err := s.economy.HasAmount(ctx, cut.id, cut.amount)
			if err != nil {
				return fmt.Errorf("check owner balance: %w", err)
			}
			if !ok {
				return domain.ErrInsufficientBalanceToSell
			}
		}

		stock, ok := addStock(*shop.Stock, shop.Quantity, s.settings.MaxStock)
		if !ok {
			return domain.ErrShopOutOfSpace
		}
		shop.SetStock(stock)
	}

	if err := s.commitWithLog(ctx, actor, shop, domain.LogActionSell,
		domain.Transaction{Price: price, Quantity: shop.Quantity}); err != nil {
		return err
	}

	if !shop.IsAdmin() {
		for _, cut := range cuts {
			s.withdrawOwner(ctx, shop, cut)
		}
	}
	if res, err := s.economy.Deposit(ctx, actor, price); err != nil || !res.Success {
		s.logger.Error("pay seller", zap.Int64("shop_id", shop.ID), zap.Stringer("actor", actor),
			zap.Stringer("amount", price), zap.Error(err))
	}

	if err := s.inventory.RemoveItems(ctx, actor, shop.Item, shop.Quantity); err != nil {
		s.logger.Error("take sold items", zap.Int64("shop_id", shop.ID), zap.Stringer("actor", actor), zap.Error(err))
		return fmt.Errorf("remove items: %w", err)
	}

	s.notifyTrade(ctx, actor, shop, port.NotifySell, port.NotifySellOwner, price)
	return nil
}

// Withdraw moves amount units from the shop's stock to its owner.
func (s *CommerceService) Withdraw(ctx context.Context, actor uuid.UUID, shop *domain.Shop, amount int) error {
	if amount < 1 {
		return domain.New(domain.CodeInvalidArgument, "amount has to be higher than zero")
	}
	if shop.IsAdmin() {
		return domain.New(domain.CodeUnsupportedOperation, "cannot withdraw from admin shop")
	}
	if err := s.refreshActive(ctx, shop); err != nil {
		return err
	}
	if !shop.IsOwner(actor) {
		return domain.ErrPermissionDenied
	}

	if !shop.HasStock(amount) {
		return domain.ErrShopOutOfStock
	}
	hasSpace, err := s.inventory.HasSpace(ctx, actor, shop.Item, amount)
	if err != nil {
		return fmt.Errorf("check inventory space: %w", err)
	}
	if !hasSpace {
		return domain.ErrPlayerOutOfInventorySpace
	}

	old := *shop.Stock
	shop.SetStock(old - amount)

	if err := s.commitWithLog(ctx, actor, shop, domain.LogActionWithdraw,
		domain.ValueChanged[int]{From: old, To: *shop.Stock}); err != nil {
		return err
	}

	if err := s.inventory.AddItems(ctx, actor, shop.Item, amount); err != nil {
		s.logger.Error("grant withdrawn items", zap.Int64("shop_id", shop.ID), zap.Stringer("actor", actor), zap.Error(err))
		return fmt.Errorf("grant items: %w", err)
	}

	s.notify(ctx, port.Notification{Kind: port.NotifyWithdraw, Recipient: actor, Actor: actor,
		ShopID: shop.ID, Quantity: amount, Stock: shop.Stock})
	return nil
}

// Deposit moves units from owner to the shop's stock and returns how many
// were moved. With container restock enabled, holding a container deposits
// every matching unit inside it regardless of amount.
func (s *CommerceService) Deposit(ctx context.Context, actor uuid.UUID, shop *domain.Shop, amount int) (int, error) {
	if amount < 1 {
		return 0, domain.New(domain.CodeInvalidArgument, "amount has to be higher than zero")
	}
	if shop.IsAdmin() {
		return 0, domain.New(domain.CodeUnsupportedOperation, "cannot deposit to admin shop")
	}
	if err := s.refreshActive(ctx, shop); err != nil {
		return 0, err
	}
	if !shop.IsOwner(actor) {
		return 0, domain.ErrPermissionDenied
	}

	remove := s.inventory.RemoveItems
	fromContainer := false
	if s.settings.RestockShulker {
		count, ok, err := s.inventory.ContainerInHand(ctx, actor, shop.Item)
		if err != nil {
			return 0, fmt.Errorf("inspect container in hand: %w", err)
		}
		if ok {
			if count == 0 {
				return 0, domain.ErrPlayerOutOfStock
			}
			amount = count
			remove = s.inventory.RemoveFromContainerInHand
			fromContainer = true
		}
	}
	if !fromContainer {
		holds, err := s.inventory.ContainsAtLeast(ctx, actor, shop.Item, amount)
		if err != nil {
			return 0, fmt.Errorf("check held items: %w", err)
		}
		if !holds {
			return 0, domain.ErrPlayerOutOfStock
		}
	}

	old := *shop.Stock
	stock, ok := addStock(old, amount, s.settings.MaxStock)
	if !ok {
		return 0, domain.ErrShopOutOfSpace
	}
	shop.SetStock(stock)

	if err := s.commitWithLog(ctx, actor, shop, domain.LogActionDeposit,
		domain.ValueChanged[int]{From: old, To: stock}); err != nil {
		return 0, err
	}

	if err := remove(ctx, actor, shop.Item, amount); err != nil {
		s.logger.Error("take deposited items", zap.Int64("shop_id", shop.ID), zap.Stringer("actor", actor), zap.Error(err))
		return amount, fmt.Errorf("remove items: %w", err)
	}

	s.notify(ctx, port.Notification{Kind: port.NotifyDeposit, Recipient: actor, Actor: actor,
		ShopID: shop.ID, Quantity: amount, Stock: shop.Stock})
	return amount, nil
}

// Restock is the quick deposit an owner triggers by hitting the shop.
func (s *CommerceService) Restock(ctx context.Context, actor uuid.UUID, shop *domain.Shop) (int, error) {
	if !s.settings.RestockPunch {
		return 0, domain.New(domain.CodeUnsupportedOperation, "restocking by punch is disabled")
	}
	amount := shop.Quantity
	if s.settings.RestockBulk {
		amount = StackSize
	}
	return s.Deposit(ctx, actor, shop, amount)
}

// CreateOrUpdateShop persists draft. An existing shop gets the draft's
// mutable fields and one log per recorded change; otherwise a shop is created
// with actor as its sole owner. The marker is respawned after the commit.
//
// A draft carries no state: it only starts on an active shop, and the sole
// transition to DELETED is RemoveShop. A shop deleted while its draft was open
// stays deleted and the commit fails.
func (s *CommerceService) CreateOrUpdateShop(ctx context.Context, actor uuid.UUID, draft *Draft) (*domain.Shop, error) {
	if draft.Location == nil {
		return nil, domain.New(domain.CodeInvalidArgument, "shop location is required")
	}
	if draft.Quantity < 1 {
		return nil, domain.New(domain.CodeInvalidArgument, "quantity has to be higher than zero")
	}

	var (
		shop    *domain.Shop
		oldLoc  *domain.Location
		created bool
	)
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		var existing *domain.Shop
		if draft.ID != 0 {
			var err error
			if existing, err = s.repo.ShopByID(ctx, draft.ID); err != nil {
				return err
			}
		}

		if existing != nil {
			if !existing.IsActive() {
				return domain.New(domain.CodeUnsupportedOperation, "shop is deleted")
			}
			// needed to remove the marker at the old position
			oldLoc = copyLocation(existing.Location)

			existing.BuyPrice = copyDecimal(draft.BuyPrice)
			existing.SellPrice = copyDecimal(draft.SellPrice)
			existing.Quantity = draft.Quantity
			existing.Note = draft.Note
			existing.Name = draft.Name
			existing.SetLocation(draft.Location)

			for _, change := range draft.Changes() {
				log, err := domain.NewLog(change.Action, actor, change.Payload)
				if err != nil {
					return err
				}
				if err := s.repo.AppendLog(ctx, existing, log); err != nil {
					return err
				}
			}
			if err := s.repo.Update(ctx, existing); err != nil {
				return err
			}
			shop = existing
			return nil
		}

		if _, err := s.codec.Decode(draft.Item); err != nil {
			return err
		}
		shop = &domain.Shop{
			Item:      draft.Item,
			BuyPrice:  copyDecimal(draft.BuyPrice),
			SellPrice: copyDecimal(draft.SellPrice),
			Quantity:  draft.Quantity,
			Note:      draft.Note,
			Name:      draft.Name,
			State:     domain.ShopStateActive,
		}
		shop.SetLocation(draft.Location)
		if !s.sessions.IsAdminMode(actor) {
			shop.SetStock(0)
		}

		if err := s.repo.CreateOrUpdate(ctx, shop); err != nil {
			return err
		}
		if err := s.repo.AddOwner(ctx, shop, domain.NewOwner(actor, 100)); err != nil {
			return err
		}
		log, err := domain.NewLog(domain.LogActionShopCreated, actor, nil)
		if err != nil {
			return err
		}
		created = true
		return s.repo.AppendLog(ctx, shop, log)
	})
	if err != nil {
		return nil, err
	}

	resolved, err := s.repo.ShopAt(ctx, *shop.Location)
	if err != nil {
		return nil, err
	}
	if resolved != nil {
		shop = resolved
		if err := s.RemoveAndRespawnMarker(ctx, oldLoc, shop); err != nil {
			s.logger.Warn("respawn shop marker", zap.Int64("shop_id", shop.ID), zap.Error(err))
		}
	}

	kind := port.NotifyShopUpdated
	if created {
		kind = port.NotifyShopCreated
	}
	s.notify(ctx, port.Notification{Kind: kind, Recipient: actor, Actor: actor, ShopID: shop.ID})
	return shop, nil
}

// CommitDraft consumes the actor's draft. On failure the draft is put back
// unless the actor began another one meanwhile.
func (s *CommerceService) CommitDraft(ctx context.Context, actor uuid.UUID) (*domain.Shop, error) {
	draft, ok := s.sessions.Take(actor)
	if !ok {
		return nil, domain.ErrNoEditSession
	}
	shop, err := s.CreateOrUpdateShop(ctx, actor, draft)
	if err != nil {
		s.sessions.PutIfAbsent(actor, draft)
		return nil, err
	}
	return shop, nil
}

// RemoveAndRespawnMarker replaces the visual marker of shop and stores the
// new handle. old is the previous shop position, nil for new shops.
func (s *CommerceService) RemoveAndRespawnMarker(ctx context.Context, old *domain.Location, shop *domain.Shop) error {
	handle, err := s.markers.RemoveAndRespawn(ctx, old, shop)
	if err != nil {
		return err
	}
	shop.DisplayEntityID = &handle
	return s.repo.Update(ctx, shop)
}

// RemoveShop marks shop as deleted and removes its marker. Only owners and
// actors in admin mode may remove a shop. Removing a deleted shop is a no-op.
func (s *CommerceService) RemoveShop(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error {
	if err := s.repo.Refresh(ctx, shop); err != nil {
		return err
	}
	if !s.canManage(actor, shop) {
		return domain.ErrPermissionDenied
	}
	if !shop.IsActive() {
		return nil
	}
	if err := s.repo.MarkAsDeleted(ctx, actor, shop); err != nil {
		return err
	}

	if err := s.markers.Remove(ctx, shop); err != nil {
		s.logger.Warn("remove shop marker", zap.Int64("shop_id", shop.ID), zap.Error(err))
	}
	s.notify(ctx, port.Notification{Kind: port.NotifyShopRemoved, Recipient: actor, Actor: actor, ShopID: shop.ID})
	return nil
}

// LinkShop links inventory to the shop at the position of the actor's draft.
// The draft is consumed whatever the outcome.
func (s *CommerceService) LinkShop(ctx context.Context, actor uuid.UUID, inventory domain.Location) error {
	draft, ok := s.sessions.Take(actor)
	if !ok {
		return domain.ErrNoEditSession
	}
	if draft.Location == nil {
		return domain.New(domain.CodeInvalidArgument, "draft has no shop location")
	}

	shop, err := s.repo.ShopAt(ctx, *draft.Location)
	if err != nil {
		return err
	}
	if shop == nil {
		return domain.Wrap(domain.CodeNotFound, "link inventory", fmt.Errorf("no shop at %s", draft.Location))
	}
	if !s.canManage(actor, shop) {
		return domain.ErrPermissionDenied
	}

	shop.SetInventory(&inventory)
	if err := s.commitWithLog(ctx, actor, shop, domain.LogActionInventoryLinkChanged,
		domain.NewLocationChanged(shop.Inventory)); err != nil {
		return err
	}

	s.notify(ctx, port.Notification{Kind: port.NotifyInventoryLinked, Recipient: actor, Actor: actor, ShopID: shop.ID})
	return nil
}

// UnlinkShop removes the inventory link of shop and clears the actor's draft.
func (s *CommerceService) UnlinkShop(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error {
	defer s.sessions.Clear(actor)

	if err := s.refreshActive(ctx, shop); err != nil {
		return err
	}
	if !s.canManage(actor, shop) {
		return domain.ErrPermissionDenied
	}

	shop.SetInventory(nil)
	if err := s.commitWithLog(ctx, actor, shop, domain.LogActionInventoryLinkChanged,
		domain.NewLocationChanged(nil)); err != nil {
		return err
	}

	s.notify(ctx, port.Notification{Kind: port.NotifyInventoryUnlinked, Recipient: actor, Actor: actor, ShopID: shop.ID})
	return nil
}

// ToggleAdminMode flips admin mode for actor and returns the new value.
func (s *CommerceService) ToggleAdminMode(ctx context.Context, actor uuid.UUID) (bool, error) {
	if !s.permissions.HasPermission(ctx, actor, PermissionAdminToggle) {
		return false, domain.ErrPermissionDenied
	}
	enabled := s.sessions.ToggleAdminMode(actor)
	s.logger.Info("admin mode toggled", zap.Stringer("actor", actor), zap.Bool("enabled", enabled))
	return enabled, nil
}

// CanManage reports whether actor may edit shop: owners always, everyone else
// only in admin mode.
func (s *CommerceService) CanManage(actor uuid.UUID, shop *domain.Shop) bool {
	return s.canManage(actor, shop)
}

func (s *CommerceService) canManage(actor uuid.UUID, shop *domain.Shop) bool {
	return shop.IsOwner(actor) || s.sessions.IsAdminMode(actor)
}

// refreshActive reloads shop and rejects it once deleted.
func (s *CommerceService) refreshActive(ctx context.Context, shop *domain.Shop) error {
	if err := s.repo.Refresh(ctx, shop); err != nil {
		return err
	}
	if !shop.IsActive() {
		return errShopDeleted
	}
	return nil
}

// SetOwners replaces the ownership split of shop. Shares must each lie in
// 0..100 and add up to 100.
func (s *CommerceService) SetOwners(ctx context.Context, actor uuid.UUID, shop *domain.Shop, shares map[uuid.UUID]int) error {
	if err := s.refreshActive(ctx, shop); err != nil {
		return err
	}
	if !s.canManage(actor, shop) {
		return domain.ErrPermissionDenied
	}
	if len(shares) == 0 {
		return domain.New(domain.CodeInvalidArgument, "a shop needs at least one owner")
	}
	total := 0
	for _, share := range shares {
		if share < 0 || share > 100 {
			return domain.New(domain.CodeInvalidArgument, "share has to be between 0 and 100")
		}
		total += share
	}
	if total != 100 {
		return domain.New(domain.CodeInvalidArgument, fmt.Sprintf("shares add up to %d, expected 100", total))
	}

	from := shop.Shares()
	ids := make([]uuid.UUID, 0, len(shares))
	for id := range shares {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		for _, o := range shop.Owners {
			if _, keep := shares[o.UniqueID]; keep {
				continue
			}
			if err := s.repo.DeleteOwner(ctx, o); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if err := s.repo.AddOwner(ctx, shop, domain.NewOwner(id, shares[id])); err != nil {
				return err
			}
		}
		log, err := domain.NewLog(domain.LogActionOwnersChanged, actor, domain.OwnersChanged{From: from, To: shares})
		if err != nil {
			return err
		}
		if err := s.repo.AppendLog(ctx, shop, log); err != nil {
			return err
		}
		return s.repo.Refresh(ctx, shop)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, port.Notification{Kind: port.NotifyOwnersChanged, Recipient: actor, Actor: actor, ShopID: shop.ID})
	return nil
}

// commitWithLog persists shop and appends one log as a single unit.
func (s *CommerceService) commitWithLog(ctx context.Context, actor uuid.UUID, shop *domain.Shop, action domain.LogAction, payload any) error {
	return s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, shop); err != nil {
			return err
		}
		log, err := domain.NewLog(action, actor, payload)
		if err != nil {
			return err
		}
		return s.repo.AppendLog(ctx, shop, log)
	})
}

func (s *CommerceService) depositOwner(ctx context.Context, shop *domain.Shop, cut ownerCut) {
	res, err := s.economy.Deposit(ctx, cut.id, cut.amount)
	if err != nil || !res.Success {
		s.logger.Error("owner deposit failed, ledger left partially paid",
			zap.Int64("shop_id", shop.ID), zap.Stringer("owner", cut.id), zap.Stringer("amount", cut.amount), zap.Error(err))
	}
}

func (s *CommerceService) withdrawOwner(ctx context.Context, shop *domain.Shop, cut ownerCut) {
	res, err := s.economy.Withdraw(ctx, cut.id, cut.amount)
	if err != nil || !res.Success {
		s.logger.Error("owner withdrawal failed, ledger left partially charged",
			zap.Int64("shop_id", shop.ID), zap.Stringer("owner", cut.id), zap.Stringer("amount", cut.amount), zap.Error(err))
	}
}

func (s *CommerceService) notifyTrade(ctx context.Context, actor uuid.UUID, shop *domain.Shop, kind, ownerKind port.NotificationKind, price decimal.Decimal) {
	s.notify(ctx, port.Notification{Kind: kind, Recipient: actor, Actor: actor, ShopID: shop.ID,
		Quantity: shop.Quantity, Price: &price, Stock: shop.Stock})
	if shop.IsAdmin() {
		return
	}
	for _, o := range shop.Owners {
		s.notify(ctx, port.Notification{Kind: ownerKind, Recipient: o.UniqueID, Actor: actor, ShopID: shop.ID,
			Quantity: shop.Quantity, Price: &price, Stock: shop.Stock})
	}
}

func (s *CommerceService) notify(ctx context.Context, n port.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notify", zap.String("kind", string(n.Kind)), zap.Int64("shop_id", n.ShopID), zap.Error(err))
	}
}

// addStock returns stock+amount when it fits under limit without overflow.
func addStock(stock, amount, limit int) (int, bool) {
	if amount > math.MaxInt-stock {
		return 0, false
	}
	sum := stock + amount
	if sum > limit {
		return 0, false
	}
	return sum, true
}
