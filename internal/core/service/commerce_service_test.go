package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/adapter/cache"
	"github.com/rl1809/slabby/internal/adapter/itemcodec"
	"github.com/rl1809/slabby/internal/adapter/memory"
	"github.com/rl1809/slabby/internal/adapter/storage"
	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []port.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n port.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) kinds() []port.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]port.NotificationKind, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Kind
	}
	return out
}

type harness struct {
	svc      *CommerceService
	repo     *storage.Repository
	ledger   *memory.Ledger
	holdings *memory.Holdings
	perms    *memory.Permissions
	markers  *memory.Markers
	notifier *recordingNotifier
	item     domain.Item
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "shops.db"), storage.WithCache(cache.NewLocationCache()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	codec := itemcodec.New()
	item, err := codec.Encode(domain.ItemDescriptor{Material: "diamond"})
	if err != nil {
		t.Fatalf("encode item: %v", err)
	}

	h := &harness{
		repo:     repo,
		ledger:   memory.NewLedger(),
		holdings: memory.NewHoldings(0),
		perms:    memory.NewPermissions(PermissionInteract),
		markers:  memory.NewMarkers(),
		notifier: &recordingNotifier{},
		item:     item,
	}
	h.svc = NewCommerceService(Deps{
		Repository:  repo,
		Economy:     h.ledger,
		Permissions: h.perms,
		Codec:       codec,
		Inventory:   h.holdings,
		Markers:     h.markers,
		Notifier:    h.notifier,
		Requests:    memory.NewIdempotency(time.Minute),
		Logger:      zap.NewNop(),
	}, settings)
	return h
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// seedShop stores a shop owned solely by owner.
func (h *harness) seedShop(t *testing.T, owner uuid.UUID, buy, sell *decimal.Decimal, quantity int, stock *int) *domain.Shop {
	t.Helper()
	ctx := context.Background()
	shop := &domain.Shop{
		Location:  &domain.Location{X: 1, Y: 64, Z: 1, World: "world"},
		Item:      h.item,
		BuyPrice:  buy,
		SellPrice: sell,
		Quantity:  quantity,
		Stock:     stock,
		State:     domain.ShopStateActive,
	}
	if err := h.repo.CreateOrUpdate(ctx, shop); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	if err := h.repo.AddOwner(ctx, shop, domain.NewOwner(owner, 100)); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	return shop
}

func intPtr(v int) *int { return &v }

func balance(t *testing.T, l *memory.Ledger, id uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := l.Balance(context.Background(), id)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func logsOf(t *testing.T, h *harness, shop *domain.Shop, action domain.LogAction) []*domain.Log {
	t.Helper()
	stored, err := h.repo.ShopByID(context.Background(), shop.ID)
	if err != nil || stored == nil {
		t.Fatalf("load shop %d: %v", shop.ID, err)
	}
	var out []*domain.Log
	for _, l := range stored.Logs {
		if l.Action == action {
			out = append(out, l)
		}
	}
	return out
}

func TestBuy_Success(t *testing.T) {
	h := newHarness(t, Settings{})
	owner, buyer := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, dec(10), nil, 1, intPtr(5))
	h.ledger.SetBalance(buyer, decimal.NewFromInt(10))

	if err := h.svc.Buy(context.Background(), buyer, shop); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if *shop.Stock != 4 {
		t.Errorf("expected stock 4, got %d", *shop.Stock)
	}
	if got := balance(t, h.ledger, buyer); !got.IsZero() {
		t.Errorf("expected buyer balance 0, got %s", got)
	}
	if got := balance(t, h.ledger, owner); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected owner balance 10, got %s", got)
	}
	if got := h.holdings.Count(buyer, h.item); got != 1 {
		t.Errorf("expected 1 item in inventory, got %d", got)
	}

	buys := logsOf(t, h, shop, domain.LogActionBuy)
	if len(buys) != 1 {
		t.Fatalf("expected 1 BUY log, got %d", len(buys))
	}
	payload, err := domain.DecodePayload[domain.Transaction](buys[0])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.Price.Equal(decimal.NewFromInt(10)) || payload.Quantity != 1 {
		t.Errorf("unexpected payload %+v", payload)
	}
	if buys[0].UniqueID != buyer {
		t.Errorf("expected log actor %s, got %s", buyer, buys[0].UniqueID)
	}

	kinds := h.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != port.NotifyBuy || kinds[1] != port.NotifyBuyOwner {
		t.Errorf("unexpected notifications %v", kinds)
	}
}

func TestBuy_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, shop *domain.Shop, buyer uuid.UUID)
		buy   *decimal.Decimal
		stock *int
		want  error
	}{
		{
			name: "not selling",
			buy:  nil,
			want: domain.ErrUnsupportedOperation,
		},
		{
			name:  "out of stock",
			buy:   dec(10),
			stock: intPtr(0),
			want:  domain.ErrShopOutOfStock,
		},
		{
			name: "insufficient balance",
			buy:  dec(10),
			setup: func(h *harness, _ *domain.Shop, buyer uuid.UUID) {
				h.ledger.SetBalance(buyer, decimal.NewFromInt(9))
			},
			want: domain.ErrInsufficientBalance,
		},
		{
			name: "permission revoked",
			buy:  dec(10),
			setup: func(h *harness, _ *domain.Shop, buyer uuid.UUID) {
				h.perms.Revoke(buyer, PermissionInteract)
			},
			want: domain.ErrPermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Settings{})
			buyer := uuid.New()
			stock := tt.stock
			if stock == nil {
				stock = intPtr(5)
			}
			shop := h.seedShop(t, uuid.New(), tt.buy, nil, 1, stock)
			h.ledger.SetBalance(buyer, decimal.NewFromInt(100))
			if tt.setup != nil {
				tt.setup(h, shop, buyer)
			}

			err := h.svc.Buy(context.Background(), buyer, shop)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(logsOf(t, h, shop, domain.LogActionBuy)) != 0 {
				t.Error("expected no BUY log")
			}
		})
	}
}

// The withdrawal is not reversed when the buyer has no room for the items.
func TestBuy_NoInventorySpaceKeepsDebit(t *testing.T) {
	h := newHarness(t, Settings{})
	h.holdings = memory.NewHoldings(1)
	h.svc.inventory = h.holdings
	buyer := uuid.New()
	shop := h.seedShop(t, uuid.New(), dec(10), nil, 2, intPtr(5))
	h.ledger.SetBalance(buyer, decimal.NewFromInt(10))

	err := h.svc.Buy(context.Background(), buyer, shop)
	if !errors.Is(err, domain.ErrPlayerOutOfInventorySpace) {
		t.Fatalf("expected out of inventory space, got %v", err)
	}
	if got := balance(t, h.ledger, buyer); !got.IsZero() {
		t.Errorf("expected debit to stay, balance %s", got)
	}
	if *shop.Stock != 5 {
		t.Errorf("expected stock unchanged, got %d", *shop.Stock)
	}
}

func TestBuy_AdminShopKeepsNoStock(t *testing.T) {
	h := newHarness(t, Settings{})
	owner, buyer := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, dec(3), nil, 4, nil)
	h.ledger.SetBalance(buyer, decimal.NewFromInt(3))

	if err := h.svc.Buy(context.Background(), buyer, shop); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if shop.Stock != nil {
		t.Errorf("expected admin shop to keep nil stock, got %d", *shop.Stock)
	}
	if got := balance(t, h.ledger, owner); !got.IsZero() {
		t.Errorf("expected admin shop owner unpaid, got %s", got)
	}
	if got := h.holdings.Count(buyer, h.item); got != 4 {
		t.Errorf("expected 4 items, got %d", got)
	}
}

func TestSell_Success(t *testing.T) {
	h := newHarness(t, Settings{MaxStock: 64})
	owner, seller := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, nil, dec(5), 2, intPtr(3))
	h.ledger.SetBalance(owner, decimal.NewFromInt(5))
	h.holdings.Give(seller, h.item, 2)

	if err := h.svc.Sell(context.Background(), seller, shop); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if *shop.Stock != 5 {
		t.Errorf("expected stock 5, got %d", *shop.Stock)
	}
	if got := balance(t, h.ledger, owner); !got.IsZero() {
		t.Errorf("expected owner balance 0, got %s", got)
	}
	if got := balance(t, h.ledger, seller); !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected seller balance 5, got %s", got)
	}
	if got := h.holdings.Count(seller, h.item); got != 0 {
		t.Errorf("expected items taken, got %d", got)
	}
	if len(logsOf(t, h, shop, domain.LogActionSell)) != 1 {
		t.Error("expected 1 SELL log")
	}
}

func TestSell_ShopOutOfSpace(t *testing.T) {
	h := newHarness(t, Settings{MaxStock: 64})
	owner, seller := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, nil, dec(5), 1, intPtr(64))
	h.ledger.SetBalance(owner, decimal.NewFromInt(5))
	h.holdings.Give(seller, h.item, 1)

	err := h.svc.Sell(context.Background(), seller, shop)
	if !errors.Is(err, domain.ErrShopOutOfSpace) {
		t.Fatalf("expected shop out of space, got %v", err)
	}
	if got := balance(t, h.ledger, owner); !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected owner untouched, got %s", got)
	}
	if *shop.Stock != 64 {
		t.Errorf("expected stock 64, got %d", *shop.Stock)
	}
}

func TestSell_Rejections(t *testing.T) {
	h := newHarness(t, Settings{MaxStock: 64})
	owner, seller := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, nil, dec(5), 2, intPtr(3))

	if err := h.svc.Sell(context.Background(), seller, shop); !errors.Is(err, domain.ErrPlayerOutOfStock) {
		t.Errorf("expected player out of stock, got %v", err)
	}

	h.holdings.Give(seller, h.item, 2)
	if err := h.svc.Sell(context.Background(), seller, shop); !errors.Is(err, domain.ErrInsufficientBalanceToSell) {
		t.Errorf("expected insufficient balance to sell, got %v", err)
	}

	buyOnly := h.seedShopAt(t, owner, domain.Location{X: 9, Y: 64, Z: 9, World: "world"})
	if err := h.svc.Sell(context.Background(), seller, buyOnly); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("expected unsupported, got %v", err)
	}
}

func (h *harness) seedShopAt(t *testing.T, owner uuid.UUID, at domain.Location) *domain.Shop {
	t.Helper()
	ctx := context.Background()
	shop := &domain.Shop{Location: &at, Item: h.item, BuyPrice: dec(1), Quantity: 1, Stock: intPtr(0)}
	if err := h.repo.CreateOrUpdate(ctx, shop); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	if err := h.repo.AddOwner(ctx, shop, domain.NewOwner(owner, 100)); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	return shop
}

func TestSplitCost(t *testing.T) {
	h := newHarness(t, Settings{})
	a, b := uuid.New(), uuid.New()
	shop := &domain.Shop{Owners: []*domain.Owner{domain.NewOwner(a, 75), domain.NewOwner(b, 25)}}

	split := h.svc.SplitCost(decimal.NewFromInt(10), shop)
	if !split[a].Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("expected 7.5 for a, got %s", split[a])
	}
	if !split[b].Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected 2.5 for b, got %s", split[b])
	}
}

func TestBuySell_RoundTrip(t *testing.T) {
	h := newHarness(t, Settings{MaxStock: 64})
	owner, actor := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, dec(10), dec(10), 1, intPtr(5))
	h.ledger.SetBalance(actor, decimal.NewFromInt(10))
	ctx := context.Background()

	if err := h.svc.Buy(ctx, actor, shop); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := h.svc.Sell(ctx, actor, shop); err != nil {
		t.Fatalf("sell: %v", err)
	}

	if *shop.Stock != 5 {
		t.Errorf("expected stock back at 5, got %d", *shop.Stock)
	}
	if got := balance(t, h.ledger, actor); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected actor balance 10, got %s", got)
	}
	if got := balance(t, h.ledger, owner); !got.IsZero() {
		t.Errorf("expected owner balance 0, got %s", got)
	}
}

func TestWithdrawDeposit(t *testing.T) {
	h := newHarness(t, Settings{MaxStock: 64})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(10))
	ctx := context.Background()

	if err := h.svc.Withdraw(ctx, owner, shop, 4); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if *shop.Stock != 6 || h.holdings.Count(owner, h.item) != 4 {
		t.Errorf("expected stock 6 and 4 held, got %d and %d", *shop.Stock, h.holdings.Count(owner, h.item))
	}

	n, err := h.svc.Deposit(ctx, owner, shop, 3)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if n != 3 || *shop.Stock != 9 || h.holdings.Count(owner, h.item) != 1 {
		t.Errorf("unexpected state after deposit: n=%d stock=%d held=%d", n, *shop.Stock, h.holdings.Count(owner, h.item))
	}

	deposits := logsOf(t, h, shop, domain.LogActionDeposit)
	if len(deposits) != 1 {
		t.Fatalf("expected 1 DEPOSIT log, got %d", len(deposits))
	}
	change, err := domain.DecodePayload[domain.ValueChanged[int]](deposits[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if change.From != 6 || change.To != 9 {
		t.Errorf("unexpected deposit payload %+v", change)
	}

	if err := h.svc.Withdraw(ctx, owner, shop, 10); !errors.Is(err, domain.ErrShopOutOfStock) {
		t.Errorf("expected out of stock, got %v", err)
	}
	if _, err := h.svc.Deposit(ctx, owner, shop, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
	if _, err := h.svc.Deposit(ctx, owner, shop, 5); !errors.Is(err, domain.ErrPlayerOutOfStock) {
		t.Errorf("expected player out of stock, got %v", err)
	}
	if err := h.svc.Withdraw(ctx, uuid.New(), shop, 1); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}
}

func TestWithdrawDeposit_AdminShop(t *testing.T) {
	h := newHarness(t, Settings{})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, nil)

	if err := h.svc.Withdraw(context.Background(), owner, shop, 1); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("expected unsupported withdraw, got %v", err)
	}
	if _, err := h.svc.Deposit(context.Background(), owner, shop, 1); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("expected unsupported deposit, got %v", err)
	}
}

func TestDeposit_Overflow(t *testing.T) {
	h := newHarness(t, Settings{MaxStock: 64})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(60))
	h.holdings.Give(owner, h.item, 10)

	if _, err := h.svc.Deposit(context.Background(), owner, shop, 5); !errors.Is(err, domain.ErrShopOutOfSpace) {
		t.Fatalf("expected shop out of space, got %v", err)
	}
	if h.holdings.Count(owner, h.item) != 10 {
		t.Error("expected items to stay with the owner")
	}
}

func TestDeposit_FromContainer(t *testing.T) {
	h := newHarness(t, Settings{MaxStock: 64, RestockShulker: true})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(0))
	h.holdings.HoldContainer(owner, map[string]int{string(h.item): 12})

	n, err := h.svc.Deposit(context.Background(), owner, shop, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if n != 12 || *shop.Stock != 12 {
		t.Errorf("expected whole container deposited, got n=%d stock=%d", n, *shop.Stock)
	}
	count, ok, _ := h.holdings.ContainerInHand(context.Background(), owner, h.item)
	if !ok || count != 0 {
		t.Errorf("expected empty container in hand, got %d %v", count, ok)
	}

	if _, err := h.svc.Deposit(context.Background(), owner, shop, 1); !errors.Is(err, domain.ErrPlayerOutOfStock) {
		t.Errorf("expected empty container to fail, got %v", err)
	}
}

func TestRestock(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	h := newHarness(t, Settings{MaxStock: 640})
	shop := h.seedShop(t, owner, dec(1), nil, 2, intPtr(0))
	if _, err := h.svc.Restock(ctx, owner, shop); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("expected disabled restock, got %v", err)
	}

	h = newHarness(t, Settings{MaxStock: 640, RestockPunch: true})
	shop = h.seedShop(t, owner, dec(1), nil, 2, intPtr(0))
	h.holdings.Give(owner, h.item, 100)
	if n, err := h.svc.Restock(ctx, owner, shop); err != nil || n != 2 {
		t.Errorf("expected one trade quantity restocked, got %d %v", n, err)
	}

	h = newHarness(t, Settings{MaxStock: 640, RestockPunch: true, RestockBulk: true})
	shop = h.seedShop(t, owner, dec(1), nil, 2, intPtr(0))
	h.holdings.Give(owner, h.item, 100)
	if n, err := h.svc.Restock(ctx, owner, shop); err != nil || n != StackSize {
		t.Errorf("expected a stack restocked, got %d %v", n, err)
	}
	if h.holdings.Count(owner, h.item) != 100-StackSize {
		t.Errorf("expected %d items left, got %d", 100-StackSize, h.holdings.Count(owner, h.item))
	}
}

func TestCreateOrUpdateShop_New(t *testing.T) {
	h := newHarness(t, Settings{})
	actor := uuid.New()
	ctx := context.Background()

	draft := h.svc.Sessions().Begin(actor)
	draft.SetItem(h.item)
	draft.SetLocation(domain.Location{X: 4, Y: 70, Z: -2, World: "world"})
	if err := draft.SetBuyPrice(dec(8)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	shop, err := h.svc.CommitDraft(ctx, actor)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if shop.ID == 0 || !shop.IsOwner(actor) || shop.Owner(actor).Share != 100 {
		t.Fatalf("expected persisted shop owned by actor, got %+v", shop)
	}
	if shop.Stock == nil || *shop.Stock != 0 {
		t.Errorf("expected stock 0, got %v", shop.Stock)
	}
	if len(logsOf(t, h, shop, domain.LogActionShopCreated)) != 1 {
		t.Error("expected SHOP_CREATED log")
	}
	handle, at, placed := h.markers.Placed(shop.ID)
	if !placed || at != *shop.Location || shop.DisplayEntityID == nil || *shop.DisplayEntityID != handle {
		t.Errorf("expected marker placed at shop and stored, got %v %v %v", placed, at, shop.DisplayEntityID)
	}
	if _, ok := h.svc.Sessions().Get(actor); ok {
		t.Error("expected draft consumed")
	}
}

func TestCreateOrUpdateShop_AdminMode(t *testing.T) {
	h := newHarness(t, Settings{})
	actor := uuid.New()
	h.svc.Sessions().SetAdminMode(actor, true)

	draft := h.svc.Sessions().Begin(actor)
	draft.SetItem(h.item)
	draft.SetLocation(domain.Location{X: 0, Y: 0, Z: 0, World: "world"})

	shop, err := h.svc.CommitDraft(context.Background(), actor)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !shop.IsAdmin() {
		t.Errorf("expected admin shop, got stock %d", *shop.Stock)
	}
}

func TestCreateOrUpdateShop_UpdateRecordsChanges(t *testing.T) {
	h := newHarness(t, Settings{})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(10), nil, 1, intPtr(0))
	ctx := context.Background()

	draft := h.svc.Sessions().BeginFor(owner, shop)
	if err := draft.SetBuyPrice(dec(12)); err != nil {
		t.Fatal(err)
	}
	if err := draft.SetQuantity(3); err != nil {
		t.Fatal(err)
	}
	draft.SetNote("fresh")
	draft.SetNote("")

	updated, err := h.svc.CommitDraft(ctx, owner)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !updated.BuyPrice.Equal(decimal.NewFromInt(12)) || updated.Quantity != 3 {
		t.Errorf("expected fields applied, got %s x%d", updated.BuyPrice, updated.Quantity)
	}
	if n := len(logsOf(t, h, shop, domain.LogActionPriceChanged)); n != 1 {
		t.Errorf("expected 1 PRICE_CHANGED log, got %d", n)
	}
	if n := len(logsOf(t, h, shop, domain.LogActionQuantityChanged)); n != 1 {
		t.Errorf("expected 1 QUANTITY_CHANGED log, got %d", n)
	}
	if n := len(logsOf(t, h, shop, domain.LogActionNoteChanged)); n != 0 {
		t.Errorf("expected reverted note to log nothing, got %d", n)
	}
}

func TestCommitDraft_PutsDraftBackOnFailure(t *testing.T) {
	h := newHarness(t, Settings{})
	owner, other := uuid.New(), uuid.New()
	taken := h.seedShop(t, owner, dec(1), nil, 1, intPtr(0))

	draft := h.svc.Sessions().Begin(other)
	draft.SetItem(h.item)
	draft.SetLocation(*taken.Location)

	_, err := h.svc.CommitDraft(context.Background(), other)
	if !errors.Is(err, domain.ErrLocationInUse) {
		t.Fatalf("expected location in use, got %v", err)
	}
	if got, ok := h.svc.Sessions().Get(other); !ok || got != draft {
		t.Error("expected draft put back after failure")
	}

	if _, err := h.svc.CommitDraft(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNoEditSession) {
		t.Errorf("expected no edit session, got %v", err)
	}
}

func TestRemoveShop(t *testing.T) {
	h := newHarness(t, Settings{})
	owner, stranger := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(0))
	ctx := context.Background()
	if err := h.svc.RemoveAndRespawnMarker(ctx, nil, shop); err != nil {
		t.Fatalf("place marker: %v", err)
	}
	at := *shop.Location

	if err := h.svc.RemoveShop(ctx, stranger, shop); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := h.svc.RemoveShop(ctx, owner, shop); err != nil {
		t.Fatalf("remove: %v", err)
	}

	found, err := h.repo.ShopAt(ctx, at)
	if err != nil || found != nil {
		t.Errorf("expected no active shop at %s, got %v %v", at, found, err)
	}
	if _, _, placed := h.markers.Placed(shop.ID); placed {
		t.Error("expected marker removed")
	}

	if err := h.svc.RemoveShop(ctx, owner, shop); err != nil {
		t.Fatalf("remove again: %v", err)
	}
	if n := len(logsOf(t, h, shop, domain.LogActionShopDestroyed)); n != 1 {
		t.Errorf("expected 1 SHOP_DESTROYED log, got %d", n)
	}
}

func TestDeletedShop_RejectsOperations(t *testing.T) {
	tests := []struct {
		name string
		op   func(h *harness, actor uuid.UUID, shop *domain.Shop) error
	}{
		{"buy", func(h *harness, actor uuid.UUID, shop *domain.Shop) error {
			return h.svc.Buy(context.Background(), actor, shop)
		}},
		{"sell", func(h *harness, actor uuid.UUID, shop *domain.Shop) error {
			return h.svc.Sell(context.Background(), actor, shop)
		}},
		{"withdraw", func(h *harness, actor uuid.UUID, shop *domain.Shop) error {
			return h.svc.Withdraw(context.Background(), actor, shop, 1)
		}},
		{"deposit", func(h *harness, actor uuid.UUID, shop *domain.Shop) error {
			_, err := h.svc.Deposit(context.Background(), actor, shop, 1)
			return err
		}},
		{"restock", func(h *harness, actor uuid.UUID, shop *domain.Shop) error {
			_, err := h.svc.Restock(context.Background(), actor, shop)
			return err
		}},
		{"set owners", func(h *harness, actor uuid.UUID, shop *domain.Shop) error {
			return h.svc.SetOwners(context.Background(), actor, shop, map[uuid.UUID]int{actor: 100})
		}},
		{"unlink", func(h *harness, actor uuid.UUID, shop *domain.Shop) error {
			return h.svc.UnlinkShop(context.Background(), actor, shop)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Settings{RestockPunch: true})
			owner := uuid.New()
			shop := h.seedShop(t, owner, dec(10), dec(5), 1, intPtr(5))
			h.ledger.SetBalance(owner, decimal.NewFromInt(100))
			h.holdings.Give(owner, h.item, 10)
			if err := h.svc.RemoveShop(context.Background(), owner, shop); err != nil {
				t.Fatalf("remove: %v", err)
			}

			if err := tt.op(h, owner, shop); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			stored, err := h.repo.ShopByID(context.Background(), shop.ID)
			if err != nil || stored == nil {
				t.Fatalf("load shop: %v", err)
			}
			if stored.IsActive() || *stored.Stock != 5 || len(stored.Logs) != 1 {
				t.Errorf("deleted shop changed: state=%s stock=%d logs=%d", stored.State, *stored.Stock, len(stored.Logs))
			}
			if !balance(t, h.ledger, owner).Equal(decimal.NewFromInt(100)) {
				t.Errorf("balance changed to %s", balance(t, h.ledger, owner))
			}
		})
	}
}

// A shop removed while its edit draft was open stays removed.
func TestCommitDraft_DeletedShop(t *testing.T) {
	h := newHarness(t, Settings{})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(0))
	ctx := context.Background()

	draft := h.svc.Sessions().BeginFor(owner, shop)
	draft.SetNote("late edit")
	if err := h.svc.RemoveShop(ctx, owner, shop); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := h.svc.CommitDraft(ctx, owner); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	stored, err := h.repo.ShopByID(ctx, shop.ID)
	if err != nil || stored == nil {
		t.Fatalf("load shop: %v", err)
	}
	if stored.IsActive() || stored.Note == "late edit" {
		t.Errorf("expected deleted shop untouched, got state=%s note=%q", stored.State, stored.Note)
	}
}

func TestToggleAdminMode_RequiresPermission(t *testing.T) {
	h := newHarness(t, Settings{})
	actor := uuid.New()
	ctx := context.Background()

	if _, err := h.svc.ToggleAdminMode(ctx, actor); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if h.svc.Sessions().IsAdminMode(actor) {
		t.Fatal("admin mode enabled without permission")
	}

	h.perms.Grant(actor, PermissionAdminToggle)
	enabled, err := h.svc.ToggleAdminMode(ctx, actor)
	if err != nil || !enabled || !h.svc.Sessions().IsAdminMode(actor) {
		t.Fatalf("expected admin mode on, got %v %v", enabled, err)
	}
	if enabled, err = h.svc.ToggleAdminMode(ctx, actor); err != nil || enabled {
		t.Errorf("expected admin mode off, got %v %v", enabled, err)
	}
}

func TestLinkUnlink(t *testing.T) {
	h := newHarness(t, Settings{})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(0))
	ctx := context.Background()
	chest := domain.Location{X: 1, Y: 63, Z: 1, World: "world"}

	draft := h.svc.Sessions().BeginFor(owner, shop)
	draft.AwaitInventoryLink()
	if err := h.svc.LinkShop(ctx, owner, chest); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, ok := h.svc.Sessions().Get(owner); ok {
		t.Error("expected session cleared after link")
	}

	linked, err := h.repo.ShopWithInventoryAt(ctx, chest)
	if err != nil || linked == nil || linked.ID != shop.ID {
		t.Fatalf("expected shop linked at %s, got %v %v", chest, linked, err)
	}
	links := logsOf(t, h, shop, domain.LogActionInventoryLinkChanged)
	if len(links) != 1 {
		t.Fatalf("expected 1 link log, got %d", len(links))
	}
	payload, err := domain.DecodePayload[domain.LocationChanged](links[0])
	if err != nil || payload.Location() == nil || *payload.Location() != chest {
		t.Errorf("unexpected link payload %+v %v", payload, err)
	}

	h.svc.Sessions().BeginFor(owner, linked)
	if err := h.svc.UnlinkShop(ctx, owner, linked); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, ok := h.svc.Sessions().Get(owner); ok {
		t.Error("expected session cleared after unlink")
	}
	if found, _ := h.repo.ShopWithInventoryAt(ctx, chest); found != nil {
		t.Error("expected inventory unlinked")
	}

	if err := h.svc.LinkShop(ctx, owner, chest); !errors.Is(err, domain.ErrNoEditSession) {
		t.Errorf("expected no edit session, got %v", err)
	}
}

func TestLinkUnlink_RequiresOwner(t *testing.T) {
	tests := []struct {
		name  string
		admin bool
		want  error
	}{
		{"stranger", false, domain.ErrPermissionDenied},
		{"admin mode", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Settings{})
			owner, actor := uuid.New(), uuid.New()
			shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(0))
			h.svc.Sessions().SetAdminMode(actor, tt.admin)
			ctx := context.Background()
			chest := domain.Location{X: 1, Y: 63, Z: 1, World: "world"}
			other := domain.Location{X: 99, Y: 64, Z: 99, World: "world"}

			h.svc.Sessions().BeginFor(owner, shop)
			if err := h.svc.LinkShop(ctx, owner, chest); err != nil {
				t.Fatalf("owner link: %v", err)
			}

			draft := h.svc.Sessions().Begin(actor)
			draft.SetLocation(*shop.Location)
			if err := h.svc.LinkShop(ctx, actor, other); !errors.Is(err, tt.want) {
				t.Fatalf("link: expected %v, got %v", tt.want, err)
			}
			if _, ok := h.svc.Sessions().Get(actor); ok {
				t.Error("expected draft consumed by link")
			}
			relinked, err := h.repo.ShopWithInventoryAt(ctx, other)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if (relinked != nil) != (tt.want == nil) {
				t.Errorf("linked at %s = %v, want linked %v", other, relinked, tt.want == nil)
			}

			if err := h.svc.UnlinkShop(ctx, actor, shop); !errors.Is(err, tt.want) {
				t.Fatalf("unlink: expected %v, got %v", tt.want, err)
			}
			stored, err := h.repo.ShopByID(ctx, shop.ID)
			if err != nil || stored == nil {
				t.Fatalf("load shop: %v", err)
			}
			if stored.HasInventory() != (tt.want != nil) {
				t.Errorf("inventory = %v after unlink by %s", stored.Inventory, tt.name)
			}
			wantLogs := 1
			if tt.want == nil {
				wantLogs = 3
			}
			if n := len(logsOf(t, h, shop, domain.LogActionInventoryLinkChanged)); n != wantLogs {
				t.Errorf("expected %d link logs, got %d", wantLogs, n)
			}
		})
	}
}

func TestSetOwners(t *testing.T) {
	h := newHarness(t, Settings{})
	owner, partner := uuid.New(), uuid.New()
	shop := h.seedShop(t, owner, dec(10), nil, 1, intPtr(5))
	ctx := context.Background()

	invalid := []map[uuid.UUID]int{
		{},
		{owner: 60},
		{owner: 120, partner: -20},
	}
	for _, shares := range invalid {
		if err := h.svc.SetOwners(ctx, owner, shop, shares); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("shares %v: expected invalid argument, got %v", shares, err)
		}
	}
	if err := h.svc.SetOwners(ctx, uuid.New(), shop, map[uuid.UUID]int{partner: 100}); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}

	if err := h.svc.SetOwners(ctx, owner, shop, map[uuid.UUID]int{owner: 40, partner: 60}); err != nil {
		t.Fatalf("set owners: %v", err)
	}
	if shop.TotalShares() != 100 || shop.Owner(partner) == nil || shop.Owner(partner).Share != 60 {
		t.Errorf("unexpected owners %v", shop.Shares())
	}

	if err := h.svc.SetOwners(ctx, owner, shop, map[uuid.UUID]int{partner: 100}); err != nil {
		t.Fatalf("set owners: %v", err)
	}
	if shop.IsOwner(owner) || len(shop.Owners) != 1 {
		t.Errorf("expected only partner left, got %v", shop.Shares())
	}
	if n := len(logsOf(t, h, shop, domain.LogActionOwnersChanged)); n != 2 {
		t.Errorf("expected 2 OWNERS_CHANGED logs, got %d", n)
	}
}

func TestOnce(t *testing.T) {
	h := newHarness(t, Settings{})
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) error { calls++; return nil }

	if err := h.svc.Once(ctx, "req-1", fn); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := h.svc.Once(ctx, "req-1", fn); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected duplicate request, got %v", err)
	}

	failed := errors.New("boom")
	if err := h.svc.Once(ctx, "req-2", func(context.Context) error { return failed }); !errors.Is(err, failed) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := h.svc.Once(ctx, "req-2", fn); err != nil {
		t.Errorf("expected retry after failure to run, got %v", err)
	}

	if err := h.svc.Once(ctx, "", fn); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestAddStock(t *testing.T) {
	if _, ok := addStock(1, int(^uint(0)>>1), 1<<62); ok {
		t.Error("expected overflow rejected")
	}
	if got, ok := addStock(60, 4, 64); !ok || got != 64 {
		t.Errorf("expected 64, got %d %v", got, ok)
	}
	if _, ok := addStock(60, 5, 64); ok {
		t.Error("expected limit rejected")
	}
}

func TestGate_SerializesBuys(t *testing.T) {
	h := newHarness(t, Settings{})
	owner := uuid.New()
	shop := h.seedShop(t, owner, dec(1), nil, 1, intPtr(5))
	gate := NewGate()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		buyer := uuid.New()
		h.ledger.SetBalance(buyer, decimal.NewFromInt(1))
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := gate.Do(context.Background(), func(ctx context.Context) error {
				current, err := h.repo.ShopByID(ctx, shop.ID)
				if err != nil {
					return err
				}
				return h.svc.Buy(ctx, buyer, current)
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 5 {
		t.Errorf("expected 5 successful buys, got %d", successes)
	}
	stored, err := h.repo.ShopByID(context.Background(), shop.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *stored.Stock != 0 {
		t.Errorf("expected stock 0, got %d", *stored.Stock)
	}
}

func TestGate_ContextCancelled(t *testing.T) {
	gate := NewGate()
	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- gate.Do(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gate.Do(ctx, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context canceled, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
