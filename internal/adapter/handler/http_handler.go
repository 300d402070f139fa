package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/core/service"
	"github.com/rl1809/slabby/internal/port"
)

// ActorHeader carries the identity of the acting player.
const ActorHeader = "X-Actor-ID"

type HTTPHandler struct {
	svc    *service.CommerceService
	repo   port.ShopRepository
	codec  port.ItemCodec
	gate   *service.Gate
	logger *zap.Logger
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

type TradeRequest struct {
	RequestID string `json:"request_id"`
}

type AmountRequest struct {
	Amount int `json:"amount"`
}

type TradeResponse struct {
	Success bool     `json:"success"`
	Moved   int      `json:"moved,omitempty"`
	Shop    ShopView `json:"shop"`
}

type OwnersRequest struct {
	Owners map[uuid.UUID]int `json:"owners"`
}

type BeginSessionRequest struct {
	ShopID int64 `json:"shop_id"`
}

// DraftPatch edits a draft. Absent fields are left alone; an empty price or
// name string disables that side or clears the name.
type DraftPatch struct {
	Item               *domain.ItemDescriptor `json:"item"`
	Location           *domain.Location       `json:"location"`
	BuyPrice           *string                `json:"buy_price"`
	SellPrice          *string                `json:"sell_price"`
	Quantity           *int                   `json:"quantity"`
	Note               *string                `json:"note"`
	Name               *string                `json:"name"`
	AwaitInventoryLink bool                   `json:"await_inventory_link"`
}

type AdminModeResponse struct {
	Enabled bool `json:"enabled"`
}

func NewHTTPHandler(svc *service.CommerceService, repo port.ShopRepository, codec port.ItemCodec, gate *service.Gate, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = service.NewGate()
	}
	return &HTTPHandler{svc: svc, repo: repo, codec: codec, gate: gate, logger: logger}
}

// Router mounts the API under /api/v1.
func (h *HTTPHandler) Router(origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", ActorHeader},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)

		r.Route("/shops", func(r chi.Router) {
			r.Get("/", h.ListShops)
			r.Get("/at", h.ShopAt)
			r.Get("/inventory-at", h.ShopWithInventoryAt)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetShop)
				r.Delete("/", h.RemoveShop)
				r.Get("/logs", h.ShopLogs)
				r.Post("/buy", h.Buy)
				r.Post("/sell", h.Sell)
				r.Post("/deposit", h.Deposit)
				r.Post("/withdraw", h.Withdraw)
				r.Post("/restock", h.Restock)
				r.Put("/owners", h.SetOwners)
				r.Delete("/inventory", h.UnlinkShop)
			})
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/", h.BeginSession)
			r.Patch("/", h.PatchSession)
			r.Delete("/", h.CancelSession)
			r.Post("/commit", h.CommitSession)
			r.Post("/link", h.LinkInventory)
		})

		r.Post("/admin-mode", h.ToggleAdminMode)
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) GetShop(w http.ResponseWriter, r *http.Request) {
	shop, err := h.shopFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewShopView(h.codec, shop))
}

func (h *HTTPHandler) ShopLogs(w http.ResponseWriter, r *http.Request) {
	shop, err := h.shopFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewLogViews(shop.Logs))
}

func (h *HTTPHandler) ShopAt(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, h.repo.ShopAt)
}

func (h *HTTPHandler) ShopWithInventoryAt(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, h.repo.ShopWithInventoryAt)
}

func (h *HTTPHandler) lookup(w http.ResponseWriter, r *http.Request, find func(context.Context, domain.Location) (*domain.Shop, error)) {
	loc, err := locationFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	shop, err := find(r.Context(), loc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if shop == nil {
		h.writeError(w, r, domain.New(domain.CodeNotFound, "no shop at "+loc.String()))
		return
	}
	writeJSON(w, http.StatusOK, NewShopView(h.codec, shop))
}

// ListShops filters by owner, item material or area, whichever is given.
func (h *HTTPHandler) ListShops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		shops []*domain.Shop
		err   error
	)
	switch {
	case q.Get("owner") != "":
		owner, perr := uuid.Parse(q.Get("owner"))
		if perr != nil {
			h.writeError(w, r, domain.Wrap(domain.CodeInvalidArgument, "owner", perr))
			return
		}
		state := domain.ShopState(strings.ToUpper(q.Get("state")))
		if state == "" {
			state = domain.ShopStateActive
		}
		if !state.Valid() {
			h.writeError(w, r, domain.New(domain.CodeInvalidArgument, "unknown state "+string(state)))
			return
		}
		shops, err = h.repo.ShopsOf(r.Context(), owner, state)
	case q.Get("item") != "":
		item, eerr := h.codec.Encode(domain.ItemDescriptor{Material: q.Get("item")})
		if eerr != nil {
			h.writeError(w, r, eerr)
			return
		}
		shops, err = h.repo.ShopsByItem(r.Context(), item)
	case q.Get("world") != "":
		area, aerr := areaFromQuery(r)
		if aerr != nil {
			h.writeError(w, r, aerr)
			return
		}
		shops, err = h.repo.ShopsInArea(r.Context(), area)
	default:
		h.writeError(w, r, domain.New(domain.CodeInvalidArgument, "one of owner, item or world is required"))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewShopViews(h.codec, shops))
}

func (h *HTTPHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.svc.Buy)
}

func (h *HTTPHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.svc.Sell)
}

func (h *HTTPHandler) trade(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, *domain.Shop) error) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req TradeRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var shop *domain.Shop
	err = h.svc.Once(r.Context(), req.RequestID, func(ctx context.Context) error {
		return h.gate.Do(ctx, func(ctx context.Context) error {
			var err error
			if shop, err = h.loadShop(ctx, r); err != nil {
				return err
			}
			return op(ctx, actor, shop)
		})
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TradeResponse{Success: true, Shop: NewShopView(h.codec, shop)})
}

func (h *HTTPHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveStock(w, r, h.svc.Deposit)
}

func (h *HTTPHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveStock(w, r, func(ctx context.Context, actor uuid.UUID, shop *domain.Shop, amount int) (int, error) {
		return amount, h.svc.Withdraw(ctx, actor, shop, amount)
	})
}

func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	h.moveStock(w, r, func(ctx context.Context, actor uuid.UUID, shop *domain.Shop, _ int) (int, error) {
		return h.svc.Restock(ctx, actor, shop)
	})
}

func (h *HTTPHandler) moveStock(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, *domain.Shop, int) (int, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req AmountRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		shop  *domain.Shop
		moved int
	)
	err = h.gate.Do(r.Context(), func(ctx context.Context) error {
		var err error
		if shop, err = h.loadShop(ctx, r); err != nil {
			return err
		}
		moved, err = op(ctx, actor, shop, req.Amount)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TradeResponse{Success: true, Moved: moved, Shop: NewShopView(h.codec, shop)})
}

func (h *HTTPHandler) RemoveShop(w http.ResponseWriter, r *http.Request) {
	h.mutateShop(w, r, func(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error {
		return h.svc.RemoveShop(ctx, actor, shop)
	})
}

func (h *HTTPHandler) UnlinkShop(w http.ResponseWriter, r *http.Request) {
	h.mutateShop(w, r, h.svc.UnlinkShop)
}

func (h *HTTPHandler) SetOwners(w http.ResponseWriter, r *http.Request) {
	var req OwnersRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutateShop(w, r, func(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error {
		return h.svc.SetOwners(ctx, actor, shop, req.Owners)
	})
}

func (h *HTTPHandler) mutateShop(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, *domain.Shop) error) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var shop *domain.Shop
	err = h.gate.Do(r.Context(), func(ctx context.Context) error {
		var err error
		if shop, err = h.loadShop(ctx, r); err != nil {
			return err
		}
		return op(ctx, actor, shop)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewShopView(h.codec, shop))
}

func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var view DraftView
	if !h.svc.Sessions().WithDraft(actor, func(d *service.Draft) { view = h.draftView(d) }) {
		h.writeError(w, r, domain.ErrNoEditSession)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// BeginSession starts a draft for a new shop, or for shop_id when given.
func (h *HTTPHandler) BeginSession(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req BeginSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var draft *service.Draft
	if req.ShopID == 0 {
		draft = h.svc.Sessions().Begin(actor)
	} else {
		shop, err := h.repo.ShopByID(r.Context(), req.ShopID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if shop == nil || !shop.IsActive() {
			h.writeError(w, r, domain.New(domain.CodeNotFound, "shop not found"))
			return
		}
		if !h.svc.CanManage(actor, shop) {
			h.writeError(w, r, domain.ErrPermissionDenied)
			return
		}
		draft = h.svc.Sessions().BeginFor(actor, shop)
	}
	writeJSON(w, http.StatusCreated, h.draftView(draft))
}

func (h *HTTPHandler) PatchSession(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var patch DraftPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		view     DraftView
		applyErr error
	)
	h.svc.Sessions().WithDraftOrElse(actor, func(d *service.Draft) {
		if applyErr = h.applyPatch(d, patch); applyErr == nil {
			view = h.draftView(d)
		}
	}, func() {
		applyErr = domain.ErrNoEditSession
	})
	if applyErr != nil {
		h.writeError(w, r, applyErr)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) applyPatch(d *service.Draft, p DraftPatch) error {
	if p.Item != nil {
		if !d.IsNew() {
			return domain.New(domain.CodeUnsupportedOperation, "the item of an existing shop cannot change")
		}
		item, err := h.codec.Encode(*p.Item)
		if err != nil {
			return err
		}
		d.SetItem(item)
	}
	if p.Location != nil {
		d.SetLocation(*p.Location)
	}
	if p.BuyPrice != nil {
		price, err := parsePrice(*p.BuyPrice)
		if err != nil {
			return err
		}
		if err := d.SetBuyPrice(price); err != nil {
			return err
		}
	}
	if p.SellPrice != nil {
		price, err := parsePrice(*p.SellPrice)
		if err != nil {
			return err
		}
		if err := d.SetSellPrice(price); err != nil {
			return err
		}
	}
	if p.Quantity != nil {
		if err := d.SetQuantity(*p.Quantity); err != nil {
			return err
		}
	}
	if p.Note != nil {
		d.SetNote(*p.Note)
	}
	if p.Name != nil {
		if *p.Name == "" {
			d.SetName(nil)
		} else {
			d.SetName(p.Name)
		}
	}
	if p.AwaitInventoryLink {
		d.AwaitInventoryLink()
	}
	return nil
}

func (h *HTTPHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.svc.Sessions().Clear(actor)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CommitSession(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var shop *domain.Shop
	err = h.gate.Do(r.Context(), func(ctx context.Context) error {
		var err error
		shop, err = h.svc.CommitDraft(ctx, actor)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewShopView(h.codec, shop))
}

func (h *HTTPHandler) LinkInventory(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var loc domain.Location
	if err := decodeJSON(r, &loc); err != nil {
		h.writeError(w, r, err)
		return
	}
	if loc.World == "" {
		h.writeError(w, r, domain.New(domain.CodeInvalidArgument, "world is required"))
		return
	}

	err = h.gate.Do(r.Context(), func(ctx context.Context) error {
		return h.svc.LinkShop(ctx, actor, loc)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	shop, err := h.repo.ShopWithInventoryAt(r.Context(), loc)
	if err != nil || shop == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	writeJSON(w, http.StatusOK, NewShopView(h.codec, shop))
}

func (h *HTTPHandler) ToggleAdminMode(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	enabled, err := h.svc.ToggleAdminMode(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminModeResponse{Enabled: enabled})
}

func (h *HTTPHandler) draftView(d *service.Draft) DraftView {
	v := DraftView{
		ShopID:    d.ID,
		Step:      d.Step.String(),
		Location:  d.Location,
		BuyPrice:  d.BuyPrice,
		SellPrice: d.SellPrice,
		Quantity:  d.Quantity,
		Note:      d.Note,
		Name:      d.Name,
	}
	if len(d.Item) > 0 {
		if desc, err := h.codec.Decode(d.Item); err == nil {
			v.Item = &desc
		}
	}
	for _, c := range d.Changes() {
		v.Changes = append(v.Changes, c.Action)
	}
	return v
}

func (h *HTTPHandler) shopFromPath(r *http.Request) (*domain.Shop, error) {
	return h.loadShop(r.Context(), r)
}

func (h *HTTPHandler) loadShop(ctx context.Context, r *http.Request) (*domain.Shop, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, domain.New(domain.CodeInvalidArgument, "invalid shop id")
	}
	shop, err := h.repo.ShopByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, domain.New(domain.CodeNotFound, "shop not found")
	}
	return shop, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.Category(err)
	status := HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Success: false, Code: code, Message: publicMessage(err)})
}

func actorFrom(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(ActorHeader)
	if raw == "" {
		return uuid.Nil, domain.New(domain.CodeInvalidArgument, ActorHeader+" header is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Wrap(domain.CodeInvalidArgument, "invalid "+ActorHeader, err)
	}
	return id, nil
}

func locationFromQuery(r *http.Request) (domain.Location, error) {
	q := r.URL.Query()
	var loc domain.Location
	loc.World = q.Get("world")
	if loc.World == "" {
		return loc, domain.New(domain.CodeInvalidArgument, "world is required")
	}
	var err error
	for key, dst := range map[string]*int{"x": &loc.X, "y": &loc.Y, "z": &loc.Z} {
		if *dst, err = strconv.Atoi(q.Get(key)); err != nil {
			return loc, domain.Wrap(domain.CodeInvalidArgument, "invalid "+key, err)
		}
	}
	return loc, nil
}

func areaFromQuery(r *http.Request) (domain.Area, error) {
	q := r.URL.Query()
	area := domain.Area{World: q.Get("world")}
	var err error
	for key, dst := range map[string]*int{"min_x": &area.MinX, "min_z": &area.MinZ, "max_x": &area.MaxX, "max_z": &area.MaxZ} {
		if *dst, err = strconv.Atoi(q.Get(key)); err != nil {
			return area, domain.Wrap(domain.CodeInvalidArgument, "invalid "+key, err)
		}
	}
	return area, nil
}

func parsePrice(raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidArgument, "invalid price", err)
	}
	return &v, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Wrap(domain.CodeInvalidArgument, "invalid request body", err)
	}
	return nil
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.Wrap(domain.CodeInvalidArgument, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
