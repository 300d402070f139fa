// Package storage persists shops over database/sql and keeps the location
// cache coherent with every committed write.
package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/adapter/cache"
	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

type Option func(*Repository)

func WithCache(c port.LocationCache) Option {
	return func(r *Repository) { r.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

type Repository struct {
	db      *sql.DB
	dialect Dialect
	cache   port.LocationCache
	now     func() time.Time
	logger  *zap.Logger
}

// New wraps an open database and creates missing tables.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Repository, error) {
	r := &Repository{
		db:      db,
		dialect: dialect,
		cache:   cache.NewLocationCache(),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := dialect.applySchema(ctx, db); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) Cache() port.LocationCache {
	return r.cache
}

const insertShopColumns = `x, y, z, world, inventory_x, inventory_y, inventory_z, inventory_world,
	item, buy_price, sell_price, quantity, stock, note, name, display_entity_id, state`

func (r *Repository) CreateOrUpdate(ctx context.Context, shop *domain.Shop) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		return r.save(ctx, shop, true)
	})
}

func (r *Repository) Update(ctx context.Context, shop *domain.Shop) error {
	if shop.ID == 0 {
		return domain.New(domain.CodeInvalidArgument, "update shop without id")
	}
	return r.Transaction(ctx, func(ctx context.Context) error {
		return r.save(ctx, shop, false)
	})
}

func (r *Repository) save(ctx context.Context, shop *domain.Shop, upsert bool) error {
	st := txFrom(ctx)
	st.touch(shop)
	if shop.State == "" {
		shop.State = domain.ShopStateActive
	}

	var prevLoc, prevInv *domain.Location
	switch {
	case shop.ID == 0:
		if err := r.insertShop(ctx, st.tx, shop, false); err != nil {
			return err
		}
		st.markInserted(shop)
	default:
		loc, inv, found, err := r.persistedLocations(ctx, st.tx, shop.ID)
		if err != nil {
			return err
		}
		switch {
		case found:
			prevLoc, prevInv = loc, inv
			if err := r.updateShop(ctx, st.tx, shop); err != nil {
				return err
			}
		case upsert:
			if err := r.insertShop(ctx, st.tx, shop, true); err != nil {
				return err
			}
			st.markInserted(shop)
		default:
			return domain.Wrap(domain.CodeNotFound, "update shop", sql.ErrNoRows)
		}
	}

	if err := r.reload(ctx, st.tx, shop); err != nil {
		return err
	}
	r.cacheShop(st, shop, prevLoc, prevInv)
	return nil
}

func (r *Repository) insertShop(ctx context.Context, q querier, shop *domain.Shop, withID bool) error {
	now := r.now()
	cols := insertShopColumns + ", created_on"
	args := append(shopArgs(shop), toMillis(now))
	if withID {
		cols = "id, " + cols
		args = append([]any{shop.ID}, args...)
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO shops (`+cols+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return r.writeError("insert shop", err, domain.CodeLocationInUse)
	}
	if !withID {
		id, err := res.LastInsertId()
		if err != nil {
			return domain.Storage("insert shop id", err)
		}
		shop.ID = id
	}
	shop.CreatedOn = now
	return nil
}

func (r *Repository) updateShop(ctx context.Context, q querier, shop *domain.Shop) error {
	now := r.now()
	args := append(shopArgs(shop), toMillis(now), shop.ID)
	_, err := q.ExecContext(ctx, `
		UPDATE shops SET
			x = ?, y = ?, z = ?, world = ?,
			inventory_x = ?, inventory_y = ?, inventory_z = ?, inventory_world = ?,
			item = ?, buy_price = ?, sell_price = ?, quantity = ?, stock = ?,
			note = ?, name = ?, display_entity_id = ?, state = ?,
			last_modified_on = ?
		WHERE id = ?`, args...)
	if err != nil {
		return r.writeError("update shop", err, domain.CodeLocationInUse)
	}
	shop.LastModifiedOn = &now
	return nil
}

func (r *Repository) Delete(ctx context.Context, shop *domain.Shop) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		st := txFrom(ctx)
		prevLoc, prevInv, _, err := r.persistedLocations(ctx, st.tx, shop.ID)
		if err != nil {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM shop_logs WHERE shop_id = ?`,
			`DELETE FROM shop_owners WHERE shop_id = ?`,
			`DELETE FROM shops WHERE id = ?`,
		} {
			if _, err := st.tx.ExecContext(ctx, stmt, shop.ID); err != nil {
				return domain.Storage("delete shop", err)
			}
		}
		r.evict(st, prevLoc, prevInv, shop.Location, shop.Inventory)
		return nil
	})
}

func (r *Repository) CreateOrUpdateOwner(ctx context.Context, owner *domain.Owner) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		return r.saveOwner(ctx, owner, true)
	})
}

func (r *Repository) UpdateOwner(ctx context.Context, owner *domain.Owner) error {
	if owner.ID == 0 {
		return domain.New(domain.CodeInvalidArgument, "update owner without id")
	}
	return r.Transaction(ctx, func(ctx context.Context) error {
		return r.saveOwner(ctx, owner, false)
	})
}

func (r *Repository) saveOwner(ctx context.Context, owner *domain.Owner, upsert bool) error {
	if owner.ShopID == 0 {
		return domain.New(domain.CodeInvalidArgument, "owner without shop")
	}
	q := r.conn(ctx)
	now := r.now()

	if owner.ID != 0 {
		res, err := q.ExecContext(ctx,
			`UPDATE shop_owners SET share = ?, last_modified_on = ? WHERE id = ?`,
			owner.Share, toMillis(now), owner.ID)
		if err != nil {
			return domain.Storage("update owner", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			owner.LastModifiedOn = &now
			return nil
		}
		if !upsert {
			return domain.Wrap(domain.CodeNotFound, "update owner", sql.ErrNoRows)
		}
	}

	cols := "shop_id, unique_id, share, created_on"
	args := []any{owner.ShopID, owner.UniqueID.String(), owner.Share, toMillis(now)}
	if owner.ID != 0 {
		cols = "id, " + cols
		args = append([]any{owner.ID}, args...)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO shop_owners (`+cols+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return r.writeError("insert owner", err, domain.CodeInvalidArgument)
	}
	if owner.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return domain.Storage("insert owner id", err)
		}
		owner.ID = id
	}
	owner.CreatedOn = now
	return nil
}

func (r *Repository) DeleteOwner(ctx context.Context, owner *domain.Owner) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		if _, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM shop_owners WHERE id = ?`, owner.ID); err != nil {
			return domain.Storage("delete owner", err)
		}
		return nil
	})
}

func (r *Repository) AddOwner(ctx context.Context, shop *domain.Shop, owner *domain.Owner) error {
	if shop.ID == 0 {
		return domain.New(domain.CodeInvalidArgument, "add owner to unsaved shop")
	}
	return r.Transaction(ctx, func(ctx context.Context) error {
		txFrom(ctx).touch(shop)
		owner.ShopID = shop.ID
		existing := shop.Owner(owner.UniqueID)
		if existing != nil && owner.ID == 0 {
			owner.ID = existing.ID
		}
		if err := r.saveOwner(ctx, owner, true); err != nil {
			return err
		}
		for i, o := range shop.Owners {
			if o.UniqueID == owner.UniqueID {
				shop.Owners[i] = owner
				return nil
			}
		}
		shop.Owners = append(shop.Owners, owner)
		return nil
	})
}

func (r *Repository) AppendLog(ctx context.Context, shop *domain.Shop, log *domain.Log) error {
	if shop.ID == 0 {
		return domain.New(domain.CodeInvalidArgument, "append log to unsaved shop")
	}
	return r.Transaction(ctx, func(ctx context.Context) error {
		txFrom(ctx).touch(shop)
		now := r.now()
		log.ShopID = shop.ID
		res, err := r.conn(ctx).ExecContext(ctx, `
			INSERT INTO shop_logs (shop_id, action, unique_id, serialized, created_on)
			VALUES (?, ?, ?, ?, ?)`,
			shop.ID, string(log.Action), log.UniqueID.String(), log.Serialized, toMillis(now))
		if err != nil {
			return domain.Storage("append log", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return domain.Storage("append log id", err)
		}
		log.ID = id
		log.CreatedOn = now
		shop.Logs = append(shop.Logs, log)
		return nil
	})
}

func (r *Repository) Refresh(ctx context.Context, shop *domain.Shop) error {
	return r.reload(ctx, r.conn(ctx), shop)
}

func (r *Repository) reload(ctx context.Context, q querier, shop *domain.Shop) error {
	persisted, err := r.load(ctx, q, shop.ID)
	if err != nil {
		return err
	}
	if persisted == nil {
		return domain.Wrap(domain.CodeNotFound, "refresh shop", sql.ErrNoRows)
	}
	shop.CopyFrom(persisted)
	return nil
}

func (r *Repository) MarkAsDeleted(ctx context.Context, actor uuid.UUID, shop *domain.Shop) error {
	// captured before clearing: the cache may hold this very instance
	oldLoc, oldInv := copyLocation(shop.Location), copyLocation(shop.Inventory)

	return r.Transaction(ctx, func(ctx context.Context) error {
		shop.State = domain.ShopStateDeleted
		shop.Location = nil
		shop.Inventory = nil
		if err := r.Update(ctx, shop); err != nil {
			return err
		}

		log, err := domain.NewLog(domain.LogActionShopDestroyed, actor, nil)
		if err != nil {
			return err
		}
		if err := r.AppendLog(ctx, shop, log); err != nil {
			return err
		}

		r.evict(txFrom(ctx), oldLoc, oldInv)
		return nil
	})
}

// cacheShop evicts the previously persisted coordinates and stores the shop
// under its current ones once the unit commits.
func (r *Repository) cacheShop(st *txState, shop *domain.Shop, prevLoc, prevInv *domain.Location) {
	loc, inv := copyLocation(shop.Location), copyLocation(shop.Inventory)
	active := shop.IsActive()

	st.onCommit(func() {
		r.deleteCached(prevLoc)
		r.deleteCached(prevInv)
		if !active {
			return
		}
		if loc != nil {
			r.cache.Store(*loc, shop)
		}
		if inv != nil {
			r.cache.Store(*inv, shop)
		}
	})
}

func (r *Repository) evict(st *txState, locs ...*domain.Location) {
	st.onCommit(func() {
		for _, l := range locs {
			r.deleteCached(l)
		}
	})
}

func (r *Repository) deleteCached(l *domain.Location) {
	if l == nil {
		return
	}
	r.cache.Delete(*l)
	r.logger.Debug("evict cached location",
		zap.Int("x", l.X), zap.Int("y", l.Y), zap.Int("z", l.Z), zap.String("world", l.World))
}

// cacheLookup records a lookup result, deferred to commit inside a unit.
func (r *Repository) cacheLookup(ctx context.Context, loc domain.Location, shop *domain.Shop) {
	if st := txFrom(ctx); st != nil {
		st.onCommit(func() { r.cache.Store(loc, shop) })
		return
	}
	r.cache.Store(loc, shop)
}

func (r *Repository) writeError(msg string, err error, uniqueCode domain.Code) error {
	if r.dialect.IsUniqueViolation(err) {
		return domain.Wrap(uniqueCode, msg, err)
	}
	return domain.Storage(msg, err)
}

func shopArgs(s *domain.Shop) []any {
	args := make([]any, 0, 17)
	args = append(args, locationArgs(s.Location)...)
	args = append(args, locationArgs(s.Inventory)...)
	item := []byte(s.Item)
	if item == nil {
		item = []byte{}
	}
	args = append(args,
		item,
		nullDecimal(s.BuyPrice),
		nullDecimal(s.SellPrice),
		s.Quantity,
		nullInt(s.Stock),
		s.Note,
		nullString(s.Name),
		nullUUID(s.DisplayEntityID),
		string(s.State),
	)
	return args
}

func locationArgs(l *domain.Location) []any {
	if l == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{l.X, l.Y, l.Z, l.World}
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullUUID(v *uuid.UUID) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func copyLocation(l *domain.Location) *domain.Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

var _ port.ShopRepository = (*Repository)(nil)
