package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

const shopColumns = `id, x, y, z, world, inventory_x, inventory_y, inventory_z, inventory_world,
	item, buy_price, sell_price, quantity, stock, note, name, display_entity_id, state,
	created_on, last_modified_on`

const (
	whereShopAt = `state = ? AND x = ? AND y = ? AND z = ? AND world = ?`
	whereInvAt  = `state = ? AND inventory_x = ? AND inventory_y = ? AND inventory_z = ? AND inventory_world = ?`
)

// ShopAt, ShopWithInventoryAt and IsShopOrInventory share one cache entry per
// coordinate. A miss resolves both kinds at once, so a tombstone is only
// written when neither a shop nor an inventory sits there.

func (r *Repository) ShopAt(ctx context.Context, loc domain.Location) (*domain.Shop, error) {
	lookup := r.cache.Get(loc)
	switch lookup.Kind {
	case port.LookupTombstone:
		return nil, nil
	case port.LookupHit:
		if lookup.Shop.IsAt(loc) {
			return lookup.Shop, nil
		}
		if lookup.Shop.IsInventoryAt(loc) {
			return r.refetch(ctx, loc, whereShopAt)
		}
		r.cache.Delete(loc)
	}

	at, inv, err := r.locate(ctx, loc)
	if err != nil {
		return nil, err
	}
	r.cacheLookup(ctx, loc, firstOf(at, inv))
	return at, nil
}

func (r *Repository) ShopWithInventoryAt(ctx context.Context, loc domain.Location) (*domain.Shop, error) {
	lookup := r.cache.Get(loc)
	switch lookup.Kind {
	case port.LookupTombstone:
		return nil, nil
	case port.LookupHit:
		if lookup.Shop.IsInventoryAt(loc) {
			return lookup.Shop, nil
		}
		if lookup.Shop.IsAt(loc) {
			return r.refetch(ctx, loc, whereInvAt)
		}
		r.cache.Delete(loc)
	}

	at, inv, err := r.locate(ctx, loc)
	if err != nil {
		return nil, err
	}
	r.cacheLookup(ctx, loc, firstOf(inv, at))
	return inv, nil
}

func (r *Repository) IsShopOrInventory(ctx context.Context, loc domain.Location) (bool, error) {
	lookup := r.cache.Get(loc)
	switch lookup.Kind {
	case port.LookupTombstone:
		return false, nil
	case port.LookupHit:
		if lookup.Shop.IsAt(loc) || lookup.Shop.IsInventoryAt(loc) {
			return true, nil
		}
		r.cache.Delete(loc)
	}

	at, inv, err := r.locate(ctx, loc)
	if err != nil {
		return false, err
	}
	shop := firstOf(at, inv)
	r.cacheLookup(ctx, loc, shop)
	return shop != nil, nil
}

// refetch runs a lookup the cached entry of the other kind cannot answer and
// caches a found shop in its place.
func (r *Repository) refetch(ctx context.Context, loc domain.Location, where string) (*domain.Shop, error) {
	shop, err := r.firstShop(ctx, where, locArgs(loc)...)
	if err != nil || shop == nil {
		return nil, err
	}
	r.cacheLookup(ctx, loc, shop)
	return shop, nil
}

// locate returns the active shop placed at loc and the active shop whose
// inventory is at loc, either possibly nil.
func (r *Repository) locate(ctx context.Context, loc domain.Location) (at, inv *domain.Shop, err error) {
	args := append(locArgs(loc), loc.X, loc.Y, loc.Z, loc.World)
	shops, err := r.queryShops(ctx, `SELECT `+shopColumns+` FROM shops WHERE state = ? AND (
		(x = ? AND y = ? AND z = ? AND world = ?) OR
		(inventory_x = ? AND inventory_y = ? AND inventory_z = ? AND inventory_world = ?))
		ORDER BY id`, args...)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range shops {
		if at == nil && s.IsAt(loc) {
			at = s
		}
		if inv == nil && s.IsInventoryAt(loc) {
			inv = s
		}
	}
	return at, inv, nil
}

func firstOf(shops ...*domain.Shop) *domain.Shop {
	for _, s := range shops {
		if s != nil {
			return s
		}
	}
	return nil
}

func (r *Repository) ShopByID(ctx context.Context, id int64) (*domain.Shop, error) {
	return r.load(ctx, r.conn(ctx), id)
}

func (r *Repository) ShopsOf(ctx context.Context, owner uuid.UUID, state domain.ShopState) ([]*domain.Shop, error) {
	return r.queryShops(ctx, `
		SELECT `+prefixed("s.", shopColumns)+`
		FROM shops s
		JOIN shop_owners o ON o.shop_id = s.id
		WHERE o.unique_id = ? AND s.state = ?
		ORDER BY s.id`, owner.String(), string(state))
}

func (r *Repository) ShopsByItem(ctx context.Context, item domain.Item) ([]*domain.Shop, error) {
	return r.queryShops(ctx, `
		SELECT `+shopColumns+`
		FROM shops
		WHERE state = ? AND item = ?
		ORDER BY id`, string(domain.ShopStateActive), []byte(item))
}

func (r *Repository) ShopsInArea(ctx context.Context, area domain.Area) ([]*domain.Shop, error) {
	a := area.Normalize()
	return r.queryShops(ctx, `
		SELECT `+shopColumns+`
		FROM shops
		WHERE state = ? AND world = ? AND x BETWEEN ? AND ? AND z BETWEEN ? AND ?
		ORDER BY id`, string(domain.ShopStateActive), a.World, a.MinX, a.MaxX, a.MinZ, a.MaxZ)
}

func (r *Repository) firstShop(ctx context.Context, where string, args ...any) (*domain.Shop, error) {
	shops, err := r.queryShops(ctx, `SELECT `+shopColumns+` FROM shops WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	if err != nil || len(shops) == 0 {
		return nil, err
	}
	return shops[0], nil
}

// load returns the shop with id in any state, nil when absent.
func (r *Repository) load(ctx context.Context, q querier, id int64) (*domain.Shop, error) {
	shop, err := scanShop(q.QueryRowContext(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage("query shop", err)
	}
	if err := r.hydrate(ctx, q, []*domain.Shop{shop}); err != nil {
		return nil, err
	}
	return shop, nil
}

func (r *Repository) queryShops(ctx context.Context, query string, args ...any) ([]*domain.Shop, error) {
	q := r.conn(ctx)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Storage("query shops", err)
	}

	var shops []*domain.Shop
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			_ = rows.Close()
			return nil, domain.Storage("scan shop", err)
		}
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, domain.Storage("query shops", err)
	}
	_ = rows.Close()

	if err := r.hydrate(ctx, q, shops); err != nil {
		return nil, err
	}
	return shops, nil
}

// hydrate loads owners and logs of shops in two batched queries.
func (r *Repository) hydrate(ctx context.Context, q querier, shops []*domain.Shop) error {
	if len(shops) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Shop, len(shops))
	ids := make([]any, 0, len(shops))
	for _, s := range shops {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}
	in := placeholders(len(ids))

	rows, err := q.QueryContext(ctx, `
		SELECT id, shop_id, unique_id, share, created_on, last_modified_on
		FROM shop_owners WHERE shop_id IN (`+in+`) ORDER BY id`, ids...)
	if err != nil {
		return domain.Storage("query owners", err)
	}
	for rows.Next() {
		var (
			o        domain.Owner
			created  int64
			modified sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.ShopID, &o.UniqueID, &o.Share, &created, &modified); err != nil {
			_ = rows.Close()
			return domain.Storage("scan owner", err)
		}
		o.CreatedOn = fromMillis(created)
		o.LastModifiedOn = millisPtr(modified)
		if s := byID[o.ShopID]; s != nil {
			s.Owners = append(s.Owners, &o)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return domain.Storage("query owners", err)
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT id, shop_id, action, unique_id, serialized, created_on, last_modified_on
		FROM shop_logs WHERE shop_id IN (`+in+`) ORDER BY created_on, id`, ids...)
	if err != nil {
		return domain.Storage("query logs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l        domain.Log
			action   string
			created  int64
			modified sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.ShopID, &action, &l.UniqueID, &l.Serialized, &created, &modified); err != nil {
			return domain.Storage("scan log", err)
		}
		l.Action = domain.LogAction(action)
		l.CreatedOn = fromMillis(created)
		l.LastModifiedOn = millisPtr(modified)
		if s := byID[l.ShopID]; s != nil {
			s.Logs = append(s.Logs, &l)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Storage("query logs", err)
	}
	return nil
}

func (r *Repository) persistedLocations(ctx context.Context, q querier, id int64) (loc, inv *domain.Location, found bool, err error) {
	var x, y, z, ix, iy, iz sql.NullInt64
	var world, iworld sql.NullString
	err = q.QueryRowContext(ctx, `
		SELECT x, y, z, world, inventory_x, inventory_y, inventory_z, inventory_world
		FROM shops WHERE id = ?`, id).Scan(&x, &y, &z, &world, &ix, &iy, &iz, &iworld)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, domain.Storage("query shop locations", err)
	}
	return toLocation(x, y, z, world), toLocation(ix, iy, iz, iworld), true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShop(row rowScanner) (*domain.Shop, error) {
	var (
		s                   domain.Shop
		x, y, z, ix, iy, iz sql.NullInt64
		world, iworld       sql.NullString
		buyPrice, sellPrice decimal.NullDecimal
		stock               sql.NullInt64
		name                sql.NullString
		display             uuid.NullUUID
		state               string
		item                []byte
		created             int64
		modified            sql.NullInt64
	)
	err := row.Scan(&s.ID, &x, &y, &z, &world, &ix, &iy, &iz, &iworld,
		&item, &buyPrice, &sellPrice, &s.Quantity, &stock, &s.Note, &name, &display, &state,
		&created, &modified)
	if err != nil {
		return nil, err
	}

	s.Location = toLocation(x, y, z, world)
	s.Inventory = toLocation(ix, iy, iz, iworld)
	s.Item = domain.Item(item)
	if buyPrice.Valid {
		s.BuyPrice = &buyPrice.Decimal
	}
	if sellPrice.Valid {
		s.SellPrice = &sellPrice.Decimal
	}
	if stock.Valid {
		s.SetStock(int(stock.Int64))
	}
	if name.Valid {
		s.Name = &name.String
	}
	if display.Valid {
		s.DisplayEntityID = &display.UUID
	}
	s.State = domain.ShopState(state)
	s.CreatedOn = fromMillis(created)
	s.LastModifiedOn = millisPtr(modified)
	return &s, nil
}

func toLocation(x, y, z sql.NullInt64, world sql.NullString) *domain.Location {
	if !x.Valid || !y.Valid || !z.Valid || !world.Valid {
		return nil
	}
	return &domain.Location{X: int(x.Int64), Y: int(y.Int64), Z: int(z.Int64), World: world.String}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func locArgs(loc domain.Location) []any {
	return []any{string(domain.ShopStateActive), loc.X, loc.Y, loc.Z, loc.World}
}

func prefixed(prefix, columns string) string {
	var b strings.Builder
	for i, col := range strings.Split(columns, ",") {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(prefix)
		b.WriteString(strings.TrimSpace(col))
	}
	return b.String()
}
