// Package slabbo imports shops from the shops.yml file of the Slabbo plugin.
package slabbo

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

// disabledPrice marks a trade side Slabbo does not offer.
const disabledPrice = -1

type file struct {
	Shops map[string]rawShop `yaml:"shops"`
}

type rawShop struct {
	BuyPrice            *float64     `yaml:"buyPrice"`
	SellPrice           *float64     `yaml:"sellPrice"`
	Quantity            int          `yaml:"quantity"`
	Location            *rawLocation `yaml:"location"`
	Item                rawItem      `yaml:"item"`
	Admin               bool         `yaml:"admin"`
	Stock               int          `yaml:"stock"`
	OwnerID             string       `yaml:"ownerId"`
	Note                *string      `yaml:"note"`
	LinkedChestLocation string       `yaml:"linkedChestLocation"`
	ShopName            string       `yaml:"shopName"`
}

type rawLocation struct {
	World string  `yaml:"world"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
}

type rawItem struct {
	Type string         `yaml:"type"`
	Meta map[string]any `yaml:"meta"`
}

// Shop is one parsed legacy shop.
type Shop struct {
	Key       string
	Owner     uuid.UUID
	Location  domain.Location
	Inventory *domain.Location
	Item      domain.ItemDescriptor
	BuyPrice  *decimal.Decimal
	SellPrice *decimal.Decimal
	Quantity  int
	Stock     *int
	Note      string
	Name      *string
}

// Parse reads shops.yml, ordered by shop key. defaultNote fills shops
// without a note.
func Parse(r io.Reader, defaultNote string) ([]Shop, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode shops.yml: %w", err)
	}

	keys := make([]string, 0, len(f.Shops))
	for k := range f.Shops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	shops := make([]Shop, 0, len(keys))
	for _, k := range keys {
		s, err := convert(k, f.Shops[k], defaultNote)
		if err != nil {
			return nil, fmt.Errorf("shop %q: %w", k, err)
		}
		shops = append(shops, s)
	}
	return shops, nil
}

func convert(key string, raw rawShop, defaultNote string) (Shop, error) {
	owner, err := uuid.Parse(raw.OwnerID)
	if err != nil {
		return Shop{}, fmt.Errorf("ownerId: %w", err)
	}
	if raw.Location == nil || raw.Location.World == "" {
		return Shop{}, fmt.Errorf("missing location")
	}

	s := Shop{
		Key:   key,
		Owner: owner,
		Location: domain.Location{
			X:     int(math.Floor(raw.Location.X)),
			Y:     int(math.Floor(raw.Location.Y)),
			Z:     int(math.Floor(raw.Location.Z)),
			World: raw.Location.World,
		},
		Item:      descriptor(raw.Item),
		BuyPrice:  price(raw.BuyPrice),
		SellPrice: price(raw.SellPrice),
		Quantity:  max(raw.Quantity, 1),
		Note:      defaultNote,
	}
	if !raw.Admin {
		stock := raw.Stock
		s.Stock = &stock
	}
	if raw.Note != nil {
		s.Note = *raw.Note
	}
	if raw.ShopName != "" {
		name := raw.ShopName
		s.Name = &name
	}
	if raw.LinkedChestLocation != "" {
		inv, err := parseChest(raw.LinkedChestLocation)
		if err != nil {
			return Shop{}, err
		}
		s.Inventory = &inv
	}
	return s, nil
}

func price(v *float64) *decimal.Decimal {
	if v == nil || *v == disabledPrice {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

// descriptor flattens the item meta to strings.
func descriptor(item rawItem) domain.ItemDescriptor {
	desc := domain.ItemDescriptor{Material: item.Type}
	for k, v := range item.Meta {
		if k == "==" {
			continue
		}
		if desc.Meta == nil {
			desc.Meta = make(map[string]string)
		}
		desc.Meta[k] = fmt.Sprint(v)
	}
	return desc
}

// parseChest reads "world,x,y,z".
func parseChest(s string) (domain.Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Location{}, fmt.Errorf("linkedChestLocation %q: want world,x,y,z", s)
	}
	var coords [3]int
	for i, p := range parts[1:] {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return domain.Location{}, fmt.Errorf("linkedChestLocation %q: %w", s, err)
		}
		coords[i] = n
	}
	return domain.Location{X: coords[0], Y: coords[1], Z: coords[2], World: parts[0]}, nil
}

// MarkerRespawner places the marker of an imported shop and stores its handle.
type MarkerRespawner interface {
	RemoveAndRespawnMarker(ctx context.Context, old *domain.Location, shop *domain.Shop) error
}

type Failure struct {
	Key string
	Err error
}

type Result struct {
	Imported []*domain.Shop
	Failed   []Failure
}

type Importer struct {
	repo        port.ShopRepository
	codec       port.ItemCodec
	markers     MarkerRespawner
	logger      *zap.Logger
	defaultNote string
}

func NewImporter(repo port.ShopRepository, codec port.ItemCodec, markers MarkerRespawner, logger *zap.Logger, defaultNote string) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{repo: repo, codec: codec, markers: markers, logger: logger, defaultNote: defaultNote}
}

func (i *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return i.Import(ctx, f)
}

// Import stores every parsed shop in its own transaction. A failing shop is
// logged and recorded; the rest continue.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	shops, err := Parse(r, i.defaultNote)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, s := range shops {
		shop, err := i.importShop(ctx, s)
		if err != nil {
			i.logger.Error("import slabbo shop", zap.String("key", s.Key), zap.Stringer("location", s.Location), zap.Error(err))
			res.Failed = append(res.Failed, Failure{Key: s.Key, Err: err})
			continue
		}
		res.Imported = append(res.Imported, shop)
	}
	i.logger.Info("slabbo import finished", zap.Int("imported", len(res.Imported)), zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (i *Importer) importShop(ctx context.Context, s Shop) (*domain.Shop, error) {
	item, err := i.codec.Encode(s.Item)
	if err != nil {
		return nil, err
	}
	loc := s.Location
	shop := &domain.Shop{
		Location:  &loc,
		Inventory: s.Inventory,
		Item:      item,
		BuyPrice:  s.BuyPrice,
		SellPrice: s.SellPrice,
		Quantity:  s.Quantity,
		Stock:     s.Stock,
		Note:      s.Note,
		Name:      s.Name,
		State:     domain.ShopStateActive,
	}

	err = i.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := i.repo.CreateOrUpdate(ctx, shop); err != nil {
			return err
		}
		if err := i.repo.AddOwner(ctx, shop, domain.NewOwner(s.Owner, 100)); err != nil {
			return err
		}
		if i.markers != nil {
			return i.markers.RemoveAndRespawnMarker(ctx, nil, shop)
		}
		return i.repo.Update(ctx, shop)
	})
	if err != nil {
		return nil, err
	}
	return shop, nil
}
