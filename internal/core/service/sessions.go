package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/slabby/internal/core/domain"
)

type Step int

const (
	StepEditing Step = iota
	StepAwaitingInventoryLink
)

func (s Step) String() string {
	switch s {
	case StepEditing:
		return "editing"
	case StepAwaitingInventoryLink:
		return "awaiting_inventory_link"
	default:
		return "unknown"
	}
}

// DraftDefaults seed drafts for new shops.
type DraftDefaults struct {
	BuyPrice  *decimal.Decimal
	SellPrice *decimal.Decimal
	Quantity  int
	Note      string
}

// Change is one recorded field edit, appended as a log when the draft is
// committed against an existing shop.
type Change struct {
	Action  domain.LogAction
	Payload any
}

const (
	fieldLocation = iota
	fieldBuyPrice
	fieldSellPrice
	fieldQuantity
	fieldNote
	fieldName
	fieldCount
)

// Draft is an unpersisted shop creation or edit. It is not safe for
// concurrent use.
type Draft struct {
	ID        int64
	Location  *domain.Location
	Item      domain.Item
	BuyPrice  *decimal.Decimal
	SellPrice *decimal.Decimal
	Quantity  int
	Note      string
	Name      *string
	Step      Step

	origin  *domain.Shop
	changes [fieldCount]*Change
}

func newDraft(defaults DraftDefaults) *Draft {
	quantity := defaults.Quantity
	if quantity < 1 {
		quantity = 1
	}
	return &Draft{
		BuyPrice:  copyDecimal(defaults.BuyPrice),
		SellPrice: copyDecimal(defaults.SellPrice),
		Quantity:  quantity,
		Note:      defaults.Note,
	}
}

func draftFor(shop *domain.Shop) *Draft {
	origin := shop.Clone()
	d := &Draft{
		ID:        origin.ID,
		Location:  copyLocation(origin.Location),
		Item:      origin.Item,
		BuyPrice:  copyDecimal(origin.BuyPrice),
		SellPrice: copyDecimal(origin.SellPrice),
		Quantity:  origin.Quantity,
		Note:      origin.Note,
		origin:    origin,
	}
	if origin.Name != nil {
		name := *origin.Name
		d.Name = &name
	}
	return d
}

// IsNew reports whether committing the draft creates a shop.
func (d *Draft) IsNew() bool {
	return d.origin == nil
}

func (d *Draft) SetItem(item domain.Item) {
	d.Item = append(domain.Item(nil), item...)
}

func (d *Draft) SetLocation(l domain.Location) {
	d.Location = &l
	if d.origin == nil {
		return
	}
	d.record(fieldLocation, domain.LogActionLocationChanged, sameLocation(d.origin.Location, d.Location),
		domain.NewLocationChanged(d.Location))
}

func (d *Draft) SetBuyPrice(price *decimal.Decimal) error {
	if err := validatePrice(price); err != nil {
		return err
	}
	d.BuyPrice = copyDecimal(price)
	if d.origin != nil {
		d.record(fieldBuyPrice, domain.LogActionPriceChanged, sameDecimal(d.origin.BuyPrice, price),
			domain.PriceChanged{Side: domain.PriceSideBuy, From: copyDecimal(d.origin.BuyPrice), To: copyDecimal(price)})
	}
	return nil
}

func (d *Draft) SetSellPrice(price *decimal.Decimal) error {
	if err := validatePrice(price); err != nil {
		return err
	}
	d.SellPrice = copyDecimal(price)
	if d.origin != nil {
		d.record(fieldSellPrice, domain.LogActionPriceChanged, sameDecimal(d.origin.SellPrice, price),
			domain.PriceChanged{Side: domain.PriceSideSell, From: copyDecimal(d.origin.SellPrice), To: copyDecimal(price)})
	}
	return nil
}

func (d *Draft) SetQuantity(quantity int) error {
	if quantity < 1 {
		return domain.New(domain.CodeInvalidArgument, "quantity has to be higher than zero")
	}
	d.Quantity = quantity
	if d.origin != nil {
		d.record(fieldQuantity, domain.LogActionQuantityChanged, d.origin.Quantity == quantity,
			domain.ValueChanged[int]{From: d.origin.Quantity, To: quantity})
	}
	return nil
}

func (d *Draft) SetNote(note string) {
	d.Note = note
	if d.origin != nil {
		d.record(fieldNote, domain.LogActionNoteChanged, d.origin.Note == note,
			domain.ValueChanged[string]{From: d.origin.Note, To: note})
	}
}

func (d *Draft) SetName(name *string) {
	if name != nil {
		n := *name
		name = &n
	}
	d.Name = name
	if d.origin != nil {
		d.record(fieldName, domain.LogActionNameChanged, sameString(d.origin.Name, name),
			domain.ValueChanged[*string]{From: d.origin.Name, To: name})
	}
}

// AwaitInventoryLink moves the draft to the step where the next selected
// container becomes the shop's inventory.
func (d *Draft) AwaitInventoryLink() {
	d.Step = StepAwaitingInventoryLink
}

// Changes returns the recorded edits in field order. Setting a field back to
// its original value drops its change.
func (d *Draft) Changes() []Change {
	var out []Change
	for _, c := range d.changes {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func (d *Draft) record(field int, action domain.LogAction, unchanged bool, payload any) {
	if unchanged {
		d.changes[field] = nil
		return
	}
	d.changes[field] = &Change{Action: action, Payload: payload}
}

func validatePrice(price *decimal.Decimal) error {
	if price != nil && !price.IsPositive() {
		return domain.New(domain.CodeInvalidArgument, "price has to be positive")
	}
	return nil
}

// EditSessions holds at most one draft per actor, plus the actors currently
// in admin mode.
type EditSessions struct {
	mu       sync.Mutex
	defaults DraftDefaults
	drafts   map[uuid.UUID]*Draft
	admins   map[uuid.UUID]bool
}

func NewEditSessions(defaults DraftDefaults) *EditSessions {
	return &EditSessions{
		defaults: defaults,
		drafts:   make(map[uuid.UUID]*Draft),
		admins:   make(map[uuid.UUID]bool),
	}
}

// Begin starts a draft for a new shop. Any unfinished draft of the actor is
// discarded.
func (e *EditSessions) Begin(actor uuid.UUID) *Draft {
	d := newDraft(e.defaults)
	e.mu.Lock()
	e.drafts[actor] = d
	e.mu.Unlock()
	return d
}

// BeginFor starts a draft editing shop, replacing any unfinished draft.
func (e *EditSessions) BeginFor(actor uuid.UUID, shop *domain.Shop) *Draft {
	d := draftFor(shop)
	e.mu.Lock()
	e.drafts[actor] = d
	e.mu.Unlock()
	return d
}

func (e *EditSessions) Get(actor uuid.UUID) (*Draft, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.drafts[actor]
	return d, ok
}

// WithDraft runs fn on the actor's draft when one exists. fn runs under the
// registry lock, so it sees the draft exclusively but must not call back into
// the registry.
func (e *EditSessions) WithDraft(actor uuid.UUID, fn func(*Draft)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.drafts[actor]
	if ok {
		fn(d)
	}
	return ok
}

func (e *EditSessions) WithDraftOrElse(actor uuid.UUID, fn func(*Draft), otherwise func()) {
	if !e.WithDraft(actor, fn) {
		otherwise()
	}
}

// Take removes and returns the actor's draft.
func (e *EditSessions) Take(actor uuid.UUID) (*Draft, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.drafts[actor]
	delete(e.drafts, actor)
	return d, ok
}

// PutIfAbsent stores d unless the actor started another draft meanwhile.
func (e *EditSessions) PutIfAbsent(actor uuid.UUID, d *Draft) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.drafts[actor]; ok {
		return false
	}
	e.drafts[actor] = d
	return true
}

func (e *EditSessions) Clear(actor uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.drafts, actor)
}

func (e *EditSessions) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.drafts)
}

func (e *EditSessions) SetAdminMode(actor uuid.UUID, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enabled {
		e.admins[actor] = true
	} else {
		delete(e.admins, actor)
	}
}

// ToggleAdminMode flips admin mode and returns the new value.
func (e *EditSessions) ToggleAdminMode(actor uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.admins[actor] {
		delete(e.admins, actor)
		return false
	}
	e.admins[actor] = true
	return true
}

func (e *EditSessions) IsAdminMode(actor uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admins[actor]
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func copyLocation(l *domain.Location) *domain.Location {
	if l == nil {
		return nil
	}
	v := *l
	return &v
}

func sameLocation(a, b *domain.Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
