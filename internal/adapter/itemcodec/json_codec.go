// Package itemcodec serializes item descriptors into the canonical byte form
// stored with each shop.
package itemcodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rl1809/slabby/internal/core/domain"
)

// JSONCodec encodes descriptors as JSON with an upper-cased material and
// sorted meta keys, so equal descriptors always produce equal bytes.
type JSONCodec struct{}

func New() *JSONCodec {
	return &JSONCodec{}
}

func (JSONCodec) Encode(desc domain.ItemDescriptor) (domain.Item, error) {
	material := strings.ToUpper(strings.TrimSpace(desc.Material))
	if material == "" {
		return nil, domain.New(domain.CodeInvalidArgument, "item material is required")
	}
	canonical := domain.ItemDescriptor{Material: material}
	if len(desc.Meta) > 0 {
		canonical.Meta = desc.Meta
	}
	// encoding/json sorts map keys
	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return domain.Item(data), nil
}

func (JSONCodec) Decode(item domain.Item) (domain.ItemDescriptor, error) {
	var desc domain.ItemDescriptor
	if len(item) == 0 {
		return desc, domain.New(domain.CodeInvalidArgument, "empty item")
	}
	if err := json.Unmarshal(item, &desc); err != nil {
		return desc, domain.Wrap(domain.CodeInvalidArgument, "decode item", err)
	}
	return desc, nil
}

// Same compares the canonical forms of both items.
func (c JSONCodec) Same(a, b domain.Item) bool {
	if bytes.Equal(a, b) {
		return true
	}
	da, err := c.Decode(a)
	if err != nil {
		return false
	}
	db, err := c.Decode(b)
	if err != nil {
		return false
	}
	ea, err := c.Encode(da)
	if err != nil {
		return false
	}
	eb, err := c.Encode(db)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
