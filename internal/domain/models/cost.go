package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Cost is a decimal money amount. It persists as its exact string
// representation so no precision is lost in storage.
type Cost struct {
	decimal.Decimal
}

// NewCost wraps a decimal amount.
func NewCost(d decimal.Decimal) Cost {
	return Cost{Decimal: d}
}

// MarshalBSONValue encodes the amount as a BSON string.
func (c Cost) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(c.String())
}

// UnmarshalBSONValue decodes the amount from a BSON string.
func (c *Cost) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var raw string
	if err := bson.UnmarshalValue(t, data, &raw); err != nil {
		return fmt.Errorf("decode cost: %w", err)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse cost %q: %w", raw, err)
	}

	c.Decimal = d
	return nil
}
