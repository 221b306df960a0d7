package client

import (
	"fmt"

	"toggle-client/pkg/toggle"
)

// Feature names a toggle through a caller-defined type, typically a string
// enum, so flag names are checked at compile time.
type Feature interface {
	fmt.Stringer
}

func (c *Client) IsEnabledFor(f Feature, ctx *toggle.Context) bool {
	return c.engine.IsEnabled(f.String(), ctx)
}

func (c *Client) GetVariantFor(f Feature, ctx *toggle.Context) toggle.VariantResult {
	return c.engine.GetVariant(f.String(), ctx)
}
