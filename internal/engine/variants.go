package engine

import (
	"strings"

	"toggle-client/pkg/strategy"
	"toggle-client/pkg/toggle"
)

// selectVariant picks a variant for ctx: an override match first, then a
// weighted pick over the murmur3 bucket of the variant stickiness. The
// bucket is 1-based, so a value equal to a cumulative boundary belongs to
// the lower partition. Returns nil when no variant applies.
func selectVariant(variants []toggle.Variant, group string, ctx *toggle.Context) *toggle.Variant {
	if len(variants) == 0 {
		return nil
	}
	if v := overridden(variants, ctx); v != nil {
		return v
	}

	total := 0
	for i := range variants {
		if variants[i].Weight > 0 {
			total += variants[i].Weight
		}
	}
	if total == 0 {
		return nil
	}

	id := variantStickiness(variants[0].Stickiness, ctx)
	target := int(strategy.Normalize(id, group, uint32(total), strategy.VariantSeed))

	cumulative := 0
	for i := range variants {
		if variants[i].Weight <= 0 {
			continue
		}
		cumulative += variants[i].Weight
		if cumulative >= target {
			return &variants[i]
		}
	}
	return nil
}

func overridden(variants []toggle.Variant, ctx *toggle.Context) *toggle.Variant {
	for i := range variants {
		for _, o := range variants[i].Overrides {
			v, ok := ctx.Field(o.ContextName)
			if ok && contains(o.Values, v) {
				return &variants[i]
			}
		}
	}
	return nil
}

// variantStickiness resolves the hash input. The default chain is userId,
// sessionId, remoteAddress, then a random value.
func variantStickiness(stickiness string, ctx *toggle.Context) string {
	s := strings.ToLower(strings.TrimSpace(stickiness))
	if s == "" || s == strategy.StickinessDefault {
		for _, v := range []string{ctx.UserID, ctx.SessionID, ctx.RemoteAddress} {
			if v != "" {
				return v
			}
		}
		return strategy.RandomID()
	}
	if v, ok := strategy.StickinessValue(stickiness, ctx); ok {
		return v
	}
	return strategy.RandomID()
}
