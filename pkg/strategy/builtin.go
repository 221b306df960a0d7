package strategy

import (
	"net/netip"
	"os"
	"strconv"
	"strings"

	"toggle-client/pkg/toggle"
)

// Built-in strategy names.
const (
	Default                 = "default"
	UserWithID              = "userWithId"
	RemoteAddress           = "remoteAddress"
	GradualRolloutUserID    = "gradualRolloutUserId"
	GradualRolloutSessionID = "gradualRolloutSessionId"
	GradualRolloutRandom    = "gradualRolloutRandom"
	FlexibleRollout         = "flexibleRollout"
	ApplicationHostname     = "applicationHostname"
)

// Stickiness values understood by flexibleRollout and variants.
const (
	StickinessDefault = "default"
	StickinessRandom  = "random"
)

var builtins = map[string]Strategy{
	Default:                 Func(func(map[string]string, *toggle.Context) bool { return true }),
	UserWithID:              Func(userWithID),
	RemoteAddress:           Func(remoteAddress),
	GradualRolloutUserID:    gradual(func(c *toggle.Context) string { return c.UserID }),
	GradualRolloutSessionID: gradual(func(c *toggle.Context) string { return c.SessionID }),
	GradualRolloutRandom:    gradual(func(*toggle.Context) string { return RandomID() }),
	FlexibleRollout:         Func(flexibleRollout),
}

// IsBuiltin reports whether name is one of the strategies every registry starts with.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok || name == ApplicationHostname
}

func userWithID(params map[string]string, ctx *toggle.Context) bool {
	if ctx == nil || ctx.UserID == "" {
		return false
	}
	return csvContains(params["userIds"], ctx.UserID, false)
}

func remoteAddress(params map[string]string, ctx *toggle.Context) bool {
	if ctx == nil || ctx.RemoteAddress == "" {
		return false
	}
	raw := strings.TrimSpace(ctx.RemoteAddress)
	addr, addrErr := netip.ParseAddr(raw)
	for _, entry := range splitCSV(params["IPs"]) {
		if entry == raw {
			return true
		}
		if addrErr != nil {
			continue
		}
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil && prefix.Contains(addr.Unmap()) {
				return true
			}
			continue
		}
		if other, err := netip.ParseAddr(entry); err == nil && other.Unmap() == addr.Unmap() {
			return true
		}
	}
	return false
}

// gradual builds a gradualRollout* strategy over one stickiness source.
func gradual(stickiness func(*toggle.Context) string) Strategy {
	return Func(func(params map[string]string, ctx *toggle.Context) bool {
		if ctx == nil {
			ctx = &toggle.Context{}
		}
		id := stickiness(ctx)
		if id == "" {
			return false
		}
		return InRollout(id, groupID(params, ctx), percentage(params["percentage"]))
	})
}

func flexibleRollout(params map[string]string, ctx *toggle.Context) bool {
	if ctx == nil {
		ctx = &toggle.Context{}
	}
	raw, ok := params["rollout"]
	if !ok {
		raw = params["percentage"]
	}
	id, ok := StickinessValue(params["stickiness"], ctx)
	if !ok {
		return false
	}
	return InRollout(id, groupID(params, ctx), percentage(raw))
}

// StickinessValue resolves the hash input for a stickiness setting.
// "default" (or empty) falls back from userId to sessionId to a random value.
func StickinessValue(stickiness string, ctx *toggle.Context) (string, bool) {
	if ctx == nil {
		ctx = &toggle.Context{}
	}
	switch strings.ToLower(strings.TrimSpace(stickiness)) {
	case "", StickinessDefault:
		if ctx.UserID != "" {
			return ctx.UserID, true
		}
		if ctx.SessionID != "" {
			return ctx.SessionID, true
		}
		return RandomID(), true
	case StickinessRandom:
		return RandomID(), true
	case strings.ToLower(toggle.FieldUserID):
		return ctx.UserID, ctx.UserID != ""
	case strings.ToLower(toggle.FieldSessionID):
		return ctx.SessionID, ctx.SessionID != ""
	}
	return ctx.Field(strings.TrimSpace(stickiness))
}

type hostnameStrategy struct{ hostname string }

func newHostnameStrategy(lookup func() string) Strategy {
	return &hostnameStrategy{hostname: strings.ToLower(lookup())}
}

func (s *hostnameStrategy) Evaluate(params map[string]string, _ *toggle.Context) bool {
	return s.hostname != "" && csvContains(params["hostNames"], s.hostname, true)
}

func lookupHostname() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

func groupID(params map[string]string, ctx *toggle.Context) string {
	if g, ok := params["groupId"]; ok && g != "" {
		return g
	}
	return ctx.FeatureName()
}

// percentage parses a 0-100 parameter; anything unparsable is 0.
func percentage(raw string) int {
	p, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func csvContains(raw, want string, fold bool) bool {
	for _, v := range splitCSV(raw) {
		if v == want || (fold && strings.EqualFold(v, want)) {
			return true
		}
	}
	return false
}
