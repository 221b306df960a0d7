package toggle

import "time"

// Well-known context field names.
const (
	FieldUserID        = "userId"
	FieldSessionID     = "sessionId"
	FieldRemoteAddress = "remoteAddress"
	FieldCurrentTime   = "currentTime"
	FieldEnvironment   = "environment"
	FieldAppName       = "appName"
)

// Context carries the per-call evaluation inputs. It is never stored.
type Context struct {
	UserID        string
	SessionID     string
	RemoteAddress string
	CurrentTime   time.Time
	Environment   string
	AppName       string
	Properties    map[string]string

	featureName string
}

// WithFeatureName returns a copy of c bound to the toggle being evaluated.
func (c Context) WithFeatureName(name string) Context {
	c.featureName = name
	return c
}

// FeatureName is the toggle currently under evaluation, or "" outside of one.
func (c *Context) FeatureName() string {
	if c == nil {
		return ""
	}
	return c.featureName
}

// Field resolves a context field by name. Well-known fields win over
// custom properties. Empty values are reported as missing.
func (c *Context) Field(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	var v string
	switch name {
	case FieldUserID:
		v = c.UserID
	case FieldSessionID:
		v = c.SessionID
	case FieldRemoteAddress:
		v = c.RemoteAddress
	case FieldEnvironment:
		v = c.Environment
	case FieldAppName:
		v = c.AppName
	case FieldCurrentTime:
		return c.Now().UTC().Format(time.RFC3339Nano), true
	default:
		v = c.Properties[name]
	}
	return v, v != ""
}

// Now returns CurrentTime, or the wall clock when unset.
func (c *Context) Now() time.Time {
	if c == nil || c.CurrentTime.IsZero() {
		return time.Now()
	}
	return c.CurrentTime
}
