package wire

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SDKVersion identifies this client to the service.
const SDKVersion = "toggle-client-go:1.0.0"

// Registration announces an instance and the strategies it implements.
type Registration struct {
	AppName      string    `json:"appName"`
	InstanceID   string    `json:"instanceId"`
	ConnectionID string    `json:"connectionId"`
	SDKVersion   string    `json:"sdkVersion"`
	Strategies   []string  `json:"strategies"`
	Started      time.Time `json:"started"`
	Interval     int64     `json:"interval"` // metrics interval, milliseconds
}

// Metrics is one reporting window of evaluation counts.
type Metrics struct {
	AppName      string `json:"appName"`
	InstanceID   string `json:"instanceId"`
	ConnectionID string `json:"connectionId"`
	Bucket       Bucket `json:"bucket"`
}

type Bucket struct {
	Start   time.Time              `json:"start"`
	Stop    time.Time              `json:"stop"`
	Toggles map[string]ToggleStats `json:"toggles"`
}

type ToggleStats struct {
	Yes      uint64            `json:"yes"`
	No       uint64            `json:"no"`
	Variants map[string]uint64 `json:"variants,omitempty"`
}

// TagFilter selects features carrying a name:value tag.
type TagFilter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (t TagFilter) String() string { return t.Name + ":" + t.Value }

// Query narrows the fetched definition set.
type Query struct {
	Project    string      `json:"project,omitempty"`
	NamePrefix string      `json:"namePrefix,omitempty"`
	Tags       []TagFilter `json:"tag,omitempty"`
}

// Encode renders q as a query string: project, namePrefix, then indexed tags.
func (q *Query) Encode() string {
	if q == nil {
		return ""
	}
	var parts []string
	if q.Project != "" {
		parts = append(parts, "project="+url.QueryEscape(q.Project))
	}
	if q.NamePrefix != "" {
		parts = append(parts, "namePrefix="+url.QueryEscape(q.NamePrefix))
	}
	for i, t := range q.Tags {
		parts = append(parts, "tag["+strconv.Itoa(i)+"]="+url.QueryEscape(t.String()))
	}
	return strings.Join(parts, "&")
}
