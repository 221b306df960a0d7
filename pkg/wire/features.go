package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"toggle-client/pkg/toggle"
)

// ErrParse wraps every failure to turn a response body into a snapshot.
var ErrParse = errors.New("invalid toggle definitions")

// Features is the toggle definition document served by the remote service.
type Features struct {
	Version  int       `json:"version"`
	Features []Feature `json:"features"`
	Query    *Query    `json:"query,omitempty"`
}

type Feature struct {
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Type           string     `json:"type,omitempty"`
	Project        string     `json:"project,omitempty"`
	Enabled        bool       `json:"enabled"`
	ImpressionData bool       `json:"impressionData,omitempty"`
	Strategies     []Strategy `json:"strategies"`
	Variants       []Variant  `json:"variants,omitempty"`
}

type Strategy struct {
	Name        string       `json:"name"`
	Parameters  Parameters   `json:"parameters,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Variants    []Variant    `json:"variants,omitempty"`
}

type Constraint struct {
	ContextName     string   `json:"contextName"`
	Operator        string   `json:"operator"`
	Values          []string `json:"values,omitempty"`
	Value           string   `json:"value,omitempty"`
	Inverted        bool     `json:"inverted,omitempty"`
	CaseInsensitive bool     `json:"caseInsensitive,omitempty"`
}

type Variant struct {
	Name       string          `json:"name"`
	Weight     int             `json:"weight"`
	WeightType string          `json:"weightType,omitempty"`
	Stickiness string          `json:"stickiness,omitempty"`
	Payload    *toggle.Payload `json:"payload,omitempty"`
	Overrides  []Override      `json:"overrides,omitempty"`
}

type Override struct {
	ContextName string   `json:"contextName"`
	Values      []string `json:"values"`
}

// Parameters are strategy parameters. The service sends strings, but some
// versions emit bare numbers or booleans; those are kept in string form.
type Parameters map[string]string

func (p *Parameters) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = nil
		return nil
	}
	out := make(Parameters, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		t := strings.TrimSpace(string(v))
		if t == "null" {
			continue
		}
		if _, err := strconv.ParseFloat(t, 64); err == nil || t == "true" || t == "false" {
			out[k] = t
			continue
		}
		return fmt.Errorf("parameter %q: unsupported value %s", k, t)
	}
	*p = out
	return nil
}

// ParseFeatures validates body against the definition schema and decodes it.
func ParseFeatures(body []byte) (*Features, error) {
	if err := validate(body); err != nil {
		return nil, err
	}
	var f Features
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &f, nil
}

// Snapshot converts the document into an immutable snapshot.
func (f *Features) Snapshot(revision string) (*toggle.Snapshot, error) {
	out := make([]toggle.FeatureToggle, 0, len(f.Features))
	for _, ft := range f.Features {
		out = append(out, ft.toggle())
	}
	snap, err := toggle.NewSnapshot(out, revision)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return snap, nil
}

func (ft Feature) toggle() toggle.FeatureToggle {
	t := toggle.FeatureToggle{
		Name:           ft.Name,
		Description:    ft.Description,
		Type:           ft.Type,
		Project:        ft.Project,
		Enabled:        ft.Enabled,
		ImpressionData: ft.ImpressionData,
		Variants:       variants(ft.Variants),
	}
	if len(ft.Strategies) > 0 {
		t.Strategies = make([]toggle.ActivationStrategy, len(ft.Strategies))
		for i, s := range ft.Strategies {
			t.Strategies[i] = toggle.ActivationStrategy{
				Name:        s.Name,
				Parameters:  s.Parameters,
				Constraints: constraints(s.Constraints),
				Variants:    variants(s.Variants),
			}
		}
	}
	return t
}

func constraints(in []Constraint) []toggle.Constraint {
	if len(in) == 0 {
		return nil
	}
	out := make([]toggle.Constraint, len(in))
	for i, c := range in {
		out[i] = toggle.Constraint{
			ContextName:     c.ContextName,
			Operator:        toggle.Operator(c.Operator),
			Values:          c.Values,
			Value:           c.Value,
			Inverted:        c.Inverted,
			CaseInsensitive: c.CaseInsensitive,
		}
	}
	return out
}

func variants(in []Variant) []toggle.Variant {
	if len(in) == 0 {
		return nil
	}
	out := make([]toggle.Variant, len(in))
	for i, v := range in {
		tv := toggle.Variant{
			Name:       v.Name,
			Weight:     v.Weight,
			WeightType: v.WeightType,
			Stickiness: v.Stickiness,
			Payload:    v.Payload,
		}
		for _, o := range v.Overrides {
			tv.Overrides = append(tv.Overrides, toggle.Override{ContextName: o.ContextName, Values: o.Values})
		}
		out[i] = tv
	}
	return out
}
