package toggle

// FeatureToggle is a single named switch and its activation rules.
// Values held by a Snapshot must be treated as read-only.
type FeatureToggle struct {
	Name           string
	Description    string
	Type           string
	Project        string
	Enabled        bool // kill-switch; false short-circuits strategy evaluation
	ImpressionData bool
	Strategies     []ActivationStrategy
	Variants       []Variant
}

// ActivationStrategy references a registered strategy by name.
type ActivationStrategy struct {
	Name        string
	Parameters  map[string]string
	Constraints []Constraint
	Variants    []Variant // optional; take precedence over the toggle's variants when this strategy matches
}

// Operator is the comparison a Constraint applies.
type Operator string

const (
	OpIn            Operator = "IN"
	OpNotIn         Operator = "NOT_IN"
	OpStrContains   Operator = "STR_CONTAINS"
	OpStrStartsWith Operator = "STR_STARTS_WITH"
	OpStrEndsWith   Operator = "STR_ENDS_WITH"
	OpNumEq         Operator = "NUM_EQ"
	OpNumGt         Operator = "NUM_GT"
	OpNumGte        Operator = "NUM_GTE"
	OpNumLt         Operator = "NUM_LT"
	OpNumLte        Operator = "NUM_LTE"
	OpDateAfter     Operator = "DATE_AFTER"
	OpDateBefore    Operator = "DATE_BEFORE"
	OpSemverEq      Operator = "SEMVER_EQ"
	OpSemverGt      Operator = "SEMVER_GT"
	OpSemverLt      Operator = "SEMVER_LT"
)

// Known reports whether op is one of the supported operators.
func (op Operator) Known() bool {
	switch op {
	case OpIn, OpNotIn,
		OpStrContains, OpStrStartsWith, OpStrEndsWith,
		OpNumEq, OpNumGt, OpNumGte, OpNumLt, OpNumLte,
		OpDateAfter, OpDateBefore,
		OpSemverEq, OpSemverGt, OpSemverLt:
		return true
	}
	return false
}

// Constraint gates an ActivationStrategy on a context field.
// Set operators and string operators read Values; numeric, date and
// semver operators read Value.
type Constraint struct {
	ContextName     string
	Operator        Operator
	Values          []string
	Value           string
	Inverted        bool
	CaseInsensitive bool
}

// Variant weight types.
const (
	WeightVariable = "variable"
	WeightFix      = "fix"
)

// Variant is a named sub-option of an enabled toggle.
type Variant struct {
	Name       string
	Weight     int
	WeightType string
	Stickiness string
	Payload    *Payload
	Overrides  []Override
}

// Payload is passed through to callers untouched.
type Payload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Override pins a variant for contexts whose ContextName field is in Values.
type Override struct {
	ContextName string
	Values      []string
}
