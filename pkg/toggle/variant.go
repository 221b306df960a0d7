package toggle

// DisabledVariantName is reported whenever no variant applies.
const DisabledVariantName = "disabled"

// VariantResult is the outcome of a variant lookup.
type VariantResult struct {
	Name           string   `json:"name"`
	Payload        *Payload `json:"payload,omitempty"`
	Enabled        bool     `json:"enabled"`
	FeatureEnabled bool     `json:"feature_enabled"`
}

// DisabledVariant is returned for disabled toggles and toggles without variants.
func DisabledVariant(featureEnabled bool) VariantResult {
	return VariantResult{Name: DisabledVariantName, FeatureEnabled: featureEnabled}
}
