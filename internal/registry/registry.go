// Package registry holds the static catalog of standardized parameter names
// and asset-identifier patterns used by the header matcher. The catalog is
// immutable after construction and safe for concurrent readers.
package registry

import (
	"regexp"
	"strings"
)

// AssetPattern recognizes identifiers of one equipment family, e.g. "TG-1",
// "TG_1" or "TG1" for the TG family.
type AssetPattern struct {
	Type    string
	pattern *regexp.Regexp
}

type Registry struct {
	parameters []string
	assets     []AssetPattern
	normalized map[string]string
}

var reNonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// New builds the registry of power-plant operational parameters and asset
// identifier families. Pattern order matters: ExtractAsset returns the first
// registered pattern that matches, not the leftmost match in the header.
func New() *Registry {
	r := &Registry{
		parameters: []string{
			"Power_Output",
			"Temperature",
			"Efficiency",
			"Fuel_Consumption",
			"Emissions_CO2",
			"Emissions_NOx",
			"Emissions_SOx",
			"Steam_Pressure",
			"Steam_Temperature",
			"Boiler_Efficiency",
			"Heat_Rate",
			"Load_Factor",
			"Availability",
			"Forced_Outage_Rate",
			"Planned_Outage_Rate",
			"Auxiliary_Power",
			"Net_Generation",
			"Gross_Generation",
			"Capacity_Factor",
			"Thermal_Efficiency",
		},
	}

	register := func(assetType, expr string) {
		r.assets = append(r.assets, AssetPattern{
			Type:    assetType,
			pattern: regexp.MustCompile(`(?i)` + expr),
		})
	}
	register("AFBC", `AFBC[-_]?\d+`)
	register("TG", `TG[-_]?\d+`)
	register("ESP", `ESP[-_]?\d+`)
	register("APH", `APH[-_]?\d+`)
	register("FD_FAN", `FD[-_]?FAN[-_]?\d+`)
	register("ID_FAN", `ID[-_]?FAN[-_]?\d+`)
	register("PA_FAN", `PA[-_]?FAN[-_]?\d+`)
	register("BOILER", `BOILER[-_]?\d+`)
	register("TURBINE", `TURBINE[-_]?\d+`)
	register("GENERATOR", `GENERATOR[-_]?\d+`)
	register("CONDENSER", `CONDENSER[-_]?\d+`)
	register("ECONOMIZER", `ECONOMIZER[-_]?\d+`)

	r.normalized = make(map[string]string, len(r.parameters))
	for _, p := range r.parameters {
		r.normalized[Normalize(p)] = p
	}

	return r
}

// Normalize lowercases the input and strips every character outside [a-z0-9],
// so case, whitespace and punctuation variants collapse to the same key.
// Idempotent and total.
func Normalize(text string) string {
	return reNonAlnum.ReplaceAllString(strings.ToLower(text), "")
}

// ExactMatch resolves a header to a canonical parameter name via the
// precomputed normalized lookup. O(1) in the registry size.
func (r *Registry) ExactMatch(header string) (string, bool) {
	param, ok := r.normalized[Normalize(header)]
	return param, ok
}

// ExtractAsset searches the header against every asset pattern in
// registration order and returns the first pattern that matches anywhere in
// the string. The tie-break is first-registered-wins rather than
// leftmost-match-wins.
func (r *Registry) ExtractAsset(header string) (assetType, matched string, ok bool) {
	for _, asset := range r.assets {
		if m := asset.pattern.FindString(header); m != "" {
			return asset.Type, m, true
		}
	}
	return "", "", false
}

// Parameters returns the canonical parameter names in registration order.
func (r *Registry) Parameters() []string {
	out := make([]string, len(r.parameters))
	copy(out, r.parameters)
	return out
}

// AssetTypes returns the asset family tags in registration order.
func (r *Registry) AssetTypes() []string {
	out := make([]string, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a.Type)
	}
	return out
}
