package pipeline

import (
	"context"
	"errors"
	"testing"

	"sheetmap/internal"
	"sheetmap/internal/registry"
)

func sp(v string) *string { return &v }

type fakeBatchMatcher struct {
	calls   int
	headers []string
	results []internal.HeaderMapping
	err     error
}

func (f *fakeBatchMatcher) BatchMatch(_ context.Context, headers, _, _ []string) ([]internal.HeaderMapping, error) {
	f.calls++
	f.headers = append([]string(nil), headers...)
	return f.results, f.err
}

func TestMatchHeadersTierExact(t *testing.T) {
	m := NewMatcher(registry.New(), nil)

	mappings, calls := m.MatchHeaders(context.Background(), []string{"Power_Output", "POWER OUTPUT", "efficiency"})
	if calls != 0 {
		t.Fatalf("semantic calls=%d", calls)
	}
	if len(mappings) != 3 {
		t.Fatalf("len=%d", len(mappings))
	}
	for i, mapping := range mappings {
		if mapping.Method != internal.MethodExact || mapping.Confidence != internal.ConfidenceHigh {
			t.Fatalf("mapping %d: %+v", i, mapping)
		}
		if mapping.MatchedParameter == nil {
			t.Fatalf("mapping %d has no parameter", i)
		}
		if mapping.NormalizedHeader == nil {
			t.Fatalf("mapping %d has no normalized header", i)
		}
	}
	if *mappings[0].MatchedParameter != "Power_Output" || *mappings[1].MatchedParameter != "Power_Output" {
		t.Fatalf("parameters: %v %v", *mappings[0].MatchedParameter, *mappings[1].MatchedParameter)
	}
	if *mappings[2].MatchedParameter != "Efficiency" {
		t.Fatalf("parameter: %v", *mappings[2].MatchedParameter)
	}
}

func TestMatchHeadersTierFuzzy(t *testing.T) {
	m := NewMatcher(registry.New(), nil)

	cases := []struct {
		name       string
		header     string
		asset      string
		param      *string
		confidence internal.Confidence
	}{
		{"asset with known parameter", "TG-1 Temperature", "TG-1", sp("Temperature"), internal.ConfidenceMedium},
		{"asset with unknown remainder", "ESP-3 Status", "ESP-3", nil, internal.ConfidenceLow},
		{"underscore asset", "BOILER_2 Efficiency", "BOILER_2", sp("Efficiency"), internal.ConfidenceMedium},
	}
	for _, c := range cases {
		mappings, calls := m.MatchHeaders(context.Background(), []string{c.header})
		if calls != 0 {
			t.Fatalf("%s: semantic calls=%d", c.name, calls)
		}
		mapping := mappings[0]
		if mapping.Method != internal.MethodFuzzy {
			t.Fatalf("%s: method=%s", c.name, mapping.Method)
		}
		if mapping.MatchedAsset == nil || *mapping.MatchedAsset != c.asset {
			t.Fatalf("%s: asset=%v", c.name, mapping.MatchedAsset)
		}
		if mapping.Confidence != c.confidence {
			t.Fatalf("%s: confidence=%s", c.name, mapping.Confidence)
		}
		if c.param == nil && mapping.MatchedParameter != nil {
			t.Fatalf("%s: unexpected parameter %v", c.name, *mapping.MatchedParameter)
		}
		if c.param != nil && (mapping.MatchedParameter == nil || *mapping.MatchedParameter != *c.param) {
			t.Fatalf("%s: parameter=%v want %v", c.name, mapping.MatchedParameter, *c.param)
		}
	}
}

func TestMatchHeadersExactBeatsFuzzy(t *testing.T) {
	// A header that is itself a registry parameter resolves exact even if an
	// asset pattern would also fire elsewhere in a messier variant.
	m := NewMatcher(registry.New(), nil)
	mappings, _ := m.MatchHeaders(context.Background(), []string{"Steam_Pressure"})
	if mappings[0].Method != internal.MethodExact {
		t.Fatalf("method=%s", mappings[0].Method)
	}
}

func TestMatchHeadersSingleBatchCall(t *testing.T) {
	fake := &fakeBatchMatcher{results: []internal.HeaderMapping{
		{OriginalHeader: "Plant Load", MatchedParameter: sp("Load_Factor"), Method: internal.MethodSemantic, Confidence: internal.ConfidenceMedium},
		{OriginalHeader: "CO2 kg/h", MatchedParameter: sp("Emissions_CO2"), Method: internal.MethodSemantic, Confidence: internal.ConfidenceHigh},
	}}
	m := NewMatcher(registry.New(), fake)

	headers := []string{"Power_Output", "Plant Load", "TG-1 Temperature", "CO2 kg/h"}
	mappings, calls := m.MatchHeaders(context.Background(), headers)
	if calls != 1 {
		t.Fatalf("semantic calls=%d", calls)
	}
	if fake.calls != 1 {
		t.Fatalf("backend calls=%d", fake.calls)
	}
	// Only the two headers unresolved by the deterministic tiers reach the
	// backend, in input order.
	if len(fake.headers) != 2 || fake.headers[0] != "Plant Load" || fake.headers[1] != "CO2 kg/h" {
		t.Fatalf("backend headers=%v", fake.headers)
	}

	if len(mappings) != 4 {
		t.Fatalf("len=%d", len(mappings))
	}
	if mappings[0].Method != internal.MethodExact {
		t.Fatalf("mapping 0: %+v", mappings[0])
	}
	if mappings[1].Method != internal.MethodSemantic || *mappings[1].MatchedParameter != "Load_Factor" {
		t.Fatalf("mapping 1: %+v", mappings[1])
	}
	if mappings[2].Method != internal.MethodFuzzy {
		t.Fatalf("mapping 2: %+v", mappings[2])
	}
	if mappings[3].Method != internal.MethodSemantic || *mappings[3].MatchedParameter != "Emissions_CO2" {
		t.Fatalf("mapping 3: %+v", mappings[3])
	}
}

func TestMatchHeadersNoSemanticCallWhenAllResolved(t *testing.T) {
	fake := &fakeBatchMatcher{}
	m := NewMatcher(registry.New(), fake)

	_, calls := m.MatchHeaders(context.Background(), []string{"Power_Output", "TG-1 Temperature"})
	if calls != 0 || fake.calls != 0 {
		t.Fatalf("calls=%d backend=%d", calls, fake.calls)
	}
}

func TestMatchHeadersBackendFailureDegrades(t *testing.T) {
	fake := &fakeBatchMatcher{err: errors.New("backend down")}
	m := NewMatcher(registry.New(), fake)

	mappings, calls := m.MatchHeaders(context.Background(), []string{"Mystery Column", "Power_Output"})
	if calls != 1 {
		t.Fatalf("semantic calls=%d", calls)
	}
	if mappings[0].Method != internal.MethodNone || mappings[0].Confidence != internal.ConfidenceLow {
		t.Fatalf("mapping 0: %+v", mappings[0])
	}
	if mappings[0].OriginalHeader != "Mystery Column" {
		t.Fatalf("mapping 0 header=%q", mappings[0].OriginalHeader)
	}
	if mappings[1].Method != internal.MethodExact {
		t.Fatalf("mapping 1: %+v", mappings[1])
	}
}

func TestMatchHeadersShortBatchResponsePads(t *testing.T) {
	fake := &fakeBatchMatcher{results: []internal.HeaderMapping{
		{OriginalHeader: "First", MatchedParameter: sp("Heat_Rate"), Method: internal.MethodSemantic, Confidence: internal.ConfidenceMedium},
	}}
	m := NewMatcher(registry.New(), fake)

	mappings, calls := m.MatchHeaders(context.Background(), []string{"First", "Second", "Third"})
	if calls != 1 {
		t.Fatalf("semantic calls=%d", calls)
	}
	if mappings[0].Method != internal.MethodSemantic {
		t.Fatalf("mapping 0: %+v", mappings[0])
	}
	for i := 1; i < 3; i++ {
		if mappings[i].Method != internal.MethodNone || mappings[i].Confidence != internal.ConfidenceLow {
			t.Fatalf("mapping %d: %+v", i, mappings[i])
		}
	}
}

func TestMatchHeadersNilBackend(t *testing.T) {
	m := NewMatcher(registry.New(), nil)

	mappings, calls := m.MatchHeaders(context.Background(), []string{"Mystery Column"})
	if calls != 0 {
		t.Fatalf("semantic calls=%d", calls)
	}
	if mappings[0].Method != internal.MethodNone || mappings[0].Confidence != internal.ConfidenceLow {
		t.Fatalf("mapping: %+v", mappings[0])
	}
}

func TestMatchHeadersEmptyInput(t *testing.T) {
	m := NewMatcher(registry.New(), &fakeBatchMatcher{})
	mappings, calls := m.MatchHeaders(context.Background(), nil)
	if len(mappings) != 0 || calls != 0 {
		t.Fatalf("mappings=%v calls=%d", mappings, calls)
	}
}

func TestMatchHeadersOrderAndCountPreserved(t *testing.T) {
	fake := &fakeBatchMatcher{results: []internal.HeaderMapping{
		{OriginalHeader: "Unknown A", Method: internal.MethodSemantic, Confidence: internal.ConfidenceLow},
		{OriginalHeader: "Unknown B", Method: internal.MethodSemantic, Confidence: internal.ConfidenceLow},
	}}
	m := NewMatcher(registry.New(), fake)

	headers := []string{"Unknown A", "Power_Output", "Unknown B", "TG-1 Temperature"}
	mappings, _ := m.MatchHeaders(context.Background(), headers)
	if len(mappings) != len(headers) {
		t.Fatalf("len=%d", len(mappings))
	}
	for i, mapping := range mappings {
		if mapping.OriginalHeader != headers[i] {
			t.Fatalf("position %d: %q want %q", i, mapping.OriginalHeader, headers[i])
		}
	}
}
