package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"sheetmap/internal"
	"sheetmap/internal/metrics"
	"sheetmap/internal/registry"
	"sheetmap/internal/util"
)

// BatchMatcher is the tier-3 semantic backend: one batched call for every
// header still unmapped after the deterministic tiers.
type BatchMatcher interface {
	BatchMatch(ctx context.Context, headers, parameters, assets []string) ([]internal.HeaderMapping, error)
}

// Matcher resolves raw column headers to registry parameters and assets
// using three sequential tiers: normalized exact lookup, regex asset
// extraction with parameter inference, and a single batched semantic call.
// Safe for concurrent use; it carries no per-call state.
type Matcher struct {
	registry *registry.Registry
	semantic BatchMatcher
}

func NewMatcher(reg *registry.Registry, semantic BatchMatcher) *Matcher {
	return &Matcher{registry: reg, semantic: semantic}
}

// MatchHeaders maps every header to a HeaderMapping, preserving input order
// and count, and reports how many semantic-backend batch calls were made
// (0 or 1). It never returns an error: every internal failure degrades the
// affected headers to method none, confidence low.
func (m *Matcher) MatchHeaders(ctx context.Context, headers []string) ([]internal.HeaderMapping, int) {
	if len(headers) == 0 {
		return []internal.HeaderMapping{}, 0
	}

	mappings := make([]*internal.HeaderMapping, len(headers))
	unmapped := make([]int, 0, len(headers))

	for idx, header := range headers {
		if mapping, ok := m.tierExact(header); ok {
			mappings[idx] = &mapping
			continue
		}
		unmapped = append(unmapped, idx)
	}

	still := unmapped[:0]
	for _, idx := range unmapped {
		if mapping, ok := m.tierFuzzy(headers[idx]); ok {
			mappings[idx] = &mapping
			continue
		}
		still = append(still, idx)
	}
	unmapped = still

	semanticCalls := 0
	if len(unmapped) > 0 && m.semantic != nil {
		remaining := make([]string, 0, len(unmapped))
		for _, idx := range unmapped {
			remaining = append(remaining, headers[idx])
		}

		semanticCalls = 1
		results, err := m.semantic.BatchMatch(ctx, remaining, m.registry.Parameters(), m.registry.AssetTypes())
		if err != nil {
			slog.Warn("semantic batch match failed, degrading headers", "headers", len(remaining), "error", err)
			results = nil
		}
		// Responses attach by position, padded or truncated to the
		// request size.
		for i, idx := range unmapped {
			if i < len(results) {
				mapping := results[i]
				mappings[idx] = &mapping
				continue
			}
			mappings[idx] = unmappedHeader(headers[idx])
		}
	}

	final := make([]internal.HeaderMapping, len(headers))
	for idx, mapping := range mappings {
		if mapping == nil {
			// Catch-all: no tier may leave a position unresolved.
			mapping = unmappedHeader(headers[idx])
		}
		final[idx] = *mapping
		metrics.HeadersMatched.WithLabelValues(string(mapping.Method)).Inc()
	}
	return final, semanticCalls
}

// tierExact resolves headers that normalize to a known parameter name.
func (m *Matcher) tierExact(header string) (internal.HeaderMapping, bool) {
	param, ok := m.registry.ExactMatch(header)
	if !ok {
		return internal.HeaderMapping{}, false
	}
	return internal.HeaderMapping{
		OriginalHeader:   header,
		MatchedParameter: &param,
		Method:           internal.MethodExact,
		Confidence:       internal.ConfidenceHigh,
		NormalizedHeader: util.StringPtr(registry.Normalize(header)),
	}, true
}

// tierFuzzy extracts an asset identifier and then tries to infer the
// parameter from the text left after removing it. Inference success means
// medium confidence; an asset with no inferable parameter stays low.
func (m *Matcher) tierFuzzy(header string) (internal.HeaderMapping, bool) {
	_, assetID, ok := m.registry.ExtractAsset(header)
	if !ok {
		return internal.HeaderMapping{}, false
	}

	mapping := internal.HeaderMapping{
		OriginalHeader: header,
		MatchedAsset:   &assetID,
		Method:         internal.MethodFuzzy,
		Confidence:     internal.ConfidenceLow,
	}

	remaining := strings.TrimSpace(strings.ReplaceAll(header, assetID, ""))
	if remaining != "" {
		if param, found := m.registry.ExactMatch(remaining); found {
			mapping.MatchedParameter = &param
			mapping.Confidence = internal.ConfidenceMedium
		}
	}
	return mapping, true
}

func unmappedHeader(header string) *internal.HeaderMapping {
	return &internal.HeaderMapping{
		OriginalHeader: header,
		Method:         internal.MethodNone,
		Confidence:     internal.ConfidenceLow,
	}
}
