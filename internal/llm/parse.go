package llm

import (
	"encoding/json"
	"log/slog"

	"github.com/avelichko/defect-classifier/internal/common"
)

type splitEnvelope struct {
	Results []SplitResult `json:"results"`
}

type classifyEnvelope struct {
	Results []ClassifyResult `json:"results"`
}

// parseSplitResponse validates and decodes a split response, then forces it
// to exactly expected entries: missing entries become zero-defect results,
// extras are dropped. Both cases are logged, not failed; the caller degrades
// per item.
func parseSplitResponse(logger *slog.Logger, raw string, expected int) ([]SplitResult, error) {
	data := []byte(raw)
	if err := validateJSONAgainstSchema(buildSplitResponseSchema(), data); err != nil {
		return nil, common.ParseError("split response shape", err)
	}

	var env splitEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, common.ParseError("decoding split response", err)
	}

	results := env.Results
	if len(results) != expected {
		logger.Warn("llm.split.count_mismatch", "expected", expected, "got", len(results))
		for len(results) < expected {
			results = append(results, SplitResult{})
		}
		results = results[:expected]
	}

	// Drop blank fragments; the model occasionally emits empty strings.
	for i := range results {
		kept := results[i].Defects[:0]
		for _, d := range results[i].Defects {
			if d.Text != "" {
				kept = append(kept, d)
			}
		}
		results[i].Defects = kept
	}
	return results, nil
}

// parseClassifyResponse mirrors parseSplitResponse; missing entries become
// empty choices, which the caller maps to the UNDETERMINED sentinel.
func parseClassifyResponse(logger *slog.Logger, raw string, expected int) ([]ClassifyResult, error) {
	data := []byte(raw)
	if err := validateJSONAgainstSchema(buildClassifyResponseSchema(), data); err != nil {
		return nil, common.ParseError("classify response shape", err)
	}

	var env classifyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, common.ParseError("decoding classify response", err)
	}

	results := env.Results
	if len(results) != expected {
		logger.Warn("llm.classify.count_mismatch", "expected", expected, "got", len(results))
		for len(results) < expected {
			results = append(results, ClassifyResult{})
		}
		results = results[:expected]
	}
	return results, nil
}
