package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityResponse represents a single entity extracted from an LLM response.
type EntityResponse struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Confidence float64           `json:"confidence"`
}

// EntityExtractionResponse represents the complete entity extraction response.
type EntityExtractionResponse struct {
	Entities []EntityResponse `json:"entities"`
}

// RelationResponse represents a single relation extracted from an LLM response.
type RelationResponse struct {
	Source     string  `json:"source"`
	Relation   string  `json:"relation"`
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
}

// RelationExtractionResponse represents the complete relation extraction response.
type RelationExtractionResponse struct {
	Relations []RelationResponse `json:"relations"`
}

// extractJSON extracts the first JSON object from a string that may contain
// extra text. LLMs add explanations and markdown fences despite instructions;
// this recovers the object instead of failing the whole extraction.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// clampConfidence forces a confidence into [0,1]; out-of-range values from
// the model are saturated rather than rejected.
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ParseEntityResponse parses the entity-extraction response. Entities with
// an empty name are dropped; confidences are clamped to [0,1].
func ParseEntityResponse(raw string) (*EntityExtractionResponse, error) {
	var parsed EntityExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse entity response: %w", err)
	}

	out := make([]EntityResponse, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		if e.Type == "" {
			e.Type = "concept"
		}
		e.Confidence = clampConfidence(e.Confidence)
		out = append(out, e)
	}
	parsed.Entities = out
	return &parsed, nil
}

// ParseRelationResponse parses the relation-extraction response. Relations
// with an empty endpoint or label are dropped; confidences are clamped.
func ParseRelationResponse(raw string) (*RelationExtractionResponse, error) {
	var parsed RelationExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse relation response: %w", err)
	}

	out := make([]RelationResponse, 0, len(parsed.Relations))
	for _, r := range parsed.Relations {
		r.Source = strings.TrimSpace(r.Source)
		r.Target = strings.TrimSpace(r.Target)
		r.Relation = strings.TrimSpace(r.Relation)
		if r.Source == "" || r.Target == "" || r.Relation == "" {
			continue
		}
		r.Confidence = clampConfidence(r.Confidence)
		out = append(out, r)
	}
	parsed.Relations = out
	return &parsed, nil
}
