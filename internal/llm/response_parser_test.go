package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityResponse_CleanJSON(t *testing.T) {
	raw := `{"entities":[{"name":"Marie","type":"person","attributes":{"age":"30"},"confidence":0.95}]}`

	resp, err := ParseEntityResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)

	e := resp.Entities[0]
	assert.Equal(t, "Marie", e.Name)
	assert.Equal(t, "person", e.Type)
	assert.Equal(t, "30", e.Attributes["age"])
	assert.InDelta(t, 0.95, e.Confidence, 1e-9)
}

func TestParseEntityResponse_MarkdownFences(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"entities\":[{\"name\":\"Paris\",\"type\":\"place\",\"confidence\":0.9}]}\n```\nDone!"

	resp, err := ParseEntityResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, "Paris", resp.Entities[0].Name)
}

func TestParseEntityResponse_TrailingProse(t *testing.T) {
	raw := `{"entities":[{"name":"café","type":"concept","confidence":0.8}]} I extracted one entity.`

	resp, err := ParseEntityResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
}

func TestParseEntityResponse_DropsUnnamedAndClamps(t *testing.T) {
	raw := `{"entities":[
		{"name":"","type":"person","confidence":0.9},
		{"name":"  Marie ","type":"","confidence":1.7}
	]}`

	resp, err := ParseEntityResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, "Marie", resp.Entities[0].Name)
	assert.Equal(t, "concept", resp.Entities[0].Type, "missing type defaults to concept")
	assert.InDelta(t, 1.0, resp.Entities[0].Confidence, 1e-9)
}

func TestParseEntityResponse_Garbage(t *testing.T) {
	_, err := ParseEntityResponse("I could not find any entities, sorry!")
	assert.Error(t, err)
}

func TestParseRelationResponse_CleanJSON(t *testing.T) {
	raw := `{"relations":[{"source":"Marie","relation":"habite_à","target":"Paris","confidence":0.9}]}`

	resp, err := ParseRelationResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Relations, 1)
	assert.Equal(t, "habite_à", resp.Relations[0].Relation)
}

func TestParseRelationResponse_DropsIncomplete(t *testing.T) {
	raw := `{"relations":[
		{"source":"Marie","relation":"","target":"Paris","confidence":0.9},
		{"source":"Marie","relation":"aime","target":"","confidence":0.9},
		{"source":"Marie","relation":"aime","target":"café","confidence":-0.5}
	]}`

	resp, err := ParseRelationResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Relations, 1)
	assert.Equal(t, "aime", resp.Relations[0].Relation)
	assert.InDelta(t, 0, resp.Relations[0].Confidence, 1e-9)
}

func TestExtractJSON_NestedObjects(t *testing.T) {
	raw := `noise {"entities":[{"name":"x","attributes":{"a":"b"}}]} noise`
	assert.Equal(t, `{"entities":[{"name":"x","attributes":{"a":"b"}}]}`, extractJSON(raw))
}
