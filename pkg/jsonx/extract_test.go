package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFencedBlock(t *testing.T) {
	text := "Here are your queries:\n```json\n{\"queries\": [{\"query\": \"a\"}]}\n```\nLet me know!"
	raw, ok := Extract(text, "queries")
	require.True(t, ok)
	assert.JSONEq(t, `{"queries": [{"query": "a"}]}`, raw)
}

func TestExtractBareFence(t *testing.T) {
	text := "```\n{\"learnings\": []}\n```"
	raw, ok := Extract(text, "learnings")
	require.True(t, ok)
	assert.JSONEq(t, `{"learnings": []}`, raw)
}

func TestExtractBalancedObjectWithKey(t *testing.T) {
	// The first balanced object lacks the key; the second has it.
	text := `I considered {"note": "irrelevant"} but the answer is {"queries": [{"query": "b", "researchGoal": "g"}]} done`
	raw, ok := Extract(text, "queries")
	require.True(t, ok)

	var parsed struct {
		Queries []map[string]string `json:"queries"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	require.Len(t, parsed.Queries, 1)
	assert.Equal(t, "b", parsed.Queries[0]["query"])
}

func TestExtractWholeText(t *testing.T) {
	raw, ok := Extract(`  {"learnings": ["x"], "followUpQuestions": []}  `, "learnings")
	require.True(t, ok)
	assert.JSONEq(t, `{"learnings": ["x"], "followUpQuestions": []}`, raw)
}

func TestExtractNestedBracesInsideStrings(t *testing.T) {
	text := `{"queries": [{"query": "find {weird} strings \" ok", "researchGoal": "g"}]}`
	raw, ok := Extract(text, "queries")
	require.True(t, ok)
	assert.Equal(t, text, raw)
}

func TestExtractIdempotentOnValidJSON(t *testing.T) {
	orig := map[string]any{"queries": []any{map[string]any{"query": "q", "researchGoal": "g"}}}
	encoded, err := json.Marshal(orig)
	require.NoError(t, err)

	raw, ok := Extract(string(encoded), "queries")
	require.True(t, ok)

	var round map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &round))
	assert.Equal(t, orig, round)

	// Running extraction on its own output changes nothing.
	again, ok := Extract(raw, "queries")
	require.True(t, ok)
	assert.Equal(t, raw, again)
}

func TestExtractStripsThinkTags(t *testing.T) {
	text := "<think>{\"queries\": \"this is reasoning, not output\"}</think>{\"queries\": []}"
	raw, ok := Extract(text, "queries")
	require.True(t, ok)
	assert.JSONEq(t, `{"queries": []}`, raw)
}

func TestExtractFailures(t *testing.T) {
	for _, text := range []string{
		"no json here at all",
		"{\"unclosed\": ",
		"[1, 2, 3]", // arrays are not objects
		"{\"other\": 1}",
	} {
		_, ok := Extract(text, "queries")
		assert.False(t, ok, "input %q", text)
	}
}

func TestUnmarshal(t *testing.T) {
	var out struct {
		Learnings []string `json:"learnings"`
	}
	ok := Unmarshal("```json\n{\"learnings\": [\"a\", \"b\"]}\n```", "learnings", &out)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, out.Learnings)

	assert.False(t, Unmarshal("garbage", "learnings", &out))
}
