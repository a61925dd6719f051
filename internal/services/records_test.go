package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONRecords(t *testing.T) {
	t.Run("array with extra keys", func(t *testing.T) {
		input := `[
			{"id": "a", "text": "alpha", "lang": "en", "year": 2024, "tags": ["x", "y"]},
			{"id": 7, "document": "beta", "metadata": {"source": "wiki"}},
			{"content": "gamma", "draft": true, "empty": null}
		]`
		records, err := ParseJSONRecords(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, "a", records[0].ID)
		assert.Equal(t, "alpha", records[0].Text)
		assert.Equal(t, "en", records[0].Metadata["lang"])
		assert.Equal(t, json.Number("2024"), records[0].Metadata["year"])
		assert.Equal(t, `["x","y"]`, records[0].Metadata["tags"])

		assert.Equal(t, "7", records[1].ID)
		assert.Equal(t, "beta", records[1].Text)
		assert.Equal(t, map[string]interface{}{"source": "wiki"}, records[1].Metadata)

		assert.Empty(t, records[2].ID)
		assert.Equal(t, "gamma", records[2].Text)
		assert.Equal(t, map[string]interface{}{"draft": true}, records[2].Metadata)
	})

	t.Run("wrapper object", func(t *testing.T) {
		records, err := ParseJSONRecords(strings.NewReader(`{"records": [{"id": "x", "text": "only"}]}`))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "x", records[0].ID)
		assert.Nil(t, records[0].Metadata)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, input := range []string{``, `not json`, `[{"id": "a"}]`, `[{"text": "   "}]`} {
			_, err := ParseJSONRecords(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrInvalidInput, input)
		}
	})
}

func TestParseCSVRecords(t *testing.T) {
	t.Run("default columns", func(t *testing.T) {
		input := "\uFEFFid,text,category,metadata\n" +
			"1,first row,news,\"{\"\"score\"\": 3}\"\n" +
			"2,\"second, with comma\",,not-json\n"
		records, err := ParseCSVRecords(strings.NewReader(input), CSVOptions{})
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "1", records[0].ID)
		assert.Equal(t, "first row", records[0].Text)
		assert.Equal(t, "news", records[0].Metadata["category"])
		assert.Equal(t, json.Number("3"), records[0].Metadata["score"])

		assert.Equal(t, "second, with comma", records[1].Text)
		assert.Equal(t, map[string]interface{}{"metadata": "not-json"}, records[1].Metadata)
	})

	t.Run("custom columns", func(t *testing.T) {
		input := "key,body\nk1,hello\n"
		records, err := ParseCSVRecords(strings.NewReader(input), CSVOptions{IDColumn: "key", TextColumn: "body"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "k1", records[0].ID)
		assert.Equal(t, "hello", records[0].Text)
		assert.Nil(t, records[0].Metadata)
	})

	t.Run("invalid", func(t *testing.T) {
		cases := []string{
			"",
			"id,title\n1,x\n",
			"id,text\n",
			"id,text\n1,\n",
		}
		for _, input := range cases {
			_, err := ParseCSVRecords(strings.NewReader(input), CSVOptions{})
			assert.ErrorIs(t, err, ErrInvalidInput, input)
		}
	})
}
