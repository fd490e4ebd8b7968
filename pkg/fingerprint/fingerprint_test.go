package fingerprint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestCanonicalTxID(t *testing.T) {
	ts := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

	t.Run("should be deterministic for identical tuples", func(t *testing.T) {
		a := CanonicalTxID(strPtr("205"), &ts, floatPtr(55.5), strPtr("dev-1"))
		b := CanonicalTxID(strPtr("205"), &ts, floatPtr(55.5), strPtr("dev-1"))
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("should change when any tuple field changes", func(t *testing.T) {
		base := CanonicalTxID(strPtr("205"), &ts, floatPtr(55.5), strPtr("dev-1"))

		assert.NotEqual(t, base, CanonicalTxID(strPtr("206"), &ts, floatPtr(55.5), strPtr("dev-1")))
		assert.NotEqual(t, base, CanonicalTxID(strPtr("205"), &ts, floatPtr(55.6), strPtr("dev-1")))
		assert.NotEqual(t, base, CanonicalTxID(strPtr("205"), &ts, floatPtr(55.5), strPtr("dev-2")))

		later := ts.Add(time.Minute)
		assert.NotEqual(t, base, CanonicalTxID(strPtr("205"), &later, floatPtr(55.5), strPtr("dev-1")))
	})

	t.Run("should hash absent fields as empty and stay stable", func(t *testing.T) {
		a := CanonicalTxID(nil, nil, nil, nil)
		b := CanonicalTxID(nil, nil, nil, nil)
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, CanonicalTxID(strPtr(""), nil, nil, strPtr("x")))
	})

	t.Run("should normalize timestamps to UTC", func(t *testing.T) {
		manila := time.FixedZone("PHT", 8*3600)
		local := time.Date(2025, 6, 1, 16, 30, 0, 0, manila)

		assert.Equal(t,
			CanonicalTxID(strPtr("205"), &ts, nil, nil),
			CanonicalTxID(strPtr("205"), &local, nil, nil),
		)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("should be independent of map iteration order", func(t *testing.T) {
		a := Generate(map[string]any{"x": 1.0, "y": "two", "z": []any{1.0, 2.0}})
		b := Generate(map[string]any{"z": []any{1.0, 2.0}, "y": "two", "x": 1.0})
		assert.Equal(t, a, b)
	})

	t.Run("should differ for different documents", func(t *testing.T) {
		a := Generate(map[string]any{"x": 1.0})
		b := Generate(map[string]any{"x": 2.0})
		assert.NotEqual(t, a, b)
	})
}

func TestGenerateFromJSON(t *testing.T) {
	t.Run("should match Generate over the decoded document", func(t *testing.T) {
		raw := json.RawMessage(`{"storeId": "205", "items": [{"brandName": "Coke"}]}`)

		fromJSON, err := GenerateFromJSON(raw)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		assert.Equal(t, Generate(m), fromJSON)
	})

	t.Run("should fail on invalid JSON", func(t *testing.T) {
		_, err := GenerateFromJSON(json.RawMessage(`{`))
		assert.Error(t, err)
	})
}
