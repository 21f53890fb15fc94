package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zebra": "z",
		"apple": "a",
		"n":     int64(3),
		"b":     true,
		"list":  []any{"x", 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":"a","b":true,"list":["x",1],"n":3,"zebra":"z"}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsStayLiteral(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashPreserved(t *testing.T) {
	got, err := MarshalCanonical(`\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	got, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"nested": []any{nil}})
	assert.Error(t, err)
}

func TestItemsDocument(t *testing.T) {
	doc := ItemsDocument([]LineItem{{
		SKU:             "TAG-STEEL",
		Name:            "Steel tag",
		Quantity:        1,
		UnitAmount:      2500,
		Personalization: map[string]string{"pet_name": "Rex"},
	}})
	got, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"name":"Steel tag","personalization":{"pet_name":"Rex"},"quantity":1,"sku":"TAG-STEEL","unit_amount":2500}]`,
		string(got))
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]int{"b": 1, "a": 2, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
