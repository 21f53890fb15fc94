package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorialName(t *testing.T) {
	tests := []struct {
		name  string
		items []LineItem
		want  string
	}{
		{"no items", nil, DefaultMemorialName},
		{"no personalization", []LineItem{{SKU: "TAG"}}, DefaultMemorialName},
		{
			"pet name trimmed",
			[]LineItem{{Personalization: map[string]string{"pet_name": "  Rex   the  Dog "}}},
			"Rex the Dog",
		},
		{
			"memorial_name wins over later keys",
			[]LineItem{
				{Personalization: map[string]string{"pet_name": "Rex"}},
				{Personalization: map[string]string{"memorial_name": "Grandma Rose"}},
			},
			"Grandma Rose",
		},
		{
			"blank value skipped",
			[]LineItem{{Personalization: map[string]string{"memorial_name": "   ", "name": "Ada"}}},
			"Ada",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MemorialName(tt.items))
		})
	}
}

func TestMemorialName_Truncates(t *testing.T) {
	long := strings.Repeat("\u00e9", 200)
	got := MemorialName([]LineItem{{Personalization: map[string]string{"name": long}}})
	assert.Len(t, []rune(got), maxMemorialNameRunes)
}

func TestNormalizePrefix(t *testing.T) {
	p, err := NormalizePrefix(" tag ")
	require.NoError(t, err)
	assert.Equal(t, "TAG", p)

	for _, bad := range []string{"", "TAG-1", "\u00c9T\u00c9", strings.Repeat("A", 17)} {
		_, err := NormalizePrefix(bad)
		assert.True(t, IsInvalidArgument(err), "prefix %q", bad)
	}
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "TAG-0007", FormatCode("TAG", 7, 4))
	assert.Equal(t, "TAG-00042", FormatCode("TAG", 42, 5))
	assert.Equal(t, 4, SuffixWidth(10))
	assert.Equal(t, 4, SuffixWidth(9999))
	assert.Equal(t, 5, SuffixWidth(12345))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "TAG-0001", NormalizeCode(" tag-0001\n"))
}
