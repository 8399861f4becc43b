package shortcode_test

import (
	"context"
	"strings"
	"testing"

	"burnlink/internal/shortcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex is a pre-seeded short-code index.
type fakeIndex struct {
	codes  map[string]bool
	probes int
}

func (f *fakeIndex) ShortCodeExists(_ context.Context, code string) (bool, error) {
	f.probes++
	return f.codes[code], nil
}

func TestGenerate_ShapeAndCharset(t *testing.T) {
	gen := shortcode.NewGenerator(&fakeIndex{codes: map[string]bool{}})

	for i := 0; i < 200; i++ {
		code, err := gen.Generate(context.Background())
		require.NoError(t, err)

		assert.Len(t, code, shortcode.CodeLength)
		for _, c := range code {
			ok := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
			assert.True(t, ok, "unexpected character %q in code %q", c, code)
		}
	}
}

func TestGenerate_NeverReturnsDeniedSubstring(t *testing.T) {
	gen := shortcode.NewGenerator(&fakeIndex{codes: map[string]bool{}})

	denied := []string{"ass", "sex", "xxx", "die"}
	for i := 0; i < 500; i++ {
		code, err := gen.Generate(context.Background())
		require.NoError(t, err)

		lower := strings.ToLower(code)
		for _, word := range denied {
			assert.NotContains(t, lower, word)
		}
	}
}

func TestGenerate_ChecksAgainstStore(t *testing.T) {
	index := &fakeIndex{codes: map[string]bool{}}
	gen := shortcode.NewGenerator(index)

	code, err := gen.Generate(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, code)
	assert.GreaterOrEqual(t, index.probes, 1)

	// A generated code must not already exist in the store.
	assert.False(t, index.codes[code])
}

func TestGenerate_ExhaustsRetriesWhenEverythingCollides(t *testing.T) {
	// An index that claims every code is taken simulates a (practically
	// impossible) full keyspace; the generator must give up, not loop.
	allTaken := &collidingIndex{}
	gen := shortcode.NewGenerator(allTaken)

	_, err := gen.Generate(context.Background())
	require.ErrorIs(t, err, shortcode.ErrExhausted)
	assert.Equal(t, 3, allTaken.probes)
}

type collidingIndex struct {
	probes int
}

func (c *collidingIndex) ShortCodeExists(context.Context, string) (bool, error) {
	c.probes++
	return true, nil
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid", "aB3xY9z", false},
		{"too short", "abc", true},
		{"too long", "abcdefgh", true},
		{"non-alphanumeric", "abc-123", true},
		{"denied word", "xSEXy12", true},
		{"denied word lowercase", "1porn23", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := shortcode.Validate(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
