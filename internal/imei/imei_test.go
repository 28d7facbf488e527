package imei

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"known good", "490154203237518", true},
		{"trimmed", "  490154203237518\n", true},
		{"second valid", "356938035643809", true},
		{"too short", "12345", false},
		{"too long", "4901542032375180", false},
		{"letter", "49015420323751X", false},
		{"bad checksum", "490154203237519", false},
		{"empty", "", false},
		{"unicode digits", "४९०१५४२०३२३७५१८", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			id, err := Validate(c.raw)
			if c.ok {
				require.NoError(t, err)
				assert.Len(t, id.String(), Length)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidIdentifier))
			assert.True(t, id.IsZero())
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	a, err := Validate("490154203237518")
	require.NoError(t, err)
	b, err := Validate("490154203237518")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParts(t *testing.T) {
	id, err := Validate("490154203237518")
	require.NoError(t, err)
	assert.Equal(t, "49015420", id.Prefix())
	assert.Equal(t, "323751", id.Serial())
	assert.Equal(t, byte(8), id.Check())
}

func TestRedact(t *testing.T) {
	id, err := Validate("490154203237518")
	require.NoError(t, err)
	masked := Redact(id)
	assert.Equal(t, "49015420********", masked)
	assert.Len(t, masked, 16)
	assert.Equal(t, "", Redact(Identifier{}))
}

func TestRedactRaw(t *testing.T) {
	assert.Equal(t, "49015420********", RedactRaw("490154203237518"))
	assert.Equal(t, "********", RedactRaw("12345"))
	assert.Equal(t, "abcdefgh********", RedactRaw("abcdefghijk"))
}
