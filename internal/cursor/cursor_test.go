package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	key := Fingerprint("SELECT * FROM users WHERE age > 18", []string{"age", "user_id"})

	token := Encode(Cursor{Key: key, Dir: Forward, Values: []any{32, 2}})
	require.NotEmpty(t, token)
	assert.NotContains(t, token, "=")

	c, err := Decode(token, key)
	require.NoError(t, err)
	assert.Equal(t, Forward, c.Dir)
	require.Len(t, c.Values, 2)
	// JSON numbers decode as float64.
	assert.Equal(t, float64(32), c.Values[0])
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := []string{
		"not!!base64",
		"bm90IGpzb24",      // valid base64, not JSON
		"eyJrIjoxfQ",       // JSON, missing direction and values
		"eyJkIjoieCJ9",     // unknown direction
		"eyJkIjoiZiJ9",     // forward but no values
	}

	for _, token := range cases {
		_, err := Decode(token, 1)
		var de *DecodeError
		assert.ErrorAs(t, err, &de, "token %q", token)
	}
}

func TestDecodeRejectsMismatchedKey(t *testing.T) {
	key := Fingerprint("SELECT * FROM users", []string{"user_id"})
	token := Encode(Cursor{Key: key, Dir: Backward, Values: []any{7}})

	other := Fingerprint("SELECT * FROM users WHERE age > 18", []string{"user_id"})
	require.NotEqual(t, key, other)

	_, err := Decode(token, other)
	var me *MismatchError
	assert.ErrorAs(t, err, &me)
}

func TestFingerprintNormalizesWhitespaceAndCase(t *testing.T) {
	a := Fingerprint("SELECT  *\n\tFROM users", []string{"Age"})
	b := Fingerprint("select * from users", []string{"age"})
	assert.Equal(t, a, b)

	c := Fingerprint("select * from users", []string{"age", "id"})
	assert.NotEqual(t, a, c)
}
