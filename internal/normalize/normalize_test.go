package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSuffixes(t *testing.T) {
	cases := map[string]string{
		"1.2T":  "1200000000000.0",
		"-1.2B": "-1200000000.0",
		"500M":  "500000000.0",
		"3K":    "3000.0",
		"42":    "42.0",
		"0":     "0.0",
		"-7.5":  "-7.5",
		"1.1B":  "1100000000.0",
		"0.5K":  "500.0",
		"1.25":  "1.25",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestNormalizeSignPreserved(t *testing.T) {
	for _, suffix := range []string{"T", "B", "M", "K", ""} {
		pos, err := Parse("2.5" + suffix)
		require.NoError(t, err)
		neg, err := Parse("-2.5" + suffix)
		require.NoError(t, err)
		require.True(t, pos.Neg().Equal(neg), "suffix %q", suffix)
	}
}

func TestNormalizeConversionError(t *testing.T) {
	for _, in := range []string{"abcM", "", "-", "B", "1,234K", "1e2000000B", "1e200000000B", "1e-40"} {
		_, err := Normalize(in)
		require.Error(t, err, in)

		var convErr *ConversionError
		require.True(t, errors.As(err, &convErr), in)
		require.Equal(t, in, convErr.Token)
	}
}

func TestIsCurrencyToken(t *testing.T) {
	require.True(t, IsCurrencyToken("$1B"))
	require.True(t, IsCurrencyToken("-$1B"))
	require.False(t, IsCurrencyToken("BTC"))
	require.False(t, IsCurrencyToken("1$"))
	require.Equal(t, "-1.2B", StripCurrency("-$1.2B"))
}
