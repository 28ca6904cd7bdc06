package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractProductID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		url  string
		want string
		ok   bool
	}{
		{"slug", "https://example.com/us/products/1739/Some-Name", "1739", true},
		{"query", "https://www.example.com/us/products/2468/product-name?ref=homepage", "2468", true},
		{"fragment", "https://www.example.com/us/products/3579/product-name#details", "3579", true},
		{"trailing slash", "https://www.example.com/us/products/4680/product-name/", "4680", true},
		{"no slug", "https://www.example.com/gb/products/12", "12", true},
		{"regional locale", "https://www.example.com/en-gb/products/77/x", "77", true},
		{"missing id", "https://www.example.com/us/products/", "", false},
		{"non numeric", "https://www.example.com/us/products/abc/product-name", "", false},
		{"no locale", "https://www.example.com/products/1234/product", "", false},
		{"too long", "https://www.example.com/us/products/12345678901/x", "", false},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractProductID(tc.url)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExtractProductName(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"THE MONSTERS Classic Series Sparkly Plush Pendant Blind Box",
		ExtractProductName("https://www.example.com/us/products/1739/THE-MONSTERS-Classic-Series-Sparkly-Plush-Pendant-Blind-Box"),
	)
	require.Equal(t, "Molly Space Series", ExtractProductName("https://www.example.com/us/products/2468/Molly-Space-Series?ref=homepage"))
	require.Equal(t, "Dimoo World Tour", ExtractProductName("https://www.example.com/us/products/3579/Dimoo-World-Tour/"))
	require.Equal(t, "Product 12", ExtractProductName("https://www.example.com/us/products/12"))
	require.Empty(t, ExtractProductName("https://www.example.com/about"))
}

func TestIsValidProductID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"1739", "123", "0", "9999999999"} {
		require.True(t, IsValidProductID(id), id)
	}
	for _, id := range []string{"", "abc", "123abc", "12345678901"} {
		require.False(t, IsValidProductID(id), id)
	}
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	_, err := ValidateURL("https://shop.example.com/us/products/1/x", nil)
	require.NoError(t, err)

	_, err = ValidateURL("https://shop.example.com/us/products/1/x", []string{"example.com"})
	require.NoError(t, err)

	_, err = ValidateURL("https://evil.test/us/products/1/x", []string{"example.com"})
	require.True(t, errors.Is(err, ErrInvalidURL))

	_, err = ValidateURL("ftp://example.com/file", nil)
	require.ErrorIs(t, err, ErrInvalidURL)

	_, err = ValidateURL("not a url", nil)
	require.ErrorIs(t, err, ErrInvalidURL)

	_, err = ValidateURL("", nil)
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestVerdictAvailable(t *testing.T) {
	t.Parallel()

	require.True(t, VerdictFound.Available())
	require.False(t, VerdictNotFound.Available())
	require.False(t, VerdictUnavailable.Available())
	require.False(t, VerdictInconclusive.Available())
}
