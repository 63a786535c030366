package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeKeyword(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ord-1001", NormalizeKeyword("  ＯＲＤ-1001 "))
	require.Equal(t, "jane doe", NormalizeKeyword("Jane   DOE"))
	require.Equal(t, "", NormalizeKeyword("   "))
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	keywords := Keywords("ORD-1001", "Jane Doe", "jane@example.com", "")
	require.Equal(t, []string{
		"1001",
		"com",
		"doe",
		"example",
		"jane",
		"jane doe",
		"jane@example.com",
		"ord",
		"ord-1001",
	}, keywords)

	require.Nil(t, Keywords("", "  "))
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Ken & Co", StripMarkup("<b>Ken</b> & Co "))
	require.Equal(t, "", StripMarkup("<script>alert(1)</script>"))
	require.Nil(t, StripMarkupPtr(nil))
	blank := "<i></i>"
	require.Nil(t, StripMarkupPtr(&blank))
}
