package intl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/pkg/intl"
)

func TestDanishCollation(t *testing.T) {
	t.Parallel()
	c := intl.MustCollator("da")

	names := []string{"Åby", "Zeta", "Ærø", "Borup", "Østervrå"}
	intl.SortBy(c, names, func(s string) string { return s })
	require.Equal(t, []string{"Borup", "Zeta", "Ærø", "Østervrå", "Åby"}, names)
}

func TestCollationIsNotBytewise(t *testing.T) {
	t.Parallel()
	c := intl.MustCollator("en")

	names := []string{"beta", "Alpha", "alpha"}
	intl.SortBy(c, names, func(s string) string { return s })
	require.Equal(t, "beta", names[2])
	require.Negative(t, c.Compare("Alpha", "beta"))
}

func TestInvalidLocale(t *testing.T) {
	t.Parallel()
	_, err := intl.NewCollator("not a locale!")
	require.Error(t, err)
}
