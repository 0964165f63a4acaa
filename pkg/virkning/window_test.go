package virkning_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/pkg/virkning"
)

func TestWindowRelevance(t *testing.T) {
	t.Parallel()

	before := virkning.MustNew(day("2016-01-01"), day("2017-01-01"))
	after := virkning.MustNew(day("2017-01-01"), virkning.PosInf)

	past := virkning.NewWindow(virkning.Past, day("2017-12-31").Time().Add(15*time.Hour), time.UTC)
	require.True(t, past.IsRelevant(before))
	require.False(t, past.IsRelevant(after))

	future := virkning.NewWindow(virkning.Future, day("2016-12-31").Time(), time.UTC)
	require.False(t, future.IsRelevant(before))
	require.True(t, future.IsRelevant(after))

	present := virkning.NewWindow(virkning.Present, day("2016-12-31").Time(), time.UTC)
	require.True(t, present.IsRelevant(before))
	require.False(t, present.IsRelevant(after))
}

func TestWindowRange(t *testing.T) {
	t.Parallel()

	w := virkning.NewWindow("", day("2017-06-15").Time().Add(13*time.Hour), time.UTC)
	require.Equal(t, virkning.Present, w.Validity)
	r := w.Range()
	require.True(t, r.From.Equal(day("2017-06-15")))
	require.True(t, r.To.Equal(day("2017-06-16")))

	require.True(t, virkning.NewWindow(virkning.Past, w.Day, time.UTC).Range().From.IsNegInf())
	require.True(t, virkning.NewWindow(virkning.Future, w.Day, time.UTC).Range().To.IsPosInf())
}

func TestParseValidity(t *testing.T) {
	t.Parallel()

	v, err := virkning.ParseValidity("")
	require.NoError(t, err)
	require.Equal(t, virkning.Present, v)

	v, err = virkning.ParseValidity("Future")
	require.NoError(t, err)
	require.Equal(t, virkning.Future, v)

	_, err = virkning.ParseValidity("sometime")
	require.ErrorIs(t, err, virkning.ErrInvalidInterval)
}
