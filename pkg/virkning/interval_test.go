package virkning_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/pkg/virkning"
)

func day(s string) virkning.Bound {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return virkning.At(t)
}

func TestBoundCompareSentinels(t *testing.T) {
	t.Parallel()

	require.True(t, virkning.NegInf.Before(day("1900-01-01")))
	require.True(t, virkning.PosInf.After(day("9999-12-31")))
	require.True(t, virkning.NegInf.Before(virkning.PosInf))
	require.Equal(t, 0, virkning.PosInf.Compare(virkning.PosInf))
	require.Equal(t, virkning.PosInf, virkning.PosInf.AddDate(0, 0, 1))
}

func TestParseBound(t *testing.T) {
	t.Parallel()

	b, err := virkning.ParseBound("infinity", nil)
	require.NoError(t, err)
	require.True(t, b.IsPosInf())

	b, err = virkning.ParseBound("-infinity", nil)
	require.NoError(t, err)
	require.True(t, b.IsNegInf())

	b, err = virkning.ParseBound("2017-12-01 00:00:00+01", nil)
	require.NoError(t, err)
	require.Equal(t, "2017-11-30T23:00:00Z", b.Time().UTC().Format(time.RFC3339))

	b, err = virkning.ParseBound("2017-12-01", time.UTC)
	require.NoError(t, err)
	require.Equal(t, "2017-12-01", b.Date(time.UTC))

	_, err = virkning.ParseBound("yesterday", nil)
	require.ErrorIs(t, err, virkning.ErrInvalidInterval)
}

func TestNewRejectsReversedBounds(t *testing.T) {
	t.Parallel()

	_, err := virkning.New(day("2018-01-01"), day("2017-01-01"))
	require.ErrorIs(t, err, virkning.ErrInvalidInterval)

	iv, err := virkning.New(day("2017-01-01"), day("2017-01-01"))
	require.NoError(t, err)
	require.True(t, iv.Empty())

	point := virkning.Interval{From: day("2017-01-01"), FromIncluded: true, To: day("2017-01-01"), ToIncluded: true}
	require.NoError(t, point.Validate())
	require.False(t, point.Empty())
}

func TestOverlapsHonoursFlags(t *testing.T) {
	t.Parallel()

	a := virkning.MustNew(day("2017-01-01"), day("2017-06-01"))
	b := virkning.MustNew(day("2017-06-01"), virkning.PosInf)
	require.False(t, virkning.Overlaps(a, b), "half-open intervals that touch do not overlap")

	closed := a.WithTo(a.To, true)
	require.True(t, virkning.Overlaps(closed, b))

	c := virkning.MustNew(virkning.NegInf, day("2017-02-01"))
	require.True(t, virkning.Overlaps(a, c))

	got, ok := virkning.Intersect(a, c)
	require.True(t, ok)
	require.True(t, got.From.Equal(day("2017-01-01")))
	require.True(t, got.To.Equal(day("2017-02-01")))
}

func TestContainsAndCovers(t *testing.T) {
	t.Parallel()

	iv := virkning.MustNew(day("2017-01-01"), day("2018-01-01"))
	require.True(t, iv.Contains(day("2017-01-01").Time()))
	require.False(t, iv.Contains(day("2018-01-01").Time()))

	require.True(t, virkning.Always().Covers(iv))
	require.True(t, iv.Covers(virkning.MustNew(day("2017-03-01"), day("2018-01-01"))))
	require.False(t, iv.Covers(virkning.MustNew(day("2016-12-31"), day("2017-02-01"))))
}

func TestIntervalJSONDefaultsFlags(t *testing.T) {
	t.Parallel()

	var iv virkning.Interval
	require.NoError(t, json.Unmarshal([]byte(`{"from":"2017-12-01T00:00:00+00:00","to":"infinity"}`), &iv))
	require.True(t, iv.FromIncluded)
	require.False(t, iv.ToIncluded)
	require.True(t, iv.To.IsPosInf())

	out, err := json.Marshal(iv)
	require.NoError(t, err)
	require.JSONEq(t, `{"from":"2017-12-01T00:00:00Z","from_included":true,"to":"infinity","to_included":false}`, string(out))

	err = json.Unmarshal([]byte(`{"from":"infinity","to":"2017-01-01"}`), &iv)
	require.ErrorIs(t, err, virkning.ErrInvalidInterval)
}
