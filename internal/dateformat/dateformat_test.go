package dateformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectISO(t *testing.T) {
	t.Parallel()

	samples := []string{"2024-01-15", "2024-02-03", "2024-12-31"}
	d := Detect(samples, 20)
	require.NotNil(t, d)
	require.Equal(t, "2006-01-02", d.Format)
	require.Equal(t, 1.0, d.Confidence)
	require.Equal(t, 3, d.ValidSamples)
	require.Equal(t, 3, d.TotalSamples)
}

func TestDetectDayFirstDisambiguatedByHighDay(t *testing.T) {
	t.Parallel()

	// Day 13 and 14 cannot be months, so the US layout drops out and the
	// European layout wins outright.
	d := Detect([]string{"13/01/2024", "14/01/2024"}, 20)
	require.NotNil(t, d)
	require.Equal(t, "02/01/2006", d.Format)
	require.Equal(t, 1.0, d.Confidence)
}

func TestDetectAmbiguousPrefersEarlierLayout(t *testing.T) {
	t.Parallel()

	// Every sample parses under both US and European layouts with equal
	// confidence; the earlier listed layout (US) must win deterministically.
	d := Detect([]string{"01/02/2023", "03/04/2023"}, 20)
	require.NotNil(t, d)
	require.Equal(t, "01/02/2006", d.Format)
	require.Equal(t, 1.0, d.Confidence)
}

func TestDetectPartialConfidence(t *testing.T) {
	t.Parallel()

	d := Detect([]string{"2024-01-15", "2024-02-03", "garbage", "also not a date"}, 20)
	require.NotNil(t, d)
	require.Equal(t, "2006-01-02", d.Format)
	require.InDelta(t, 0.5, d.Confidence, 1e-9)
	require.Equal(t, 2, d.ValidSamples)
	require.Equal(t, 4, d.TotalSamples)
}

func TestDetectNothingParses(t *testing.T) {
	t.Parallel()

	require.Nil(t, Detect([]string{"hello", "world"}, 20))
	require.Nil(t, Detect(nil, 20))
}

func TestDetectSampleCap(t *testing.T) {
	t.Parallel()

	samples := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		samples = append(samples, "2024-01-15")
	}
	d := Detect(samples, 20)
	require.NotNil(t, d)
	require.Equal(t, 20, d.TotalSamples)
	require.Equal(t, 20, d.ValidSamples)
}

func TestDetectMonthNames(t *testing.T) {
	t.Parallel()

	d := Detect([]string{"Jan 05, 2024", "Feb 17, 2024"}, 20)
	require.NotNil(t, d)
	require.Equal(t, "Jan 02, 2006", d.Format)

	d = Detect([]string{"05 January 2024", "17 February 2024"}, 20)
	require.NotNil(t, d)
	require.Equal(t, "02 January 2006", d.Format)
}

func TestConvert(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		layout string
		want   string
	}{
		{"25/12/2023", "02/01/2006", "2023-12-25"},
		{"12/25/2023", "01/02/2006", "2023-12-25"},
		{"5/3/24", "2/1/06", "2024-03-05"},
		{"2023-12-25", "2006-01-02", "2023-12-25"},
		{" 2023-12-25 ", "2006-01-02", "2023-12-25"},
		{"Dec 25, 2023", "Jan 02, 2006", "2023-12-25"},
	}
	for _, tc := range cases {
		got, ok := Convert(tc.in, tc.layout)
		require.True(t, ok, "Convert(%q, %q)", tc.in, tc.layout)
		require.Equal(t, tc.want, got)
	}
}

func TestConvertRejectsMismatch(t *testing.T) {
	t.Parallel()

	// Day 13 is out of range for the month position.
	_, ok := Convert("13/01/2024", "01/02/2006")
	require.False(t, ok)

	// Trailing garbage must not be silently ignored.
	_, ok = Convert("2024-01-15T10:30", "2006-01-02")
	require.False(t, ok)

	_, ok = Convert("", "2006-01-02")
	require.False(t, ok)
}

func TestConvertDetectRoundTrip(t *testing.T) {
	t.Parallel()

	// Whatever layout detection picks must convert every sample it counted
	// as valid.
	samples := []string{"25/12/2023", "01/12/2023", "09/06/2024"}
	d := Detect(samples, 20)
	require.NotNil(t, d)
	require.Equal(t, 1.0, d.Confidence)
	for _, s := range samples {
		_, ok := Convert(s, d.Format)
		require.True(t, ok, "sample %q under %q", s, d.Format)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ISO format (2023-12-25)", Describe("2006-01-02"))
	require.Equal(t, "Custom format (2006.01.02)", Describe("2006.01.02"))
}
