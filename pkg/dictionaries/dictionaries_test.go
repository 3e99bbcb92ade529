package dictionaries

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFixtures(t *testing.T) {
	d, err := Load("data")
	require.NoError(t, err)

	canonical, ok := d.CanonicalNationality("filippinsk")
	require.True(t, ok)
	require.Equal(t, "Filipino", canonical)

	canonical, ok = d.CanonicalNationality("Filipino")
	require.True(t, ok)
	require.Equal(t, "Filipino", canonical)

	_, ok = d.CanonicalNationality("not-a-nationality")
	require.False(t, ok)
}

func TestFindNationalities(t *testing.T) {
	d, err := Load("data")
	require.NoError(t, err)

	found := d.FindNationalities("Søker er norsk statsborger, gift med en filippinsk kvinne.")
	require.Contains(t, found, "Norwegian")
	require.Contains(t, found, "Filipino")
}

func TestKeywordSignals(t *testing.T) {
	d, err := Load("data")
	require.NoError(t, err)

	require.NotEmpty(t, d.FindCitizenshipKeywords("Applicant requests permanent residence under statsborgerskap rules."))
	require.NotEmpty(t, d.FindLanguageSignals("Passed norskprøven at B1 level."))
	require.NotEmpty(t, d.FindResidencySignals("Continuous residence documented by folkeregistrert address."))
	require.True(t, d.HasDurationPhrase("Applicant has lived in Norway for over 7 years."))
	require.False(t, d.HasDurationPhrase("No relevant history mentioned."))
}
