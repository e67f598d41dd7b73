package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validDefinition() *Definition {
	return &Definition{
		Generation: 1,
		AccessGroups: []AccessGroup{
			{
				Name:        "default",
				Compressor:  CompressorSnappy,
				BloomFilter: BloomFilterRows,
				Families:    []ColumnFamily{{Name: "cf1", MaxVersions: 1}},
			},
		},
	}
}

func TestValidDefinitionPasses(t *testing.T) {
	require.NoError(t, validDefinition().Validate())
}

func TestDuplicateColumnFamilyAcrossGroupsRejected(t *testing.T) {
	d := validDefinition()
	d.AccessGroups = append(d.AccessGroups, AccessGroup{
		Name:        "second",
		Compressor:  CompressorNone,
		BloomFilter: BloomFilterNone,
		Families:    []ColumnFamily{{Name: "cf1"}},
	})
	require.Error(t, d.Validate())
}

func TestInvalidCompressorRejected(t *testing.T) {
	d := validDefinition()
	d.AccessGroups[0].Compressor = "rot13"
	require.Error(t, d.Validate())
}

func TestAlterRequiresGenerationIncrease(t *testing.T) {
	prev := validDefinition()
	next := validDefinition()
	next.Generation = prev.Generation

	require.Error(t, ValidateAlter(prev, next))

	next.Generation = prev.Generation + 1
	require.NoError(t, ValidateAlter(prev, next))
}

func TestParseRoundTripsValidDefinition(t *testing.T) {
	text := `{"Generation":1,"AccessGroups":[{"Name":"default","Compressor":"snappy","BloomFilter":"rows","Families":[{"Name":"cf1","MaxVersions":1}]}]}`
	d, err := Parse(text)
	require.NoError(t, err)
	require.NoError(t, d.Validate())
	require.Equal(t, int64(1), d.Generation)
	require.Len(t, d.AccessGroups, 1)
}

func TestParseRejectsMalformedText(t *testing.T) {
	_, err := Parse("not json")
	require.Error(t, err)
}
