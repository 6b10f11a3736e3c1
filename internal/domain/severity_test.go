package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name     string
		reading  Reading
		expected SeverityTier
	}{
		{"fire hot", Reading{IsFire: true, Temperature: 80}, TierCritical},
		{"fire co2", Reading{IsFire: true, CO2Level: 450}, TierCritical},
		{"fire confident", Reading{IsFire: true, Confidence: 0.92}, TierCritical},
		{"fire warm", Reading{IsFire: true, Temperature: 65}, TierHigh},
		{"fire co2 elevated", Reading{IsFire: true, CO2Level: 380}, TierHigh},
		{"fire fairly confident", Reading{IsFire: true, Confidence: 0.75}, TierHigh},
		{"fire just below high", Reading{IsFire: true, Temperature: 64.9, CO2Level: 379.9, Confidence: 0.749}, TierModerate},
		{"fire empty fields", Reading{IsFire: true}, TierModerate},
		{"no fire hot", Reading{Temperature: 55}, TierModerate},
		{"no fire confident", Reading{Confidence: 0.6}, TierModerate},
		{"no fire co2 ignored", Reading{CO2Level: 900}, TierWatch},
		{"no fire cool", Reading{Temperature: 54.9, Confidence: 0.59}, TierWatch},
		{"zero reading", Reading{}, TierWatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.reading, th))
		})
	}
}

func TestClassify_TotalAndDeterministic(t *testing.T) {
	th := DefaultThresholds()
	for temp := -20.0; temp <= 120; temp += 7.5 {
		for co2 := 0.0; co2 <= 800; co2 += 95 {
			for conf := 0.0; conf <= 1.0; conf += 0.13 {
				for _, fire := range []bool{true, false} {
					r := Reading{Temperature: temp, CO2Level: co2, Confidence: conf, IsFire: fire}
					first := Classify(r, th)
					assert.GreaterOrEqual(t, first.Rank(), 0, "classifier must return a known tier")
					assert.Equal(t, first, Classify(r, th))
				}
			}
		}
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.Fire.CriticalTemperature = 100

	assert.Equal(t, TierHigh, Classify(Reading{IsFire: true, Temperature: 90}, th))
	assert.Equal(t, TierCritical, Classify(Reading{IsFire: true, Temperature: 90}, DefaultThresholds()))
}

func TestClassify_HotFireReadingsAreCritical(t *testing.T) {
	th := DefaultThresholds()
	readings := make([]TaggedReading, 0, 3)
	for i := 0; i < 3; i++ {
		r := Reading{
			NodeID:      "N1",
			Timestamp:   FromMillis(testEpochMs + int64(i)*60_000),
			Temperature: 90,
			CO2Level:    500,
			Confidence:  0.95,
			IsFire:      true,
		}
		tier := Classify(r, th)
		require.Equal(t, TierCritical, tier)
		readings = append(readings, TaggedReading{Reading: r, Severity: tier})
	}

	rows := GroupByNode(readings)
	require.Len(t, rows, 1)
	assert.Equal(t, "N1", rows[0].Key)
	assert.Equal(t, 3, rows[0].Count)
	assert.InDelta(t, 90.0, rows[0].MeanTemperature, 1e-9)
	assert.Equal(t, 3, rows[0].Tiers.Critical)
}

func TestParseSeverityTier(t *testing.T) {
	tests := []struct {
		input    string
		expected SeverityTier
		wantErr  bool
	}{
		{"critical", TierCritical, false},
		{"HIGH", TierHigh, false},
		{" Moderate ", TierModerate, false},
		{"watch", TierWatch, false},
		{"all", "", false},
		{"ALL", "", false},
		{"", "", false},
		{"severe", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tier, err := ParseSeverityTier(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tier)
		})
	}
}

func TestSeverityTier_Rank(t *testing.T) {
	for i := 1; i < len(Tiers); i++ {
		assert.Greater(t, Tiers[i-1].Rank(), Tiers[i].Rank())
	}
	assert.Equal(t, -1, SeverityTier("NOPE").Rank())
}
