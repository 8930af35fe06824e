package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyIdentity_Next(t *testing.T) {
	assert.Equal(t, StrategyXML, StrategyJSON.Next())
	assert.Equal(t, StrategyJSON, StrategyXML.Next())

	for _, s := range SupportedStrategies {
		assert.Equal(t, s, s.Next().Next(), "Next must be its own inverse for %s", s)
		assert.NotEqual(t, s, s.Next())
	}
}

func TestParseStrategyIdentity(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected StrategyIdentity
		wantErr  bool
	}{
		{name: "upper json", input: "JSON", expected: StrategyJSON},
		{name: "lower xml", input: "xml", expected: StrategyXML},
		{name: "padded", input: "  Json ", expected: StrategyJSON},
		{name: "legacy name", input: "XMLLoadingStrategy", expected: StrategyXML},
		{name: "unknown", input: "yaml", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStrategyIdentity(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownStrategy))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestStrategyIdentity_TextRoundTrip(t *testing.T) {
	for _, s := range SupportedStrategies {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var parsed StrategyIdentity
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, s, parsed)
	}

	_, err := StrategyIdentity(7).MarshalText()
	assert.Error(t, err)
}

func TestCurrencyRecord_UnitRate(t *testing.T) {
	record := CurrencyRecord{Code: "JPY", UnitCount: 100, RateValue: 61.5}
	assert.InDelta(t, 0.615, record.UnitRate(), 1e-9)

	assert.Zero(t, CurrencyRecord{Code: "XXX", RateValue: 10}.UnitRate())
}
