package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeedDate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "json timestamp", input: "2024-05-01T11:30:00+03:00", expected: "2024-05-01"},
		{name: "xml dotted", input: "01.05.2024", expected: "2024-05-01"},
		{name: "slashes", input: "01/05/2024", expected: "2024-05-01"},
		{name: "iso date", input: " 2024-05-01 ", expected: "2024-05-01"},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "yesterday", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFeedDate(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, FormatDate(got))
		})
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2002-03-02", FormatDate(time.Date(2002, time.March, 2, 23, 0, 0, 0, time.UTC)))
}
