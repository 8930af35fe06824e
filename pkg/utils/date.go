package utils

import (
	"fmt"
	"strings"
	"time"
)

var feedDateLayouts = []string{
	time.RFC3339,
	"02.01.2006",
	"02/01/2006",
	"2006-01-02",
}

// ParseFeedDate parses the publication dates used by the rate feed: RFC 3339
// timestamps in the JSON document and dd.mm.yyyy in the XML one.
func ParseFeedDate(dateStr string) (time.Time, error) {
	trimmed := strings.TrimSpace(dateStr)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range feedDateLayouts {
		if date, err := time.Parse(layout, trimmed); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", dateStr)
}

func FormatDate(date time.Time) string {
	return date.Format("2006-01-02")
}
