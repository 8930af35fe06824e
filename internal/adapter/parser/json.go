// Package parser decodes the two wire formats served by the daily rate feed
// into model.Snapshot values. The functions are pure: FetchedAt and Source are
// left for the caller to stamp.
package parser

import (
	"bytes"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"

	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/pkg/utils"
)

type dailyJSON struct {
	Date         string                `json:"Date"`
	PreviousDate string                `json:"PreviousDate,omitempty"`
	PreviousURL  string                `json:"PreviousURL,omitempty"`
	Timestamp    string                `json:"Timestamp,omitempty"`
	Valute       map[string]jsonValute `json:"Valute"`
}

type jsonValute struct {
	ID       string  `json:"ID"`
	NumCode  string  `json:"NumCode"`
	CharCode string  `json:"CharCode"`
	Nominal  float64 `json:"Nominal"`
	Name     string  `json:"Name"`
	Value    float64 `json:"Value"`
	Previous float64 `json:"Previous"`
}

// ParseJSON decodes the daily JSON document. Records are keyed by the keys of
// the Valute object.
func ParseJSON(raw []byte) (*model.Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top-level JSON value is not an object", model.ErrMalformedPayload)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}

	var doc dailyJSON
	if rawDate, ok := envelope["Date"]; ok {
		_ = json.Unmarshal(rawDate, &doc.Date)
	}

	if rawValute, ok := envelope["Valute"]; ok && !isJSONNull(rawValute) {
		if err := json.Unmarshal(rawValute, &doc.Valute); err != nil {
			return nil, fmt.Errorf("%w: Valute: %v", model.ErrMalformedPayload, err)
		}
	}

	snapshot := model.NewSnapshot(time.Time{})
	if published, err := utils.ParseFeedDate(doc.Date); err == nil {
		snapshot.PublishedAt = published
	}

	for code, v := range doc.Valute {
		snapshot.Put(model.CurrencyRecord{
			ID:                v.ID,
			NumericCode:       v.NumCode,
			Code:              code,
			UnitCount:         int(math.Round(v.Nominal)),
			Name:              v.Name,
			RateValue:         v.Value,
			PreviousRateValue: v.Previous,
		})
	}

	return snapshot, nil
}

// EncodeJSON renders a snapshot in the shape of the daily JSON document.
func EncodeJSON(snapshot *model.Snapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("nil snapshot")
	}

	doc := dailyJSON{
		Valute: make(map[string]jsonValute, snapshot.Len()),
	}
	if !snapshot.PublishedAt.IsZero() {
		doc.Date = snapshot.PublishedAt.Format(time.RFC3339)
	}
	if !snapshot.FetchedAt.IsZero() {
		doc.Timestamp = snapshot.FetchedAt.Format(time.RFC3339)
	}

	for code, record := range snapshot.Records {
		doc.Valute[code] = jsonValute{
			ID:       record.ID,
			NumCode:  record.NumericCode,
			CharCode: record.Code,
			Nominal:  float64(record.UnitCount),
			Name:     record.Name,
			Value:    record.RateValue,
			Previous: record.PreviousRateValue,
		}
	}

	return json.Marshal(doc)
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
