package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html/charset"

	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/pkg/utils"
)

type xmlValute struct {
	ID       string `xml:"ID,attr"`
	NumCode  string `xml:"NumCode"`
	CharCode string `xml:"CharCode"`
	Nominal  string `xml:"Nominal"`
	Name     string `xml:"Name"`
	Value    string `xml:"Value"`
}

var valuteTag = []byte("<Valute")

// ContainsValute reports whether the body carries at least one Valute element.
func ContainsValute(raw []byte) bool {
	return bytes.Contains(raw, valuteTag)
}

// ParseXML decodes every Valute element of the document, at any depth.
// Missing or unparseable fields degrade to zero values; only a document that
// is not XML at all is rejected.
func ParseXML(raw []byte) (*model.Snapshot, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	decoder.CharsetReader = charset.NewReaderLabel

	snapshot := model.NewSnapshot(time.Time{})
	sawElement := false

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true

		switch start.Name.Local {
		case "ValCurs":
			for _, attr := range start.Attr {
				if attr.Name.Local != "Date" {
					continue
				}
				if published, err := utils.ParseFeedDate(attr.Value); err == nil {
					snapshot.PublishedAt = published
				}
			}
		case "Valute":
			var v xmlValute
			if err := decoder.DecodeElement(&v, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
			}
			snapshot.Put(v.record())
		}
	}

	if !sawElement {
		return nil, fmt.Errorf("%w: no XML elements found", model.ErrMalformedPayload)
	}

	return snapshot, nil
}

func (v xmlValute) record() model.CurrencyRecord {
	return model.CurrencyRecord{
		ID:          strings.TrimSpace(v.ID),
		NumericCode: strings.TrimSpace(v.NumCode),
		Code:        strings.TrimSpace(v.CharCode),
		UnitCount:   parseNominal(v.Nominal),
		Name:        strings.TrimSpace(v.Name),
		RateValue:   parseRate(v.Value),
	}
}

func parseNominal(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// parseRate accepts both "89,7" and "89.7".
func parseRate(s string) float64 {
	normalized := strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	if normalized == "" {
		return 0
	}
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0
	}
	return value.InexactFloat64()
}
