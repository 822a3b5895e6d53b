package core

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Bucket is a labelled, inclusive date range used for aggregation.
type Bucket struct {
	Label string
	Start Date
	End   Date
}

// SeriesPoint is the value of a series for one bucket.
type SeriesPoint struct {
	Bucket
	Amount decimal.Decimal
}

// Series holds points oldest to newest. It encodes as a JSON object whose
// keys keep that order.
type Series []SeriesPoint

// CategoryShare is the percentage of a filtered total held by one category.
type CategoryShare struct {
	Category Category
	Percent  decimal.Decimal
}

// Breakdown lists shares in category declaration order.
type Breakdown []CategoryShare

func (s Series) Labels() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Label
	}
	return out
}

func (s Series) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(s), func(i int) (string, any) {
		return s[i].Label, s[i].Amount
	})
}

func (b Breakdown) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(b), func(i int) (string, any) {
		return string(b[i].Category), b[i].Percent.InexactFloat64()
	})
}

func marshalOrdered(n int, entry func(int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, v := entry(i)
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
