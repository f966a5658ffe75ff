// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot supplies the latest market quotes for the covered
// companies so the generation prompt can ground price talk in live data.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("equisight.orchestrator.snapshot")

// Quote is one instrument's latest observation.
type Quote struct {
	Symbol    string
	Name      string
	Price     float64
	ChangePct float64
	Currency  string
}

// QuoteProvider fetches the latest quotes for the covered instruments.
// A provider returning an empty slice is valid; the prompt simply omits
// the quote section.
type QuoteProvider interface {
	Snapshot(ctx context.Context) ([]Quote, error)
}

// InfluxQuoteProvider implements QuoteProvider against an InfluxDB bucket
// fed by the market data ingester.
//
// # Description
//
// Quotes live in the "quotes" measurement with tags symbol, name, and
// currency, and fields price and change_pct. Snapshot reads the last
// observation per symbol within the lookback window.
//
// # Thread Safety
//
// InfluxQuoteProvider is safe for concurrent use.
type InfluxQuoteProvider struct {
	client influxdb2.Client
	org    string
	bucket string
}

// NewInfluxQuoteProvider creates a provider over the given client.
func NewInfluxQuoteProvider(client influxdb2.Client, org, bucket string) *InfluxQuoteProvider {
	return &InfluxQuoteProvider{client: client, org: org, bucket: bucket}
}

// Snapshot implements the QuoteProvider interface.
func (p *InfluxQuoteProvider) Snapshot(ctx context.Context) ([]Quote, error) {
	ctx, span := tracer.Start(ctx, "InfluxQuoteProvider.Snapshot")
	defer span.End()

	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -1d)
  |> filter(fn: (r) => r._measurement == "quotes")
  |> filter(fn: (r) => r._field == "price" or r._field == "change_pct")
  |> last()
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group(columns: ["symbol"])`, p.bucket)

	result, err := p.client.QueryAPI(p.org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx quote query failed: %w", err)
	}
	defer result.Close()

	var quotes []Quote
	for result.Next() {
		record := result.Record()
		q := Quote{
			Symbol:   stringValue(record.ValueByKey("symbol")),
			Name:     stringValue(record.ValueByKey("name")),
			Currency: stringValue(record.ValueByKey("currency")),
		}
		q.Price = floatValue(record.ValueByKey("price"))
		q.ChangePct = floatValue(record.ValueByKey("change_pct"))
		if q.Symbol == "" {
			continue
		}
		quotes = append(quotes, q)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx quote result failed: %w", result.Err())
	}

	slog.Debug("Loaded market snapshot", "quotes", len(quotes))
	return quotes, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func floatValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// RenderQuotes formats quotes into the labeled prompt block. Returns ""
// for an empty slice so callers can drop the section entirely.
func RenderQuotes(quotes []Quote) string {
	if len(quotes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Live quotes:")
	for _, q := range quotes {
		label := q.Name
		if label == "" {
			label = q.Symbol
		}
		fmt.Fprintf(&b, "\n- %s: %.2f %s (%+.2f%%)", label, q.Price, q.Currency, q.ChangePct)
	}
	return b.String()
}
