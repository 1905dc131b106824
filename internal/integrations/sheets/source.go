// Package sheets reads listing rows from a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// DefaultRange skips the header row and covers the eleven listing columns.
const DefaultRange = "A2:K"

// Source implements listing.Source over the Sheets values API.
type Source struct {
	values        *gsheets.SpreadsheetsValuesService
	spreadsheetID string
	readRange     string
}

// ServiceAccount returns the client options that authenticate with a
// service-account JSON key and request read-only access.
func ServiceAccount(credentialsJSON string) []option.ClientOption {
	return []option.ClientOption{
		option.WithCredentialsJSON([]byte(credentialsJSON)),
		option.WithScopes(gsheets.SpreadsheetsReadonlyScope),
	}
}

// NewSource builds a Source for spreadsheetID. An empty readRange means DefaultRange.
func NewSource(ctx context.Context, spreadsheetID, readRange string, opts ...option.ClientOption) (*Source, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id must not be empty")
	}
	if strings.TrimSpace(readRange) == "" {
		readRange = DefaultRange
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Source{
		values:        gsheets.NewSpreadsheetsValuesService(svc),
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
	}, nil
}

// Rows returns every row in the configured range as strings.
// Short rows are returned as-is; trailing empty cells are omitted by the API.
func (s *Source) Rows(ctx context.Context) ([][]string, error) {
	resp, err := s.values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get values %q: %w", s.readRange, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		row := make([]string, len(r))
		for i, cell := range r {
			row[i] = cellString(cell)
		}
		rows = append(rows, row)
	}
	slog.Debug("sheets: rows fetched", "range", resp.Range, "rows", len(rows))
	return rows, nil
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}
