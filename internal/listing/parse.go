package listing

import (
	"strconv"
	"strings"

	"realestate-bot/internal/domain"
)

// Column order of the listing spreadsheet.
const (
	colID = iota
	colKind
	colLocation
	colAddress
	colRooms
	colPrice
	colCurrency
	colArea
	colDescription
	colPhotos
	colAvailable
)

// ParseRow converts a spreadsheet row into a Property. Rows without an id or
// with an unknown transaction kind are rejected.
func ParseRow(row []string) (domain.Property, bool) {
	id := cell(row, colID)
	if id == "" {
		return domain.Property{}, false
	}
	var kind domain.TransactionKind
	switch strings.ToLower(cell(row, colKind)) {
	case "venta":
		kind = domain.KindSale
	case "alquiler":
		kind = domain.KindRental
	default:
		return domain.Property{}, false
	}

	currency := domain.CurrencyARS
	if strings.ToUpper(cell(row, colCurrency)) == "USD" {
		currency = domain.CurrencyUSD
	}

	return domain.Property{
		ID:          id,
		Kind:        kind,
		Location:    cell(row, colLocation),
		Address:     cell(row, colAddress),
		Rooms:       parseInt(cell(row, colRooms)),
		Price:       parseFloat(cell(row, colPrice)),
		Currency:    currency,
		Area:        parseFloat(cell(row, colArea)),
		Description: cell(row, colDescription),
		Photos:      splitPhotos(cell(row, colPhotos)),
		Available:   strings.ToLower(cell(row, colAvailable)) != "no",
	}, true
}

// ParseRows parses every row and keeps only available properties.
func ParseRows(rows [][]string) []domain.Property {
	out := make([]domain.Property, 0, len(rows))
	for _, row := range rows {
		p, ok := ParseRow(row)
		if !ok || !p.Available {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FindByIDs resolves ids in the order given, skipping unknown ids.
func FindByIDs(props []domain.Property, ids []string) []domain.Property {
	byID := make(map[string]int, len(props))
	for i, p := range props {
		if _, dup := byID[p.ID]; !dup {
			byID[p.ID] = i
		}
	}
	out := make([]domain.Property, 0, len(ids))
	for _, id := range ids {
		if i, ok := byID[strings.TrimSpace(id)]; ok {
			out = append(out, props[i])
		}
	}
	return out
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseInt accepts a leading integer ("3 amb" -> 3); anything else is 0.
func parseInt(s string) int {
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// parseFloat accepts a leading decimal number ("85.5m2" -> 85.5); anything else is 0.
func parseFloat(s string) float64 {
	end := 0
	dot := false
scan:
	for ; end < len(s); end++ {
		switch c := s[end]; {
		case c >= '0' && c <= '9':
		case c == '.' && !dot:
			dot = true
		case c == '-' && end == 0:
		default:
			break scan
		}
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}

func splitPhotos(s string) []string {
	photos := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			photos = append(photos, p)
		}
	}
	return photos
}
