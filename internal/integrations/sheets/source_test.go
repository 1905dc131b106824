package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestSource(t *testing.T, srv *httptest.Server, readRange string) *Source {
	t.Helper()
	src, err := NewSource(context.Background(), "sheet-123", readRange,
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return src
}

func TestNewSource_EmptyID(t *testing.T) {
	_, err := NewSource(context.Background(), " ", "")
	require.ErrorContains(t, err, "spreadsheet id")
}

func TestSource_Rows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v4/spreadsheets/sheet-123/values/A2:K", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"range": "Propiedades!A2:K3",
			"majorDimension": "ROWS",
			"values": [
				["P1", "Venta", "Palermo", "Honduras 5000", "3", "120000", "USD", "80", "Luminoso", "https://a/1.jpg, https://a/2.jpg", "si"],
				["P2", "alquiler", "Belgrano"]
			]
		}`))
	}))
	defer srv.Close()

	src := newTestSource(t, srv, "")
	rows, err := src.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[0], 11)
	require.Equal(t, "P1", rows[0][0])
	require.Equal(t, "https://a/1.jpg, https://a/2.jpg", rows[0][9])
	require.Equal(t, []string{"P2", "alquiler", "Belgrano"}, rows[1])
}

func TestSource_Rows_NumericCells(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"values": [["P9", "Venta", "Nuñez", "", 2, 95000.5, "USD"], ["P10", "Alquiler", "Caballito", "", 3, 1500000, "ARS", 120000000]]}`))
	}))
	defer srv.Close()

	src := newTestSource(t, srv, "Hoja1!A2:K")
	rows, err := src.Rows(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"P9", "Venta", "Nuñez", "", "2", "95000.5", "USD"}, rows[0])
	require.Equal(t, []string{"P10", "Alquiler", "Caballito", "", "3", "1500000", "ARS", "120000000"}, rows[1])
}

func TestCellString_LargeNumbersHaveNoExponent(t *testing.T) {
	require.Equal(t, "1500000", cellString(float64(1500000)))
	require.Equal(t, "2500000.75", cellString(2500000.75))
	require.Equal(t, "", cellString(nil))
	require.Equal(t, "true", cellString(true))
}

func TestSource_Rows_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"range": "A2:K"}`))
	}))
	defer srv.Close()

	rows, err := newTestSource(t, srv, "").Rows(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSource_Rows_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission"}}`))
	}))
	defer srv.Close()

	_, err := newTestSource(t, srv, "").Rows(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sheets: get values")
	require.Contains(t, err.Error(), "403")
}

func TestServiceAccount(t *testing.T) {
	require.Len(t, ServiceAccount(`{"type":"service_account"}`), 2)
}
