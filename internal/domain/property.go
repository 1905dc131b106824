package domain

// TransactionKind distinguishes sale listings from rentals.
type TransactionKind string

const (
	KindSale   TransactionKind = "Venta"
	KindRental TransactionKind = "Alquiler"
)

// Currency of a listing price.
type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"
)

// Property is a single row of the listing spreadsheet.
type Property struct {
	ID          string          `json:"id"`
	Kind        TransactionKind `json:"tipo"`
	Location    string          `json:"ubicacion"`
	Address     string          `json:"direccion"`
	Rooms       int             `json:"ambientes"`
	Price       float64         `json:"precio"`
	Currency    Currency        `json:"moneda"`
	Area        float64         `json:"superficie"`
	Description string          `json:"descripcion"`
	Photos      []string        `json:"fotos"`
	Available   bool            `json:"disponible"`
}
