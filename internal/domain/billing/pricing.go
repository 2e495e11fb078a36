package billing

import "sort"

// DefaultServicePrice applies to any document type missing from the table.
const DefaultServicePrice = 9.99

var servicePrices = map[string]float64{
	"matricula-urbana":      14.99,
	"matricula-rural":       14.99,
	"contrato-urbano":       9.99,
	"contrato-rural":        9.99,
	"contrato-aluguel":      9.99,
	"contrato-permuta":      9.99,
	"transcricao-matricula": 19.99,
	"analise-matricula":     14.99,
	"analise-contrato":      9.99,
	"analise-transcricao":   19.99,
}

// ServicePrice returns the BRL price for a document type.
func ServicePrice(tipo string) float64 {
	if price, ok := servicePrices[tipo]; ok {
		return price
	}
	return DefaultServicePrice
}

func KnownServiceTypes() []string {
	out := make([]string, 0, len(servicePrices))
	for k := range servicePrices {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
