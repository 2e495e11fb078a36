package billing

import "testing"

func TestServicePrice_Table(t *testing.T) {
	want := map[string]float64{
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
	for tipo, price := range want {
		if got := ServicePrice(tipo); got != price {
			t.Errorf("ServicePrice(%q) = %v, want %v", tipo, got, price)
		}
	}
	if len(KnownServiceTypes()) != len(want) {
		t.Errorf("KnownServiceTypes() has %d entries, want %d", len(KnownServiceTypes()), len(want))
	}
}

func TestServicePrice_DefaultsUnknownTags(t *testing.T) {
	for _, tipo := range []string{"", "escritura", "MATRICULA-URBANA"} {
		if got := ServicePrice(tipo); got != DefaultServicePrice {
			t.Errorf("ServicePrice(%q) = %v, want default %v", tipo, got, DefaultServicePrice)
		}
	}
}
