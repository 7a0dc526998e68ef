package verifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		page string
		want Kind
	}{
		{
			name: "interstitial",
			page: `<div class="cf-im-under-attack"></div>`,
			want: KindBlocked,
		},
		{
			name: "interstitial beats data",
			page: `<table><tr><td>Puesto: 4</td></tr></table><div class="cf-im-under-attack"></div>`,
			want: KindBlocked,
		},
		{
			name: "negative in alert",
			page: `<div class="alert">El documento no registra en el censo</div>`,
			want: KindNotRegistered,
		},
		{
			name: "negative accent insensitive",
			page: `<span class="mensaje-error">Cédula INVÁLIDA</span>`,
			want: KindNotRegistered,
		},
		{
			name: "negative by class substring",
			page: `<p class="form-error-text">Documento no encontrado</p>`,
			want: KindNotRegistered,
		},
		{
			name: "negative beats data",
			page: `<div class="error">no se encuentra</div><table><tr><td>Mesa: 1</td></tr></table>`,
			want: KindNotRegistered,
		},
		{
			name: "error element without phrase is not negative",
			page: `<div class="error">Intente más tarde</div>`,
			want: KindAmbiguous,
		},
		{
			name: "data in result block",
			page: `<section class="datos-votante">Lugar: Colegio Distrital</section>`,
			want: KindFound,
		},
		{
			name: "data in div behind a result container",
			page: `<div class="info-votante"></div><div><b>Puesto</b> 12</div>`,
			want: KindFound,
		},
		{
			name: "div data without result container",
			page: `<div><b>Puesto</b> 12</div>`,
			want: KindAmbiguous,
		},
		{
			name: "form page mentioning lugar de votación",
			page: `<div class="container"><h1>Consulta de lugar de votación</h1><form><input name="cedula"><button type="submit">Consultar</button></form></div>`,
			want: KindAmbiguous,
		},
		{
			name: "nothing",
			page: `<html><body><h1>Consulta</h1></body></html>`,
			want: KindAmbiguous,
		},
		{
			name: "script text ignored",
			page: `<script>var puesto = 1;</script><p>hola</p>`,
			want: KindAmbiguous,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.page)
			if got.Kind != tt.want {
				t.Fatalf("Classify = %s, want %s", got.Kind, tt.want)
			}
			if (got.Kind == KindFound) != (got.Site != nil) {
				t.Fatalf("site presence does not match kind: %+v", got)
			}
		})
	}
}

func TestClassify_HeaderRow(t *testing.T) {
	// WHAT: a header row of bare labels is paired with the value row.
	page := `<table>
		<thead><tr><th>Departamento</th><th>Municipio</th><th>Puesto</th><th>Dirección</th><th>Mesa</th></tr></thead>
		<tbody><tr><td>ANTIOQUIA</td><td>MEDELLIN</td><td>IE San José</td><td>CL 50 # 40-20</td><td>12</td></tr></tbody>
	</table>`

	got := Classify(page)
	if got.Kind != KindFound {
		t.Fatalf("kind = %s", got.Kind)
	}
	want := VotingSite{
		Region:   "ANTIOQUIA",
		City:     "MEDELLIN",
		Precinct: "No especificado",
		Address:  "CL 50 # 40-20",
		Table:    "12",
	}
	if diff := cmp.Diff(want, *got.Site); diff != "" {
		t.Fatalf("site mismatch (-want +got):\n%s", diff)
	}
}

func TestClassification_Result(t *testing.T) {
	site := VotingSite{City: "Cali"}
	tests := []struct {
		cl   Classification
		want Result
	}{
		{Classification{Kind: KindFound, Site: &site, Name: "ANA"}, Result{Found: true, Kind: KindFound, VotingSite: &site, Name: "ANA"}},
		{Classification{Kind: KindNotRegistered}, Result{Kind: KindNotRegistered, ErrorMessage: MsgNotRegistered}},
		{Classification{Kind: KindBlocked}, Result{Kind: KindBlocked, ErrorMessage: MsgBlocked}},
		{Classification{Kind: KindAmbiguous}, Result{Kind: KindAmbiguous, ErrorMessage: MsgAmbiguous}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.cl.Result()); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tt.cl.Kind, diff)
		}
	}
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindFound, KindNotRegistered} {
		if !k.Authoritative() || k.Retryable() {
			t.Errorf("%s: want authoritative, not retryable", k)
		}
	}
	for _, k := range []Kind{KindBlocked, KindTimeout, KindAmbiguous, KindError} {
		if k.Authoritative() || !k.Retryable() {
			t.Errorf("%s: want retryable, not authoritative", k)
		}
	}
	if KindLayoutMismatch.Retryable() || KindLayoutMismatch.Authoritative() {
		t.Error("layout_mismatch needs maintenance, not a retry")
	}
}
