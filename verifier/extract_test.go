package verifier

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

func TestExtractVotingSite(t *testing.T) {
	tests := []struct {
		name string
		text string
		want VotingSite
	}{
		{
			name: "single line labels",
			text: "Puesto: 45 Mesa: 3 Ciudad: Bogotá",
			want: VotingSite{Precinct: "45", Table: "3", City: "Bogotá", Address: UnspecifiedF, Region: Unspecified},
		},
		{
			name: "one label per line",
			text: "DEPARTAMENTO: CUNDINAMARCA\nCIUDAD: SOACHA\nPUESTO: 7\nDIRECCIÓN: KR 7 # 12-30\nMESA: 21",
			want: VotingSite{Precinct: "7", Table: "21", City: "SOACHA", Address: "KR 7 # 12-30", Region: "CUNDINAMARCA"},
		},
		{
			name: "address without accent",
			text: "Direccion: Calle 10, local 2",
			want: VotingSite{Precinct: Unspecified, Table: UnspecifiedF, City: UnspecifiedF, Address: "Calle 10", Region: Unspecified},
		},
		{
			name: "puesto fallback only",
			text: "Puesto 123",
			want: VotingSite{Precinct: "123", Table: UnspecifiedF, City: UnspecifiedF, Address: UnspecifiedF, Region: Unspecified},
		},
		{
			name: "mesa fallback keeps labelled puesto",
			text: "Puesto: 9\nSu mesa asignada es la 14",
			want: VotingSite{Precinct: "9", Table: "14", City: UnspecifiedF, Address: UnspecifiedF, Region: Unspecified},
		},
		{
			name: "fallback rejects a long number after puesto",
			text: "Puesto 12345 zona 8",
			want: VotingSite{Precinct: Unspecified, Table: UnspecifiedF, City: UnspecifiedF, Address: UnspecifiedF, Region: Unspecified},
		},
		{
			name: "fallback takes only the number after the word",
			text: "Zona 2 puesto 31\nMesa 1500 de 2000",
			want: VotingSite{Precinct: "31", Table: UnspecifiedF, City: UnspecifiedF, Address: UnspecifiedF, Region: Unspecified},
		},
		{
			name: "nothing parseable",
			text: "Lugar de votación",
			want: VotingSite{Precinct: Unspecified, Table: UnspecifiedF, City: UnspecifiedF, Address: UnspecifiedF, Region: Unspecified},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVotingSite(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractVotingSite_AlwaysPopulated(t *testing.T) {
	// WHAT: no field is ever empty, whatever the input.
	for _, text := range []string{"", "puesto", "mesa:", "ciudad: ,", "\n\n"} {
		s := ExtractVotingSite(text)
		for _, v := range []string{s.City, s.Precinct, s.Table, s.Address, s.Region} {
			if v == "" {
				t.Fatalf("ExtractVotingSite(%q) left a field empty: %+v", text, s)
			}
		}
	}
}

func TestVotingSite_Complete(t *testing.T) {
	full := VotingSite{City: "a", Precinct: "1", Table: "2", Address: "b", Region: "c"}
	if !full.Complete() {
		t.Fatal("full site reported incomplete")
	}
	if ExtractVotingSite("Puesto: 1").Complete() {
		t.Fatal("sentinel site reported complete")
	}
}

func TestExtractName(t *testing.T) {
	if got := ExtractName("Nombre: ANA MARIA PEREZ\nPuesto: 3"); got != "ANA MARIA PEREZ" {
		t.Fatalf("ExtractName = %q", got)
	}
	if got := ExtractName("Puesto: 3"); got != "" {
		t.Fatalf("ExtractName = %q, want empty", got)
	}
}

func TestNodeText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div>Puesto:<b> 4</b><br>Mesa:   2<table><tr><td>a</td><td>b</td></tr></table></div>`))
	if err != nil {
		t.Fatal(err)
	}
	got := nodeText(doc)
	want := "Puesto: 4\nMesa: 2\na b"
	if got != want {
		t.Fatalf("nodeText = %q, want %q", got, want)
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"1234567":    "***4567",
		"1012345678": "******5678",
		"123":        "***",
		"":           "",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
