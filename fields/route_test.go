package fields

import (
	"testing"

	"github.com/use-agent/listingd/models"
)

func TestRouteRows(t *testing.T) {
	routes := []Route{
		{Match: "terrain", Field: "external_surface"},
		{Match: "surface", Field: "internal_surface"},
		{Match: "Pièces", Field: "total_rooms"},
	}
	rows := []models.Row{
		{Title: "Nombre de pièces", Value: "4"},
		{Title: "Surface terrain", Value: "300 m²"},
		{Title: "Surface habitable", Value: "92 m²"},
		{Title: "pièces (annexe)", Value: "5"},
		{Title: "Exposition", Value: "Sud"},
	}

	got := RouteRows(routes, rows, nil)

	want := map[string]string{
		"total_rooms":      "4",
		"external_surface": "300 m²",
		"internal_surface": "92 m²",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d routed fields, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestRouteRows_SkipsResolvedFields(t *testing.T) {
	routes := []Route{{Match: "pièces", Field: "total_rooms"}}
	rows := []models.Row{{Title: "Pièces", Value: "4"}}

	got := RouteRows(routes, rows, map[string]bool{"total_rooms": true})
	if len(got) != 0 {
		t.Errorf("expected no routing for an already resolved field, got %v", got)
	}
}

func TestFormatRows(t *testing.T) {
	rows := []models.Row{
		{Title: "Pièces", Value: "4"},
		{Title: "", Value: "Cave"},
		{Title: "Ascenseur", Value: ""},
		{},
	}
	want := "Pièces: 4\nCave\nAscenseur"
	if got := FormatRows(rows); got != want {
		t.Errorf("FormatRows = %q, want %q", got, want)
	}
}

func TestSplitRowText(t *testing.T) {
	r := SplitRowText("  Chauffage\n  Gaz collectif ")
	if r.Title != "Chauffage" || r.Value != "Gaz collectif" {
		t.Errorf("SplitRowText = %+v", r)
	}
	r = SplitRowText("Balcon")
	if r.Title != "Balcon" || r.Value != "" {
		t.Errorf("SplitRowText single line = %+v", r)
	}
}
