package translate

import (
	"context"
	"testing"
)

func TestNilTranslatorPassesThrough(t *testing.T) {
	var tr *Translator

	texts := []string{"Asha Patel", "RASTO TUTELO CHHE", "Near bus depot, Valod"}
	got, err := tr.BatchTransliterate(context.Background(), texts)
	if err != nil {
		t.Fatalf("nil translator errored: %v", err)
	}
	for i := range texts {
		if got[i] != texts[i] {
			t.Errorf("field %d changed: %q", i, got[i])
		}
	}
}

func TestNewTranslatorWithoutKey(t *testing.T) {
	tr, err := NewTranslator(context.Background(), "", "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("missing key should degrade, got error: %v", err)
	}
	if tr != nil {
		t.Error("expected nil translator without API key")
	}
}

func TestParseTransliterationResponse(t *testing.T) {
	originals := []string{"Asha Patel", "RASTO TUTELO CHHE", "Valod"}

	t.Run("all fields present", func(t *testing.T) {
		response := "Name: આશા પટેલ\nDetails: રસ્તો તૂટેલો છે\nAddress: વાલોડ"
		got := parseTransliterationResponse(response, originals)
		if got[0] != "આશા પટેલ" || got[1] != "રસ્તો તૂટેલો છે" || got[2] != "વાલોડ" {
			t.Errorf("parsed = %v", got)
		}
	})

	t.Run("missing field falls back", func(t *testing.T) {
		response := "Name: આશા પટેલ\nAddress: વાલોડ"
		got := parseTransliterationResponse(response, originals)
		if got[0] != "આશા પટેલ" {
			t.Errorf("name = %q", got[0])
		}
		if got[1] != "RASTO TUTELO CHHE" {
			t.Errorf("details did not fall back: %q", got[1])
		}
		if got[2] != "વાલોડ" {
			t.Errorf("address = %q", got[2])
		}
	})

	t.Run("garbage response keeps originals", func(t *testing.T) {
		got := parseTransliterationResponse("I cannot help with that.", originals)
		for i := range originals {
			if got[i] != originals[i] {
				t.Errorf("field %d changed on garbage response: %q", i, got[i])
			}
		}
	})

	t.Run("empty value keeps original", func(t *testing.T) {
		response := "Name: \nDetails: રસ્તો તૂટેલો છે\nAddress: વાલોડ"
		got := parseTransliterationResponse(response, originals)
		if got[0] != "Asha Patel" {
			t.Errorf("empty name did not fall back: %q", got[0])
		}
	})
}
