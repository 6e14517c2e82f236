package article

import (
	"testing"

	"github.com/rotisserie/eris"
)

func TestNormalizeAddressAcceptsEnglishArticles(t *testing.T) {
	t.Parallel()

	got, err := NormalizeAddress("  https://en.wikipedia.org/wiki/Alan_Turing#Early_life ")
	if err != nil {
		t.Fatalf("NormalizeAddress returned error: %v", err)
	}

	if got != "https://en.wikipedia.org/wiki/Alan_Turing" {
		t.Fatalf("expected fragment and whitespace removed, got %q", got)
	}
}

func TestNormalizeAddressRejectsOtherSources(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"https://de.wikipedia.org/wiki/Alan_Turing",
		"http://en.wikipedia.org/wiki/Alan_Turing",
		"https://example.com/wiki/Alan_Turing",
		"https://en.wikipedia.org/wiki/",
		"https://en.wikipedia.org/wiki/#History",
	}

	for _, input := range inputs {
		_, err := NormalizeAddress(input)
		if err == nil {
			t.Errorf("expected error for %q", input)
			continue
		}
		if !eris.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation for %q, got %v", input, err)
		}
	}
}
