package article

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// AddressPrefix is the only source accepted for quiz generation.
const AddressPrefix = "https://en.wikipedia.org/wiki/"

// ErrValidation indicates the supplied address is not a supported article address.
var ErrValidation = eris.New("invalid article address")

// NormalizeAddress validates the address and returns the canonical form used as the storage key.
// Surrounding whitespace and any fragment are dropped.
func NormalizeAddress(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", eris.Wrap(ErrValidation, "address is required")
	}

	if !strings.HasPrefix(trimmed, AddressPrefix) {
		return "", eris.Wrapf(ErrValidation, "only English Wikipedia URLs are supported: %s", trimmed)
	}

	if idx := strings.IndexByte(trimmed, '#'); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	if strings.TrimSpace(strings.TrimPrefix(trimmed, AddressPrefix)) == "" {
		return "", eris.Wrapf(ErrValidation, "address is missing an article name: %s", trimmed)
	}

	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return "", eris.Wrapf(ErrValidation, "malformed address %s: %v", trimmed, err)
	}

	return trimmed, nil
}
