package domain

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMemorialName is used when the purchase carried no personalization.
const DefaultMemorialName = "In Loving Memory"

const maxMemorialNameRunes = 120

// personalizationNameKeys are checked in order on every line item.
var personalizationNameKeys = []string{"memorial_name", "honoree_name", "pet_name", "name"}

// MemorialName derives the memorial display name from the line-item
// personalization captured at checkout.
func MemorialName(items []LineItem) string {
	for _, key := range personalizationNameKeys {
		for _, item := range items {
			if name := NormalizeText(item.Personalization[key]); name != "" {
				return truncateRunes(name, maxMemorialNameRunes)
			}
		}
	}
	return DefaultMemorialName
}

// NormalizeText NFC-normalizes s and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// NormalizeCode canonicalizes a scanned or typed access code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(code)))
}

// NormalizePrefix validates and canonicalizes a batch prefix.
// Prefixes are 1-16 uppercase letters or digits.
func NormalizePrefix(prefix string) (string, error) {
	p := NormalizeCode(prefix)
	if p == "" || len(p) > 16 {
		return "", NewInvalidArgumentError("prefix must be 1-16 characters, got %q", prefix)
	}
	for _, r := range p {
		if r > unicode.MaxASCII || !(unicode.IsUpper(r) || unicode.IsDigit(r)) {
			return "", NewInvalidArgumentError("prefix %q must contain only A-Z and 0-9", prefix)
		}
	}
	return p, nil
}

// FormatCode renders the n-th code of a batch, e.g. FormatCode("TAG", 7, 4) = "TAG-0007".
func FormatCode(prefix string, n, width int) string {
	return fmt.Sprintf("%s-%0*d", prefix, width, n)
}

// SuffixWidth returns the zero-padded width used for a batch of count codes.
// At least four digits, wider when count needs it.
func SuffixWidth(count int) int {
	width := len(fmt.Sprint(count))
	if width < 4 {
		return 4
	}
	return width
}
