package model

import (
	"fmt"
	"strings"
)

// NormalizeColor converts a highlight color to the canonical "#RRGGBB"
// uppercase form. The leading '#' is optional on input and the 3-digit
// shorthand "#RGB" is expanded. Anything else returns ErrInvalidColor.
func NormalizeColor(color string) (string, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(color), "#")

	for _, r := range hex {
		if !isHexDigit(r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidColor, color)
		}
	}

	switch len(hex) {
	case 6:
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}

	return "#" + strings.ToUpper(hex), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
