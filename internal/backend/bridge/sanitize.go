package bridge

import (
	"html"
	"strings"
)

// mojibakeReplacer repairs UTF-8 text that was decoded as Latin-1 upstream.
// Longer sequences come first so "Ã" alone does not shadow them.
var mojibakeReplacer = strings.NewReplacer(
	"Ã\u00a0", "à",
	"Ã ", "à",
	"Ã¨", "è",
	"Ã©", "é",
	"Ã¬", "ì",
	"Ã²", "ò",
	"Ã¹", "ù",
	"Ã€", "À",
	"Ãˆ", "È",
	"Ã‰", "É",
	"ÃŒ", "Ì",
	"Ã™", "Ù",
	"Ã\u0092", "Ò",
)

// SanitizeText decodes HTML entities, repairs mojibake in Italian accented
// letters and blanks out replacement characters.
func SanitizeText(text string) string {
	decoded := html.UnescapeString(text)
	decoded = mojibakeReplacer.Replace(decoded)
	return strings.ReplaceAll(decoded, "�", " ")
}
