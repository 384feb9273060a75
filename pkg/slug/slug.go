package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// latin folds the accented letters that appear in service and post titles.
var latin = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
	"ç", "c", "è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i", "ı", "i",
	"ñ", "n", "ò", "o", "ó", "o", "ô", "o", "ö", "o", "õ", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u", "ğ", "g", "ş", "s",
	"&", " and ",
)

// Generate creates a URL-friendly slug from a title.
//
//	"Brand & Identity Design" -> "brand-and-identity-design"
//	"Café Rebrand 2024!"      -> "cafe-rebrand-2024"
func Generate(title string) string {
	s := latin.Replace(strings.ToLower(strings.TrimSpace(title)))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
