package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reTag = regexp.MustCompile(`(?i)</?[a-z][a-z0-9]*(\s[^<>]*)?/?>|<!--|&[a-z]+;|&#[0-9]+;`)

const blockSelectors = "address,article,aside,blockquote,br,dd,div,dl,dt,footer,h1,h2,h3,h4,h5,h6," +
	"header,hr,li,main,nav,ol,p,pre,section,table,td,th,tr,ul"

// LooksLikeHTML reports whether s carries markup or entities worth parsing.
func LooksLikeHTML(s string) bool {
	return strings.ContainsAny(s, "<&") && reTag.MatchString(s)
}

// PlainText extracts visible text from an HTML fragment or document.
// Block elements are separated by whitespace and runs of whitespace collapse
// to a single space. Input that fails to parse is returned cleaned but
// otherwise unchanged.
func PlainText(s string) string {
	if !LooksLikeHTML(s) {
		return CleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CleanText(s)
	}
	doc.Find("script,style,noscript,template").Remove()
	doc.Find(blockSelectors).Each(func(_ int, sel *goquery.Selection) {
		sel.PrependHtml(" ").AppendHtml(" ")
	})
	return CleanText(doc.Text())
}

// CleanText collapses whitespace (including NBSP) and trims.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
