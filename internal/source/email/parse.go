package email

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/normalize"
	"jobmatch-engine/internal/source/util"
)

const (
	maxMessageBytes = 25 << 20
	maxPartBytes    = 5 << 20
)

// body is the decoded content of one alert email.
type body struct {
	MessageID string
	Subject   string
	Plain     string
	HTML      string
}

// parseRFC822 reads Message-Id, Subject and the best text/plain and
// text/html parts.
func parseRFC822(raw []byte, fallbackSubject string) body {
	out := body{Subject: fallbackSubject}
	if len(raw) == 0 {
		return out
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		out.Plain = string(raw)
		return out
	}

	out.MessageID = strings.TrimSpace(msg.Header.Get("Message-Id"))
	if s := strings.TrimSpace(msg.Header.Get("Subject")); s != "" {
		out.Subject = s
	}
	out.Subject = decodeRFC2047(out.Subject)

	bodyRaw, _ := io.ReadAll(io.LimitReader(msg.Body, maxMessageBytes))
	out.Plain, out.HTML = extractMIMETextParts(msg.Header, bodyRaw)
	if out.Plain == "" && out.HTML == "" {
		out.Plain = string(bodyRaw)
	}
	return out
}

func extractMIMETextParts(h mail.Header, b []byte) (plain, htmlPart string) {
	cte := strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding")))
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return string(decodeTransferEncoding(b, cte)), ""
	}
	mediaType = strings.ToLower(mediaType)

	if !strings.HasPrefix(mediaType, "multipart/") {
		s := string(decodeTransferEncoding(b, cte))
		if strings.HasPrefix(mediaType, "text/html") {
			return "", s
		}
		return s, ""
	}

	boundary := params["boundary"]
	if boundary == "" {
		return string(decodeTransferEncoding(b, cte)), ""
	}

	mr := multipart.NewReader(bytes.NewReader(b), boundary)
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		partCTE := strings.ToLower(strings.TrimSpace(p.Header.Get("Content-Transfer-Encoding")))
		pMedia, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
		pMedia = strings.ToLower(pMedia)

		pb, _ := io.ReadAll(io.LimitReader(p, maxPartBytes))

		if strings.HasPrefix(pMedia, "multipart/") {
			pl, ht := extractMIMETextParts(mail.Header(p.Header), pb)
			if len(ht) > len(htmlPart) {
				htmlPart = ht
			}
			if len(pl) > len(plain) {
				plain = pl
			}
			continue
		}

		pb = decodeTransferEncoding(pb, partCTE)
		switch {
		case strings.HasPrefix(pMedia, "text/html"):
			if len(pb) > len(htmlPart) {
				htmlPart = string(pb)
			}
		case strings.HasPrefix(pMedia, "text/plain"):
			if len(pb) > len(plain) {
				plain = string(pb)
			}
		}
	}
	return plain, htmlPart
}

func decodeTransferEncoding(b []byte, cte string) []byte {
	var r io.Reader
	switch cte {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, bytes.NewReader(bytes.ReplaceAll(b, []byte("\r\n"), nil)))
	case "quoted-printable":
		r = quotedprintable.NewReader(bytes.NewReader(b))
	default:
		return b
	}
	out, err := io.ReadAll(io.LimitReader(r, maxPartBytes))
	if err != nil && len(out) == 0 {
		return b
	}
	return out
}

func decodeRFC2047(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	dec := new(mime.WordDecoder)
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

// link is one candidate posting URL with the anchor text around it.
type link struct {
	URL     string
	Context string
}

var reNakedURL = regexp.MustCompile(`https?://[^\s<>"']+`)

// extractLinks collects anchors from the HTML part and naked URLs from the
// plain part, deduplicated by canonical URL in first-seen order.
func extractLinks(b body) []link {
	var out []link
	seen := map[string]int{}
	add := func(raw, ctx string) {
		raw = strings.TrimRight(strings.TrimSpace(raw), ".,);:]\"'")
		if raw == "" {
			return
		}
		key := util.CanonicalizeURL(raw)
		if i, ok := seen[key]; ok {
			if len(ctx) > len(out[i].Context) {
				out[i].Context = ctx
			}
			return
		}
		seen[key] = len(out)
		out = append(out, link{URL: key, Context: ctx})
	}

	if b.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.HTML)); err == nil {
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				txt := util.CleanText(s.Text())
				if isChromeAnchor(txt) {
					return
				}
				add(href, txt)
			})
		}
	}
	text := b.Plain
	if text == "" && b.HTML != "" {
		text = normalize.PlainText(b.HTML)
	}
	for _, u := range reNakedURL.FindAllString(text, -1) {
		add(u, "")
	}
	return out
}

func isChromeAnchor(txt string) bool {
	lt := strings.ToLower(txt)
	return lt == "manage alerts" ||
		strings.Contains(lt, "job alerts") ||
		strings.Contains(lt, "unsubscribe") ||
		strings.Contains(lt, "privacy") ||
		strings.Contains(lt, "terms")
}

var denySubstrings = []string{
	"unsubscribe",
	"email-preferences",
	"preferences",
	"privacy",
	"terms",
	"view-in-browser",
	"viewaswebpage",
	"tracking",
	"pixel",
	"beacon",
	"doubleclick",
	"mandrillapp",
	"sendgrid",
	"mailchimp",
	"list-manage",
	"lnkd.in",
	"goo.gl",
	"//t.co/",
	"linkedin.com/comm/jobs/alerts",
	"linkedin.com/jobs/alerts",
	"linkedin.com/comm/jobs/settings",
	"linkedin.com/jobs/settings",
	"linkedin.com/comm/notifications",
	"linkedin.com/help",
	"linkedin.com/legal",
}

var allowHints = []string{
	"/jobs/",
	"/job/",
	"/career",
	"greenhouse.io",
	"lever.co",
	"myworkdayjobs.com",
	"icims.com",
	"smartrecruiters.com",
	"ashbyhq.com",
	"breezy.hr",
	"jobvite.com",
	"applytojob.com",
	"hh.ru/vacancy",
}

// filterJobLinks keeps links that look like a single posting, capped at max.
func filterJobLinks(links []link, max int) []link {
	out := make([]link, 0, len(links))
	for _, l := range links {
		lu := strings.ToLower(l.URL)
		if containsAny(lu, denySubstrings) || !containsAny(lu, allowHints) {
			continue
		}
		if isLinkedInSearchURL(l.URL) || util.URLIsTooGeneric(l.URL) {
			continue
		}
		out = append(out, l)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isLinkedInSearchURL(canon string) bool {
	u, err := url.Parse(canon)
	if err != nil || !strings.Contains(u.Host, "linkedin.com") {
		return false
	}
	p := strings.ToLower(u.Path)
	if strings.Contains(p, "/jobs/view/") {
		return false
	}
	return strings.Contains(p, "/jobs/search") || strings.Contains(p, "/comm/jobs/search")
}

// makeNativeID identifies one posting link inside one message. Without a
// Message-Id the sender and subject stand in for it.
func makeNativeID(messageID, canonURL, subject, from string) string {
	var base string
	if messageID != "" {
		base = "mid:" + messageID + "|url:" + canonURL
	} else {
		base = "from:" + from + "|sub:" + subject + "|url:" + canonURL
	}
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

var (
	// “software engineer”: Centro - Software Engineer - Remote and more
	reQuotedKwCompanyTitleTail = regexp.MustCompile(`^[“"](.*?)[”"]:\s*(.*?)\s*-\s*(.*?)\s*-\s*(.*)$`)

	// Christus Health and others are hiring for Data Engineer II in and around Irving, TX
	reHiringForInAround = regexp.MustCompile(`^(.*?)\s+and\s+others\s+are\s+hiring\s+for\s+(.*?)\s+in\s+(?:and\s+around\s+)?(.*)$`)

	// Company is hiring for Title in Location
	reHiringForIn = regexp.MustCompile(`^(.*?)\s+is\s+hiring\s+for\s+(.*?)\s+in\s+(.*)$`)

	// Company - Title - Location
	reCompanyTitleLocationDash = regexp.MustCompile(`^(.*?)\s*-\s*(.*?)\s*-\s*(.*)$`)
)

// subjectFields is what an alert subject line reveals about the posting.
type subjectFields struct {
	Company  string
	Title    string
	Location string
	WorkMode string
}

func parseFromSubject(subj string) subjectFields {
	subj = strings.TrimSpace(subj)
	if subj == "" {
		return subjectFields{WorkMode: domain.WorkModeUnknown}
	}

	fromParts := func(company, title, loc string) subjectFields {
		loc = strings.TrimSpace(loc)
		return subjectFields{
			Company:  strings.TrimSpace(company),
			Title:    strings.TrimSpace(title),
			Location: cleanLocation(loc),
			WorkMode: util.InferWorkModeFromText(loc, subj, ""),
		}
	}

	if m := reQuotedKwCompanyTitleTail.FindStringSubmatch(subj); len(m) == 5 {
		return fromParts(m[2], m[3], m[4])
	}
	if m := reHiringForInAround.FindStringSubmatch(subj); len(m) == 4 {
		return fromParts(m[1], m[2], m[3])
	}
	if m := reHiringForIn.FindStringSubmatch(subj); len(m) == 4 {
		return fromParts(m[1], m[2], m[3])
	}
	if m := reCompanyTitleLocationDash.FindStringSubmatch(subj); len(m) == 4 {
		return fromParts(m[1], m[2], m[3])
	}
	return subjectFields{
		Title:    guessTitleFromSubject(subj),
		WorkMode: util.InferWorkModeFromText("", subj, ""),
	}
}

// parseFromContext reads "Title · Company · Location" style anchor text.
func parseFromContext(s string) subjectFields {
	f := subjectFields{WorkMode: domain.WorkModeUnknown}
	parts := splitAny(s, []string{" · ", " • ", " - ", " | "})
	if len(parts) >= 1 {
		f.Title = parts[0]
	}
	if len(parts) >= 2 {
		f.Company = parts[1]
	}
	if len(parts) >= 3 {
		f.Location = cleanLocation(parts[2])
		f.WorkMode = util.InferWorkModeFromText(parts[2], s, "")
	}
	return f
}

func splitAny(s string, seps []string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, sep := range seps {
		if !strings.Contains(s, sep) {
			continue
		}
		var out []string
		for _, p := range strings.Split(s, sep) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{s}
}

func cleanLocation(loc string) string {
	loc = strings.TrimSpace(loc)
	for _, suf := range []string{"and more", "and More"} {
		loc = strings.TrimSpace(strings.TrimSuffix(loc, suf))
	}
	loc = strings.TrimSpace(strings.TrimRight(loc, ".,"))
	switch strings.ToLower(loc) {
	case "remote", "hybrid", "on-site", "onsite":
		return ""
	}
	return util.NormalizeLocation(loc)
}

func guessCompanyFromFrom(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return "Unknown"
	}
	if i := strings.Index(from, "<"); i > 0 {
		if name := strings.Trim(strings.TrimSpace(from[:i]), `"`); name != "" {
			return name
		}
	}
	if at := strings.LastIndex(from, "@"); at >= 0 {
		d := strings.Trim(from[at+1:], "> ")
		if first, _, _ := strings.Cut(d, "."); first != "" {
			return strings.ToUpper(first[:1]) + first[1:]
		}
	}
	return "Unknown"
}

func guessTitleFromSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for _, p := range []string{"fwd:", "fw:", "re:"} {
		if strings.HasPrefix(strings.ToLower(s), p) {
			s = strings.TrimSpace(s[len(p):])
		}
	}
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120])
	}
	return s
}

func containsAnyCI(s string, any []string) bool {
	ls := strings.ToLower(s)
	for _, a := range any {
		a = strings.TrimSpace(a)
		if a != "" && strings.Contains(ls, strings.ToLower(a)) {
			return true
		}
	}
	return false
}
