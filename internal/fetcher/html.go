package fetcher

import (
	"html"
	"mime"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)\b.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// ExtractText reduces a response body to plain text. HTML is decoded per the
// Content-Type charset parameter before markup is stripped; plain text and
// unknown types pass through after charset decoding only.
func ExtractText(body []byte, contentType string) (string, error) {
	mediaType := ""
	params := map[string]string{}
	if contentType != "" {
		mt, p, err := mime.ParseMediaType(contentType)
		if err == nil {
			mediaType = mt
			params = p
		}
	}

	text := string(body)
	if charset, ok := params["charset"]; ok && !strings.EqualFold(charset, "utf-8") {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
		}
		decoded, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", eris.Wrap(err, "fetcher: decode charset")
		}
		text = string(decoded)
	}

	if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		text = stripHTML(text)
	}
	return strings.TrimSpace(text), nil
}

func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, "\n")
	s = html.UnescapeString(s)
	s = spaceRe.ReplaceAllString(s, " ")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return s
}
