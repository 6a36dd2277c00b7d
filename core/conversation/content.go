package conversation

import (
	"regexp"
	"strings"
)

var (
	videoMarker = regexp.MustCompile(`\[VIDEO:(.*?)\]`)
	linkMarker  = regexp.MustCompile(`\[LINK:(.*?)\]`)
)

// Content is a responder reply split into display text and attachments.
type Content struct {
	Text     string
	VideoURL string
	LinkURL  string
}

// ExtractContent strips the first [VIDEO:url] and the first [LINK:url] marker from text.
// Text without markers is returned unchanged; otherwise the remainder is trimmed.
func ExtractContent(text string) Content {
	out := Content{Text: text}
	found := false
	if url, rest, ok := cutMarker(videoMarker, out.Text); ok {
		out.VideoURL, out.Text, found = url, rest, true
	}
	if url, rest, ok := cutMarker(linkMarker, out.Text); ok {
		out.LinkURL, out.Text, found = url, rest, true
	}
	if found {
		out.Text = strings.TrimSpace(out.Text)
	}
	return out
}

func cutMarker(re *regexp.Regexp, text string) (string, string, bool) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil || loc[3] <= loc[2] {
		return "", text, false
	}
	return text[loc[2]:loc[3]], text[:loc[0]] + text[loc[1]:], true
}
