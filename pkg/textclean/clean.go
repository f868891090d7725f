// Package textclean converts Jira field values (HTML, Jira wiki markup, or
// Atlassian Document Format) into plain text.
package textclean

import (
	"html"
	"regexp"
	"strings"
)

var (
	reCodeBlock = regexp.MustCompile(`(?s)\{(code|noformat)[^}]*\}.*?\{(code|noformat)\}`)
	reComment   = regexp.MustCompile(`(?s)<!--.*?-->`)
	reTag       = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)
	reHeading   = regexp.MustCompile(`(?m)(^|\s)h[1-6]\.\s+`)
	reMono      = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	reMacro     = regexp.MustCompile(`\{(color|quote|panel|section|column|center|tip|info|note|warning)(:[^}]*)?\}`)
	reImage     = regexp.MustCompile(`(?i)!([^!\s|]+\.(png|jpe?g|gif|svg|bmp))(\|[^!]*)?!`)
	reLink      = regexp.MustCompile(`\[([^|\]]+)\|[^\]]+\]`)
	reMention   = regexp.MustCompile(`\[~([^\]]+)\]`)
	reBareLink  = regexp.MustCompile(`\[((?:https?|ftp|mailto):[^\]\s]+)\]`)
	reBold      = regexp.MustCompile(`\*([^*\n]+)\*`)
	reItalic    = regexp.MustCompile(`(^|\W)_([^_\n]+)_(\W|$)`)
	reCitation  = regexp.MustCompile(`\?\?([^?\n]+)\?\?`)
	reSpace     = regexp.MustCompile(`\s+`)
)

// maxPasses bounds the loops that rerun a pattern until the text is stable.
const maxPasses = 8

// Clean strips HTML and Jira wiki markup from raw and collapses whitespace.
// It never fails; an empty input yields an empty string.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	text := reCodeBlock.ReplaceAllString(raw, " ")

	// Entities are decoded before tags are stripped so escaped markup
	// cannot turn back into tags.
	text = unescape(text)
	text = reComment.ReplaceAllString(text, " ")
	text = reTag.ReplaceAllString(text, " ")

	text = reHeading.ReplaceAllString(text, "$1")
	text = reMono.ReplaceAllString(text, "$1")
	text = reMacro.ReplaceAllString(text, " ")
	text = reImage.ReplaceAllString(text, " ")
	text = reLink.ReplaceAllString(text, "$1")
	text = reMention.ReplaceAllString(text, "$1")
	text = reBareLink.ReplaceAllString(text, "$1")
	text = reBold.ReplaceAllString(text, "$1")
	text = reCitation.ReplaceAllString(text, "$1")

	// Adjacent spans share one boundary character, which a single pass
	// consumes, so italics are rerun until nothing changes.
	text = replaceUntilStable(reItalic, text, "$1$2$3")

	text = reSpace.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

func unescape(text string) string {
	for range maxPasses {
		next := html.UnescapeString(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func replaceUntilStable(re *regexp.Regexp, text, repl string) string {
	for range maxPasses {
		next := re.ReplaceAllString(text, repl)
		if next == text {
			break
		}
		text = next
	}
	return text
}
