// Package markup converts Flarum's stored post XML (s9e TextFormatter output)
// into the Markdown/BBCode mix Discourse renders.
package markup

import (
	"regexp"
	"strings"
)

// Rule is one rewrite step of the transcoder.
type Rule struct {
	Name  string
	Apply func(string) string
}

const youtubeWatchURL = "https://www.youtube.com/watch?v="

var (
	literalNewlineRe = regexp.MustCompile(`\\n`)
	inlineCodeRe     = regexp.MustCompile("<C><s>`</s>(.*?)<e>`</e></C>")
	listRe           = regexp.MustCompile(`(?s)<LIST[^>]*>(.*?)</LIST>`)
	listItemRe       = regexp.MustCompile(`(?s)<LI>(?:<s>[-*+] ?</s>)?\s*(.*?)\s*</LI>`)
	styleTagRe       = regexp.MustCompile(`</?(?:SIZE|COLOR|CENTER|RIGTH|RIGHT|LEFT)(?:\s[^>]*)?>`)
	markdownLinkRe   = regexp.MustCompile(`<URL url="(.*?)"><s>\[</s>(.*?)<e>\]\(.*?\)</e></URL>`)
	bareLinkRe       = regexp.MustCompile(`<URL url="(.*?)">(.*?)</URL>`)
	imageRe          = regexp.MustCompile(`<IMG src="(.*?)">(.*?)</IMG>`)
	youtubeRe        = regexp.MustCompile(`\[youtube\](.*?)\[\\youtube\]`)
	centerRe         = regexp.MustCompile(`(?s)\[center\]\s*(.*?)\s*\[/center\]`)
	rightRe          = regexp.MustCompile(`(?s)\[right\]\s*(.*?)\s*\[/right\]`)
	leftRe           = regexp.MustCompile(`(?s)\[left\]\s*(.*?)\s*\[/left\]`)
	quoteRe          = regexp.MustCompile(`\[quote\](.*?)\[\\quote\]`)
	anyTagRe         = regexp.MustCompile(`</?[^>]+>`)
)

// rules run in this order; later rules only see what earlier ones left.
var rules = []Rule{
	{"literal-newlines", func(s string) string {
		return literalNewlineRe.ReplaceAllLiteralString(s, "")
	}},
	{"inline-code", func(s string) string {
		return inlineCodeRe.ReplaceAllString(s, "`$1`")
	}},
	{"lists", transcodeLists},
	{"style-tags", func(s string) string {
		return styleTagRe.ReplaceAllLiteralString(s, "")
	}},
	{"markdown-links", func(s string) string {
		return markdownLinkRe.ReplaceAllString(s, "[$2]($1)")
	}},
	{"bare-links", func(s string) string {
		return bareLinkRe.ReplaceAllString(s, "[$1]($1)")
	}},
	{"images", func(s string) string {
		return imageRe.ReplaceAllString(s, "![image]($1)")
	}},
	{"youtube", func(s string) string {
		return youtubeRe.ReplaceAllStringFunc(s, func(m string) string {
			url := youtubeWatchURL + youtubeRe.FindStringSubmatch(m)[1]
			return "[" + url + "](" + url + ")"
		})
	}},
	{"alignment", func(s string) string {
		s = blockOnOwnLines(s, centerRe, "center")
		s = blockOnOwnLines(s, rightRe, "right")
		return blockOnOwnLines(s, leftRe, "left")
	}},
	{"quotes", func(s string) string {
		return quoteRe.ReplaceAllStringFunc(s, func(m string) string {
			body := strings.TrimSpace(quoteRe.FindStringSubmatch(m)[1])
			return "[quote]\n" + body + "\n[/quote]"
		})
	}},
	{"strip-tags", stripUnknownTags},
}

// Rules returns the transcoder rules in application order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Transcode converts a stored Flarum post body to Discourse markup.
func Transcode(raw string) string {
	s := raw
	for _, r := range rules {
		s = r.Apply(s)
	}
	return s
}

// TranscodeTrace works like Transcode and calls fn after every rule that
// changed the text.
func TranscodeTrace(raw string, fn func(rule, result string)) string {
	s := raw
	for _, r := range rules {
		next := r.Apply(s)
		if next != s && fn != nil {
			fn(r.Name, next)
		}
		s = next
	}
	return s
}

func transcodeLists(s string) string {
	return listRe.ReplaceAllStringFunc(s, func(list string) string {
		body := listRe.FindStringSubmatch(list)[1]
		var b strings.Builder
		b.WriteString("<ul>")
		for _, item := range listItemRe.FindAllStringSubmatch(body, -1) {
			b.WriteString("<li>")
			b.WriteString(item[1])
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
		return b.String()
	})
}

// listTags are emitted by the lists rule and survive the final strip.
var listTags = map[string]bool{
	"<ul>": true, "</ul>": true,
	"<li>": true, "</li>": true,
}

func stripUnknownTags(s string) string {
	return anyTagRe.ReplaceAllStringFunc(s, func(tag string) string {
		if listTags[tag] {
			return tag
		}
		return ""
	})
}

func blockOnOwnLines(s string, re *regexp.Regexp, tag string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		body := strings.TrimSpace(re.FindStringSubmatch(m)[1])
		return "[" + tag + "]\n" + body + "\n[/" + tag + "]"
	})
}
