// Package filter gates externally sourced candidates before they reach
// the swap pipeline: an ordered list of heuristic rules over candidate
// metadata, first reject wins, no image decoding required.
package filter

import (
	"net/url"
	"path"
	"strings"

	"github.com/lazylama/memeswap/internal/model"
)

// Rule inspects one candidate and either rejects it with a reason or
// abstains, letting the next rule decide.
type Rule func(c *candidate) (model.RejectReason, bool)

type Filter struct {
	rules []Rule
}

// candidate is the normalized metadata view the rules operate on.
type candidate struct {
	title    string // lowercased
	filename string // lowercased URL basename
	source   string // lowercased
	nsfw     bool
}

// DefaultDenylist blocks vulgar and violent terms in candidate titles.
var DefaultDenylist = []string{
	"nsfw", "porn", "sex", "nude", "naked", "fuck", "shit", "ass", "dick", "cock",
	"pussy", "damn", "hell", "bastard", "bitch", "whore", "slut", "crap",
	"piss", "rape", "kill", "murder", "suicide", "death", "gore", "blood",
	"hentai", "xxx",
}

// assetPatterns mark non-portrait assets that pollute face-search results.
var assetPatterns = []string{
	"icon", "logo", "signature", "flag", "map", "chart", "diagram",
}

// deobfuscate maps common character substitutions back to letters so
// variants like "bull$hit" and "d@mn" still match the denylist.
var deobfuscate = strings.NewReplacer(
	"$", "s",
	"@", "a",
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"!", "i",
)

// New builds the default rule chain with the given denylist (nil uses
// DefaultDenylist).
func New(denylist []string) *Filter {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	return &Filter{rules: []Rule{
		nsfwFlagRule,
		keywordRule(denylist),
		assetRule,
	}}
}

// Evaluate runs the rule chain over one candidate.
func (f *Filter) Evaluate(c model.Candidate) model.Verdict {
	norm := normalize(c)
	for _, rule := range f.rules {
		if reason, rejected := rule(norm); rejected {
			return model.Verdict{Accepted: false, Reason: reason}
		}
	}
	return model.Verdict{Accepted: true}
}

func normalize(c model.Candidate) *candidate {
	filename := ""
	if u, err := url.Parse(c.URL); err == nil {
		filename = strings.ToLower(path.Base(u.Path))
	}
	return &candidate{
		title:    strings.ToLower(c.Title),
		filename: filename,
		source:   strings.ToLower(c.Source),
		nsfw:     c.NSFW,
	}
}

func nsfwFlagRule(c *candidate) (model.RejectReason, bool) {
	if c.nsfw {
		return model.ReasonNSFW, true
	}
	return "", false
}

func keywordRule(denylist []string) Rule {
	blocked := make(map[string]bool, len(denylist))
	for _, term := range denylist {
		blocked[term] = true
	}

	return func(c *candidate) (model.RejectReason, bool) {
		for _, text := range []string{c.title, c.source, c.filename} {
			for _, token := range tokenize(deobfuscate.Replace(text)) {
				if blocked[token] {
					return model.ReasonKeyword, true
				}
				// compounds like "bullshit"; terms shorter than 4 runes
				// stay exact-match so "class" is not caught by "ass"
				for term := range blocked {
					if len(term) >= 4 && strings.Contains(token, term) {
						return model.ReasonKeyword, true
					}
				}
			}
		}
		return "", false
	}
}

func assetRule(c *candidate) (model.RejectReason, bool) {
	for _, pattern := range assetPatterns {
		if strings.Contains(c.filename, pattern) {
			return model.ReasonNonFace, true
		}
	}
	return "", false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
