package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/tributeguard/internal/schema"
)

// spanMode controls how much text a rule returns.
type spanMode int

const (
	// spanMatch returns the matched text (or its "span" group).
	spanMatch spanMode = iota
	// spanSentence returns the whole sentence containing the match.
	spanSentence
)

// stubRule is one deterministic moderation rule.
type stubRule struct {
	category string
	re       *regexp.Regexp
	mode     spanMode
	// unless drops a match whose sentence also matches it.
	unless *regexp.Regexp
}

// causeOfDeath names what mourners are allowed to curse.
var causeOfDeath = regexp.MustCompile(`(?i)\b(?:cancer|disease|illness|sickness|covid(?:-19)?|als|death|tumou?r|stroke|dementia|alzheimer'?s|leukemia|heart attack|addiction|overdose|accident)\b`)

const insultNouns = `idiot|moron|bitch|loser|bastard|scumbag|asshole|jerk|whore|slut|waste of space|` +
	`(?:terrible|awful|horrible|disgusting|evil) (?:person|man|woman|human being)`

// stubRules encode the built-in policy: insults toward the deceased,
// religious or moral judgment, threats, sexual content and spam. Grief
// profanity ("I fucking miss you", "Fuck cancer") matches none of them.
var stubRules = []stubRule{
	{
		category: "insult",
		re: regexp.MustCompile(`(?i)\b(?:you|you're|youre|you are|you were|he was|she was|they were|he's|she's|what an?)\s+` +
			`(?:(?:a|an|such an?|one|the)\s+)?` +
			`(?P<span>(?:(?:fucking|fuckin|stupid|dumb|worthless|pathetic|ugly|fat|lazy|useless)\s+)?(?:` + insultNouns + `))\b`),
	},
	{
		category: "insult",
		re:       regexp.MustCompile(`(?i)\b(?:nobody|no one|no-one)\s+(?:ever\s+)?(?:liked|loved|cared about|will miss|misses|respected)\s+(?:you|him|her|them)\b`),
	},
	{
		category: "insult",
		re:       regexp.MustCompile(`(?i)\b(?:good riddance|glad (?:you're|you are|he's|she's|they're) (?:dead|gone)|world is better without (?:you|him|her|them))\b`),
	},
	{
		category: "judgment",
		re:       regexp.MustCompile(`(?i)\b(?:go to|burn in|rot in) hell\b`),
		mode:     spanSentence,
		unless:   causeOfDeath,
	},
	{
		category: "judgment",
		re:       regexp.MustCompile(`(?i)\b(?:(?:you|he|she|they) deserved (?:this|it|that|to die|what (?:you|he|she|they) got)|got what (?:you|he|she|they) deserved)\b`),
		mode:     spanSentence,
	},
	{
		category: "judgment",
		re:       regexp.MustCompile(`(?i)\bgod (?:has |have )?(?:judged|punished|condemned|struck down)\b`),
		mode:     spanSentence,
	},
	{
		category: "judgment",
		re:       regexp.MustCompile(`(?i)\b(?:paying|punished|burning|suffering) for (?:your|his|her|their) sins\b`),
	},
	{
		category: "threat",
		re:       regexp.MustCompile(`(?i)\bi(?:'ll| will| am going to|'m going to|'m gonna| want to| wanna) (?:kill|hurt|find|beat|shoot|stab) (?:you|him|her|them|your family)\b`),
	},
	{
		category: "sexual",
		re:       regexp.MustCompile(`(?i)\b(?:send nudes|nudes|horny|porn\w*|sexy (?:pics|photos|body)|hot body)\b`),
	},
	{
		category: "spam",
		re:       regexp.MustCompile(`(?i)(?:https?://\S+|\bwww\.\S+)`),
	},
	{
		category: "spam",
		re:       regexp.MustCompile(`(?i)\b(?:buy now|click here|free money|promo code|discount code|limited offer|check out my \w+|follow me on \w+)\b`),
	},
}

// slurs are matched per token after leetspeak and diacritic folding. Plural
// forms are folded to the singular before lookup.
var slurs = map[string]bool{
	"faggot": true,
	"fag":    true,
	"nigger": true,
	"nigga":  true,
	"retard": true,
	"tranny": true,
	"kike":   true,
	"spic":   true,
	"chink":  true,
	"dyke":   true,
}

var leetMap = map[byte]byte{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'|': 'i',
}

var tokenRe = regexp.MustCompile(`[\pL\pN]+`)

// Stub applies the built-in policy with fixed rules. It ignores
// call.System: every call is judged by the default rules. Output is
// deterministic for a given text.
type Stub struct{}

// NewStub returns the deterministic rule-based extractor.
func NewStub() *Stub {
	return &Stub{}
}

type span struct {
	start, end int
}

// Extract returns {"flaggedContent": [...]} for call.Prompt.
func (s *Stub) Extract(ctx context.Context, call Call) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(schema.FlaggedContent{FlaggedContent: Flag(call.Prompt)})
}

// Flag returns the flagged spans of text in text order. Overlapping
// candidates collapse to the earliest, longest one.
func Flag(text string) []string {
	folded := foldLeet(text)

	var candidates []span
	for _, r := range stubRules {
		for _, m := range r.re.FindAllStringSubmatchIndex(folded, -1) {
			start, end := m[0], m[1]
			if idx := r.re.SubexpIndex("span"); idx > 0 && m[2*idx] >= 0 {
				start, end = m[2*idx], m[2*idx+1]
			}
			if r.mode == spanSentence {
				start, end = sentenceBounds(text, start, end)
			}
			if r.unless != nil {
				if s, e := sentenceBounds(text, m[0], m[1]); r.unless.MatchString(text[s:e]) {
					continue
				}
			}
			candidates = append(candidates, span{start, end})
		}
	}

	for _, loc := range tokenRe.FindAllStringIndex(folded, -1) {
		if isSlur(folded[loc[0]:loc[1]]) {
			candidates = append(candidates, span{loc[0], loc[1]})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].end > candidates[j].end
	})

	flagged := []string{}
	covered := -1
	for _, c := range candidates {
		if c.start < covered || c.end <= c.start {
			continue
		}
		flagged = append(flagged, text[c.start:c.end])
		covered = c.end
	}
	return flagged
}

// foldLeet replaces leetspeak characters in words that contain at least one
// letter by the letters they imitate. The result has the same byte length
// as text, so match offsets apply to the original.
func foldLeet(text string) string {
	b := []byte(text)
	for i := 0; i < len(b); {
		if !isWordByte(b[i]) {
			i++
			continue
		}
		j := i
		for j < len(b) && isWordByte(b[j]) {
			j++
		}
		foldRun(b[i:j])
		i = j
	}
	return string(b)
}

// foldRun folds the leet characters of one word run in place. Between the
// first and last letter every leet character folds; at the edges only
// digits, '$' and '@' do, so "hell!" keeps its punctuation.
func foldRun(run []byte) {
	first, last := -1, -1
	for k, c := range run {
		if isASCIILetter(c) {
			if first < 0 {
				first = k
			}
			last = k
		}
	}
	if first < 0 {
		return
	}
	for k, c := range run {
		repl, ok := leetMap[c]
		if !ok {
			continue
		}
		if (k > first && k < last) || isEdgeLeet(c) {
			run[k] = repl
		}
	}
}

func isEdgeLeet(c byte) bool {
	return (c >= '0' && c <= '9') || c == '$' || c == '@'
}

func isWordByte(c byte) bool {
	_, leet := leetMap[c]
	return leet || isASCIILetter(c)
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isSlur folds a token (case, diacritics, trailing plural) and looks it up
// in the slur list. Leetspeak is already folded by the caller.
func isSlur(token string) bool {
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(normFunc, strings.ToLower(token))
	if err != nil {
		folded = strings.ToLower(token)
	}

	if slurs[folded] {
		return true
	}
	return strings.HasSuffix(folded, "s") && slurs[strings.TrimSuffix(folded, "s")]
}

// sentenceBounds widens [start, end) to the sentence that contains it,
// excluding terminal punctuation and surrounding whitespace.
func sentenceBounds(text string, start, end int) (int, int) {
	s := start
	for s > 0 && !isSentenceBreak(text[s-1]) {
		s--
	}
	e := end
	for e < len(text) && !isSentenceBreak(text[e]) {
		e++
	}
	for s < e && isSpace(text[s]) {
		s++
	}
	for e > s && isSpace(text[e-1]) {
		e--
	}
	return s, e
}

func isSentenceBreak(c byte) bool {
	return c == '.' || c == '!' || c == '?' || c == '\n'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}
