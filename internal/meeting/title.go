package meeting

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	schedulingVerbs = regexp.MustCompile(`(?i)\b(please|can you|could you|would you|let's|lets|schedule|create|set up|setup|book|arrange|add|make|plan|organi[sz]e|put|new|a|an|the|me|us|for me|meeting|call|event|appointment|invite)\b`)
	dateTimeTokens  = regexp.MustCompile(`(?i)\b(every|daily|weekly|monthly|today|tonight|tomorrow|next|this|on|at|from|to|until|till|morning|afternoon|evening|noon|week|day|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun|\d{1,2}([:.]\d{2})?\s*(am|pm|a\.m\.|p\.m\.)?)\b`)
	leadingPreps    = regexp.MustCompile(`(?i)^(about|regarding|re|for|on)\s+`)
	topicKeyword    = regexp.MustCompile(`(?i)\b(project|team|review|standup)\s+([A-Za-z][\w-]*)`)
	topicPhrase     = regexp.MustCompile(`(?i)\b(?:about|for|regarding)\s+(?:the\s+)?([A-Za-z][\w -]{2,40}?)\s*(?:[.,;:!?]|$)`)
	punctuation     = regexp.MustCompile(`[^\w\s'&/-]+`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// InferTitle strips scheduling words and date tokens from text. If nothing
// meaningful remains it looks for a topic in the most recent history turns,
// and otherwise returns "Meeting".
func InferTitle(text string, history []string) string {
	if residue := stripScheduling(text); !degenerate(residue) {
		if strings.HasPrefix(strings.ToLower(residue), "with ") {
			return "Meeting " + residue
		}
		return capitalize(leadingPreps.ReplaceAllString(residue, ""))
	}

	for i := len(history) - 1; i >= 0; i-- {
		if topic := topicFrom(history[i]); topic != "" {
			return topic
		}
	}
	return "Meeting"
}

func stripScheduling(text string) string {
	s := dateTimeTokens.ReplaceAllString(text, " ")
	s = schedulingVerbs.ReplaceAllString(s, " ")
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func degenerate(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 3 {
		return true
	}
	return leadingPreps.ReplaceAllString(s, "") == "" || strings.EqualFold(s, "with")
}

func topicFrom(turn string) string {
	if m := topicKeyword.FindStringSubmatch(turn); m != nil {
		return capitalize(strings.ToLower(m[1]) + " " + m[2])
	}
	if m := topicPhrase.FindStringSubmatch(turn); m != nil {
		topic := strings.TrimSpace(m[1])
		if !degenerate(topic) {
			return capitalize(topic)
		}
	}
	return ""
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
