package automation

import (
	"strings"

	"songfactory/internal/textutil"
)

// Card is one song tile on the home page.
type Card struct {
	ProjectID string `json:"projectId"`
	Text      string `json:"text"`
}

// Card match strategies, strongest first.
const (
	MatchProjectID   = "project_id"
	MatchTitle       = "title"
	MatchTitlePrefix = "title_prefix"
	MatchWordOverlap = "word_overlap"
)

const titlePrefixLen = 15

// MatchCard picks the card for a job. Each strategy is tried across all
// cards before the next, weaker one: the project id attribute, the exact
// title, the first 15 characters of the title, then word overlap of at
// least max(2, n/2) title words. It returns -1 when nothing matches.
func MatchCard(cards []Card, jobID, title string) (int, string) {
	jobID = strings.TrimSpace(jobID)
	if jobID != "" {
		for i, card := range cards {
			if strings.TrimSpace(card.ProjectID) == jobID {
				return i, MatchProjectID
			}
		}
	}
	folded := textutil.FoldTitle(title)
	if folded == "" {
		return -1, ""
	}
	texts := make([]string, len(cards))
	for i, card := range cards {
		texts[i] = textutil.FoldTitle(card.Text)
	}
	for i, text := range texts {
		if strings.Contains(text, folded) {
			return i, MatchTitle
		}
	}
	if len([]rune(folded)) > 5 {
		prefix := strings.TrimSpace(textutil.TitlePrefix(title, titlePrefixLen))
		for i, text := range texts {
			if strings.Contains(text, prefix) {
				return i, MatchTitlePrefix
			}
		}
	}
	words := len(textutil.Words(title))
	if words == 0 {
		return -1, ""
	}
	need := max(2, words/2)
	for i, card := range cards {
		if textutil.WordOverlap(title, card.Text) >= need {
			return i, MatchWordOverlap
		}
	}
	return -1, ""
}
