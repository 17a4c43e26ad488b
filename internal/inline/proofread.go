package inline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// Change describes one correction made by Proofread.
type Change struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Type      string `json:"type"`
}

// Change types inferred from the token diff.
const (
	ChangeSpelling    = "spelling"
	ChangePunctuation = "punctuation"
	ChangeGrammar     = "grammar"
	ChangeRewording   = "rewording"
)

// proofreadJSON is the structured response requested in show-changes mode.
type proofreadJSON struct {
	Corrected string `json:"corrected"`
	Changes   []struct {
		Original  string `json:"original"`
		Corrected string `json:"corrected"`
	} `json:"changes"`
}

// Proofread corrects grammar, spelling and punctuation. With showChanges the
// model is asked for a JSON response listing its corrections; if that JSON
// does not parse, the raw output is used as the corrected text and changes
// are derived from a token diff instead.
func (s *Service) Proofread(ctx context.Context, text string, showChanges bool) *Result {
	start := time.Now()
	res := &Result{Input: text, Metadata: map[string]any{"show_changes": showChanges}}

	if err := validateText(text, maxTextLen); err != nil {
		return res.fail(err, start)
	}

	var prompt string
	if showChanges {
		prompt = fmt.Sprintf(
			"Proofread the following text for grammar, spelling and punctuation. "+
				`Respond with JSON only: {"corrected": "<corrected text>", "changes": [{"original": "<before>", "corrected": "<after>"}]}.`+
				"\n\n%s", text)
	} else {
		prompt = fmt.Sprintf(
			"Proofread the following text for grammar, spelling and punctuation. Return only the corrected text.\n\n%s", text)
	}

	output, tokens, err := s.complete(ctx, prompt, tempProofread)
	if err != nil {
		return res.fail(err, start)
	}

	corrected := output
	var changes []Change
	if showChanges {
		if parsed, ok := parseProofreadJSON(output); ok {
			corrected = parsed.Corrected
			for _, c := range parsed.Changes {
				changes = append(changes, Change{
					Original:  c.Original,
					Corrected: c.Corrected,
					Type:      classifyChange(c.Original, c.Corrected),
				})
			}
		} else {
			// Malformed JSON: fall back to a plain-text reading of the reply
			// and reconstruct the changes ourselves.
			changes = diffChanges(text, corrected)
		}
		res.Metadata["changes"] = changes
	}

	return res.ok(corrected, tokens, start)
}

// parseProofreadJSON extracts the structured response, tolerating markdown
// code fences around the JSON body.
func parseProofreadJSON(output string) (*proofreadJSON, bool) {
	body := strings.TrimSpace(output)
	if i := strings.Index(body, "{"); i >= 0 {
		if j := strings.LastIndex(body, "}"); j > i {
			body = body[i : j+1]
		}
	}
	var parsed proofreadJSON
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || parsed.Corrected == "" {
		return nil, false
	}
	return &parsed, true
}

// classifyChange infers a change type from the edit between the original and
// corrected fragments.
func classifyChange(original, corrected string) string {
	if original == corrected {
		return ChangeRewording
	}
	if stripPunct(original) == stripPunct(corrected) {
		return ChangePunctuation
	}

	origWords := strings.Fields(original)
	corrWords := strings.Fields(corrected)
	if len(origWords) != len(corrWords) {
		return ChangeGrammar
	}

	// Same word count: a small edit distance on the differing words points
	// at spelling, anything larger at rewording.
	maxDist := 0
	for i := range origWords {
		if origWords[i] == corrWords[i] {
			continue
		}
		if d := matchr.Levenshtein(origWords[i], corrWords[i]); d > maxDist {
			maxDist = d
		}
	}
	switch {
	case maxDist == 0:
		return ChangeRewording
	case maxDist <= 2:
		return ChangeSpelling
	default:
		return ChangeRewording
	}
}

// diffChanges pairs up differing tokens of the original and corrected texts.
// It only attempts a positional diff; texts of different lengths yield a
// single whole-text grammar change.
func diffChanges(original, corrected string) []Change {
	origWords := strings.Fields(original)
	corrWords := strings.Fields(corrected)
	if len(origWords) != len(corrWords) {
		if original == corrected {
			return nil
		}
		return []Change{{Original: original, Corrected: corrected, Type: ChangeGrammar}}
	}

	var changes []Change
	for i := range origWords {
		if origWords[i] == corrWords[i] {
			continue
		}
		changes = append(changes, Change{
			Original:  origWords[i],
			Corrected: corrWords[i],
			Type:      classifyChange(origWords[i], corrWords[i]),
		})
	}
	return changes
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', ';', ':', '!', '?', '\'', '"', '-', '(', ')':
			return -1
		}
		return r
	}, s)
}
