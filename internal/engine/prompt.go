package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const answerInstructions = `Answer the question using ONLY the numbered passages below. Respond with ONLY a JSON object, no other text:

{"answer": "your answer", "citations": [{"quote": "supporting text", "passage": 1}]}

Rules:
- Use only information found in the passages. Do not bring in outside knowledge.
- Every "quote" MUST be copied verbatim, character for character, from the passage it cites. Keep quotes under 300 characters.
- "passage" is the number of the passage the quote was copied from.
- If the passages do not answer the question, say so in "answer" and return an empty citations list.`

// buildAnswerPrompt renders the instructions, the numbered context passages
// with their provenance, and the question.
func buildAnswerPrompt(query string, cands []Candidate) string {
	var sb strings.Builder
	sb.WriteString(answerInstructions)
	sb.WriteString("\n\n")

	for i, c := range cands {
		sb.WriteString(fmt.Sprintf("[%d] source: %q", i+1, c.Source))
		if c.Chunk.Page > 0 {
			sb.WriteString(fmt.Sprintf(", page %d", c.Chunk.Page))
		}
		sb.WriteString("\n")
		sb.WriteString(c.Chunk.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\nQuestion: ")
	sb.WriteString(query)
	return sb.String()
}

type generation struct {
	Answer    string `json:"answer"`
	Citations []struct {
		Quote   string `json:"quote"`
		Passage int    `json:"passage"`
	} `json:"citations"`
}

// parseGeneration decodes the model's JSON response and validates every
// citation against the supplied passages. A citation survives only if its
// quote is a verbatim substring of the passage it names; anything else is
// dropped rather than surfaced. If the response is not valid JSON the raw
// text becomes the answer with no citations — never fabricated sources.
func parseGeneration(raw string, cands []Candidate) (string, []Citation) {
	text := stripCodeBlock(raw)

	var g generation
	if err := json.Unmarshal([]byte(text), &g); err != nil {
		return strings.TrimSpace(raw), nil
	}

	var citations []Citation
	for _, c := range g.Citations {
		idx := c.Passage - 1
		if idx < 0 || idx >= len(cands) {
			continue
		}
		quote := c.Quote
		if !strings.Contains(cands[idx].Chunk.Text, quote) {
			quote = strings.TrimSpace(quote)
			if quote == "" || !strings.Contains(cands[idx].Chunk.Text, quote) {
				continue
			}
		}
		citations = append(citations, Citation{
			Text:   quote,
			Source: cands[idx].Source,
			Page:   cands[idx].Chunk.Page,
		})
	}
	return strings.TrimSpace(g.Answer), citations
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}
