package reading

import (
	"fmt"
	"strings"
)

// SingleRequest asks for the interpretation of one card in one spread position.
type SingleRequest struct {
	CardName      string  `json:"cardName"`
	PositionLabel string  `json:"positionLabel"`
	SpreadName    string  `json:"spreadName"`
	IsReversed    bool    `json:"isReversed"`
	Language      *string `json:"language"`
}

// SpreadCard is one drawn card of a full spread.
type SpreadCard struct {
	Name       string `json:"name"`
	Position   string `json:"position"`
	IsReversed bool   `json:"isReversed"`
	Meaning    string `json:"meaning"`
}

// SpreadRequest asks for an interpretation of a whole spread.
type SpreadRequest struct {
	SpreadName string       `json:"spreadName"`
	Cards      []SpreadCard `json:"cards"`
	Language   string       `json:"language"`
}

func (r SingleRequest) validate() bool {
	return strings.TrimSpace(r.CardName) != "" &&
		strings.TrimSpace(r.PositionLabel) != "" &&
		strings.TrimSpace(r.SpreadName) != "" &&
		r.Language != nil
}

func (r SpreadRequest) validate() bool {
	return strings.TrimSpace(r.SpreadName) != "" && r.Cards != nil
}

func languageInstruction(language string) string {
	switch {
	case language == "vi-VN":
		return "Vui lòng trả lời bằng tiếng Việt."
	case strings.HasPrefix(language, "zh"):
		return "请用中文回答。"
	default:
		return "Please answer in English."
	}
}

func orientation(reversed bool) string {
	if reversed {
		return "Reversed"
	}
	return "Upright"
}

// fallbackText is returned when the model answers with no text.
func fallbackText(language string) string {
	switch {
	case strings.HasPrefix(language, "zh"):
		return "星辰沉默不语。"
	case language == "vi-VN":
		return "Các vì sao im lặng."
	default:
		return "The stars are silent."
	}
}

func singlePrompt(r SingleRequest) string {
	return fmt.Sprintf(`You are a mystical Tarot reader.
Spread: "%s".
Card: %s (%s).
Position: %s.

%s
Provide a short, profound, and spiritual interpretation (max 150 words).
Focus on the meaning of the card in this specific position.
Avoid filler phrases; respond with insight directly.`,
		r.SpreadName, r.CardName, orientation(r.IsReversed), r.PositionLabel, languageInstruction(*r.Language))
}

func spreadPrompt(r SpreadRequest) string {
	var cards strings.Builder
	for i, c := range r.Cards {
		fmt.Fprintf(&cards, "%d. [%s]: %s (%s)\n", i+1, c.Position, c.Name, orientation(c.IsReversed))
	}
	return fmt.Sprintf(`You are a master Tarot reader. Provide a full analysis for the "%s" spread.

Cards:
%s
%s

Format (Markdown):
### (Insight Title)
(Content)

Structure:
1. Core Insight (The essence of the situation)
2. Flow of Energy (Connections between cards)
3. Advice (Actionable spiritual guidance)

Tone: Mystical, empathetic, wise.
Length: 600-800 words.`, r.SpreadName, cards.String(), languageInstruction(r.Language))
}
