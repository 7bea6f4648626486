package conversation

import "fmt"

// Mode governs the tone and depth of the analyst's responses.
type Mode string

const (
	ModeAnalyst     Mode = "analyst"
	ModeConcise     Mode = "concise"
	ModeEducational Mode = "educational"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAnalyst, ModeConcise, ModeEducational:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode: %q", s)
}

const basePrompt = `You are a portfolio analyst assistant. You answer questions about the user's
investment portfolio using the analytical tools available to you. Always base
portfolio figures on tool results rather than guessing. If a tool fails,
say what you could not retrieve and answer with what you have.`

var modePrompts = map[Mode]string{
	ModeAnalyst: basePrompt + `

Give thorough, professional analysis. Quantify claims with the figures the
tools return and flag concentration or allocation risks when relevant.`,

	ModeConcise: basePrompt + `

Answer in at most three sentences. Lead with the number the user asked for.
No preamble, no caveats unless they change the answer.`,

	ModeEducational: basePrompt + `

The user is learning about investing. Define any term of art the first time
you use it and explain why each figure matters, not just what it is.`,
}

// SystemPrompt returns the system prompt for the mode.
func (m Mode) SystemPrompt() string {
	if p, ok := modePrompts[m]; ok {
		return p
	}
	return modePrompts[ModeAnalyst]
}
