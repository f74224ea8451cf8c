package orchestrator

import "strings"

// Labels are the user-facing strings woven into prompts, transcripts and
// error replies.
type Labels struct {
	ContextLabel string
	UserLabel    string
	AgentLabel   string
	ErrorPrefix  string
	TimeoutText  string
}

// FrenchLabels is the default label set.
var FrenchLabels = Labels{
	ContextLabel: "Contexte précédent",
	UserLabel:    "Utilisateur",
	AgentLabel:   "Agent",
	ErrorPrefix:  "Erreur lors du traitement de votre demande",
	TimeoutText:  "la génération de la réponse a pris trop de temps, veuillez réessayer",
}

// EnglishLabels is the English label set.
var EnglishLabels = Labels{
	ContextLabel: "Previous context",
	UserLabel:    "User",
	AgentLabel:   "Agent",
	ErrorPrefix:  "Error while processing your request",
	TimeoutText:  "generating the response took too long, please try again",
}

// LabelsFor returns the label set of a locale. Unknown locales get French.
func LabelsFor(locale string) Labels {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "en", "en-us", "en-gb", "english":
		return EnglishLabels
	default:
		return FrenchLabels
	}
}

// BuildPrompt builds the agent input of a turn. When previous is non-empty,
// only its last window runes are injected ahead of the message.
func (l Labels) BuildPrompt(previous, message string, window int) string {
	if previous == "" {
		return message
	}
	return l.ContextLabel + " : " + lastRunes(previous, window) + "\n\n" + l.UserLabel + " : " + message
}

// AppendExchange returns previous extended with one user/agent exchange.
func (l Labels) AppendExchange(previous, message, response string) string {
	return previous + "\n" + l.UserLabel + " : " + message + "\n" + l.AgentLabel + " : " + response
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
