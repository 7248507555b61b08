package agent

import "strings"

// Route selects how an utterance is answered.
type Route string

const (
	RouteText   Route = "text"
	RouteVision Route = "vision"
)

// visionTokens trigger the vision path on a plain substring match.
var visionTokens = []string{"look", "see", "what do you see", "show", "camera", "snapshot", "vision"}

// RouteFor returns RouteVision when the utterance mentions any vision token.
func RouteFor(utterance string) Route {
	lowered := strings.ToLower(utterance)
	for _, tok := range visionTokens {
		if strings.Contains(lowered, tok) {
			return RouteVision
		}
	}
	return RouteText
}

// ExpressionFor maps spoken text to a face. First match wins.
func ExpressionFor(text string) Expression {
	s := strings.ToLower(text)
	switch {
	case containsAny(s, "!", "awesome", "great"):
		return ExpressionExcited
	case containsAny(s, "?", "maybe", "wonder"):
		return ExpressionCurious
	case containsAny(s, "sorry", "oops"):
		return ExpressionSquint
	default:
		return ExpressionSpeaking
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
