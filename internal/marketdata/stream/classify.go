package stream

import "strings"

// isEndpointError classifies a subscribe-error frame. True means the current
// endpoint is unusable for this subscription (wrong URL, wrong channel,
// malformed parameters, or a 6xxx venue code) and the session should rotate
// to the next endpoint. The heuristic is vendor-coupled text/prefix matching;
// it is kept in this one function so the state machine never inspects error
// text itself.
func isEndpointError(code, msg string) bool {
	m := strings.ToLower(msg)
	if strings.Contains(m, "wrong url") ||
		strings.Contains(m, "wrong channel") ||
		strings.Contains(m, "parameter") {
		return true
	}
	return code != "" && strings.HasPrefix(code, "6")
}
