package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// credentialPattern is a named regex matching one credential shape.
type credentialPattern struct {
	name    string
	pattern *regexp.Regexp
}

// credentialPatterns covers the shapes a tool call (bash output, fetched
// pages, file reads) is most likely to echo back verbatim.
var credentialPatterns = []credentialPattern{
	{"EnvSecret", regexp.MustCompile(`(?i)(API_KEY|SECRET|TOKEN|PASSWORD|CREDENTIAL|AUTH|PRIVATE[._]KEY)\s*[=:]\s*['"]?(\S{8,})`)},
	{"BearerToken", regexp.MustCompile(`(?i)Bearer\s+([A-Za-z0-9\-._~+/]{20,}=*)`)},
	{"OpenAIKey", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{"GitHubPAT", regexp.MustCompile(`gh[ps]_[A-Za-z0-9]{36}`)},
	{"AWSAccessKey", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"GenericHex", regexp.MustCompile(`(?i)(secret|key|token)['":\s]+[0-9a-f]{32,}`)},
}

// scrubCredentials redacts credential-shaped substrings before a tool
// result is persisted or emitted over the notifier — a session transcript
// is durable and may be replayed to a client that shouldn't see a leaked key.
func scrubCredentials(input string) string {
	result := input
	for _, cp := range credentialPatterns {
		name := cp.name
		result = cp.pattern.ReplaceAllStringFunc(result, func(match string) string {
			return redactValue(match, name)
		})
	}
	return result
}

// redactValue preserves the identifying prefix of a match (the key name, the
// "Bearer " scheme) and redacts the secret portion.
func redactValue(match, patternName string) string {
	switch patternName {
	case "EnvSecret":
		if idx := strings.IndexAny(match, "=:"); idx >= 0 {
			sep := match[:idx+1]
			val := strings.Trim(strings.TrimSpace(match[idx+1:]), `'"`)
			return sep + " " + partialRedact(val)
		}
	case "BearerToken":
		if parts := strings.SplitN(match, " ", 2); len(parts) == 2 {
			return parts[0] + " " + partialRedact(parts[1])
		}
	case "GenericHex":
		if idx := strings.IndexAny(match, `'"=: `); idx >= 0 {
			prefix := match[:idx+1]
			val := strings.TrimLeft(match[idx+1:], `'"=: `)
			return prefix + partialRedact(val)
		}
	}
	return partialRedact(match)
}

// partialRedact keeps a short identifying prefix and redacts the rest.
func partialRedact(s string) string {
	if len(s) <= 4 {
		return "[REDACTED]"
	}
	return fmt.Sprintf("%s...[REDACTED]", s[:4])
}
