package security

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	redacted  = "[REDACTED]"
	maskRunes = 3
)

var (
	secretKeyExpr        = `(?:password|passwd|secret|api[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`
	secretKeyPattern     = regexp.MustCompile(`(?i)^` + secretKeyExpr + `$`)
	kvSecretPattern      = regexp.MustCompile(`(?i)(` + secretKeyExpr + `)\s*[:=]\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"']+)`)
	jsonSecretPattern    = regexp.MustCompile(`(?i)("` + secretKeyExpr + `"\s*:\s*)"(?:[^"\\]|\\.)*"`)
	authorizationPattern = regexp.MustCompile(`(?i)(authorization\s*:\s*)[^\r\n]+`)
	bearerTokenPattern   = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	cookiePattern        = regexp.MustCompile(`(?i)(cookie\s*:\s*)[^\r\n]+`)
)

// RedactText scrubs secret-looking fragments from free text such as replay
// info blocks and footer values.
func RedactText(input string) string {
	if input == "" {
		return ""
	}
	out := jsonSecretPattern.ReplaceAllString(input, `${1}"`+redacted+`"`)
	out = kvSecretPattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return redacted
		}
		return match[:idx+1] + " " + redacted
	})
	out = authorizationPattern.ReplaceAllString(out, `${1}`+redacted)
	out = bearerTokenPattern.ReplaceAllString(out, "Bearer "+redacted)
	out = cookiePattern.ReplaceAllString(out, `${1}`+redacted)
	return out
}

// MaskToken keeps the first rune of a player token and hides the rest.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	first, _ := utf8.DecodeRuneInString(token)
	return string(first) + strings.Repeat("*", maskRunes)
}

// RedactMetadata returns a copy of md in which values keyed by a
// secret-looking name are dropped, values equal to bestToken are masked and
// everything else passes through RedactText. Keys may carry a dotted
// prefix; only the last segment is matched.
func RedactMetadata(md map[string]string, bestToken string) map[string]string {
	out := make(map[string]string, len(md))
	bestToken = strings.TrimSpace(bestToken)
	for k, v := range md {
		name := k
		if i := strings.LastIndexByte(k, '.'); i >= 0 {
			name = k[i+1:]
		}
		switch {
		case secretKeyPattern.MatchString(name):
			out[k] = redacted
		case bestToken != "" && strings.TrimSpace(v) == bestToken:
			out[k] = MaskToken(v)
		default:
			out[k] = RedactText(v)
		}
	}
	return out
}
