package security

import "strings"

// sensitiveEnvPrefixes are stripped from the chat client's environment.
// The client never needs the bridge's own settings or cloud credentials.
var sensitiveEnvPrefixes = []string{
	"TGBRIDGE_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"TELEGRAM_BOT_TOKEN",
}

var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
}

// SanitizedEnv returns environ without sensitive variables.
func SanitizedEnv(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, entry := range environ {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
