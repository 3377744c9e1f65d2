package misc

import (
	"os"
	"sort"
	"strings"
)

var secretsMap = map[string]string{}

// SetSecret registers a fallback value for key, used when the environment doesn't define it.
func SetSecret(key, value string) {
	secretsMap[key] = value
}

// SecretKeysWithPrefix returns the (sorted) names of every env var or registered secret starting with prefix.
func SecretKeysWithPrefix(prefix string) []string {
	var uniqKeys = map[string]bool{}
	for _, envVal := range os.Environ() {
		idx := strings.IndexByte(envVal, '=')
		if idx == -1 {
			continue
		}
		if key := envVal[0:idx]; strings.HasPrefix(key, prefix) {
			uniqKeys[key] = true
		}
	}
	for k := range secretsMap {
		if strings.HasPrefix(k, prefix) {
			uniqKeys[k] = true
		}
	}
	var retStrings []string
	for k := range uniqKeys {
		retStrings = append(retStrings, k)
	}
	sort.Strings(retStrings)
	return retStrings
}

func GetSecret(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return secretsMap[key]
}
