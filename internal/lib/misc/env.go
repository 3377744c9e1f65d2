package misc

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads .env.local then .env - neither overriding values already present in the environment.
func LoadEnvSettings(logger *slog.Logger) {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			Debugf(logger, "loaded env file:%s", name)
		}
	}
}

// LoadEnvForNetwork loads cluster specific overrides, ie: .env.devnet
func LoadEnvForNetwork(logger *slog.Logger, network string) {
	name := fmt.Sprintf(".env.%s", network)
	if err := godotenv.Load(name); err == nil {
		Infof(logger, "loaded network env file:%s", name)
	}
}
