package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envProvider reads secrets from environment variables. The path "giftcards/ledger-api-key"
// maps to GIFTCARDS_LEDGER_API_KEY.
type envProvider struct{}

func (envProvider) Name() ProviderType { return ProviderEnv }

func (envProvider) Close() error { return nil }

func (envProvider) Fetch(_ context.Context, ref Reference) (Secret, error) {
	name := envName(ref.Path)
	value, ok := os.LookupEnv(name)
	if !ok {
		return Secret{}, fmt.Errorf("secrets: environment variable %s not set", name)
	}

	data := map[string]string{"value": value}
	if ref.Key != "" {
		data[ref.Key] = value
	}
	return Secret{Data: data}, nil
}

func envName(path string) string {
	replacer := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return strings.ToUpper(replacer.Replace(strings.Trim(path, "/")))
}
