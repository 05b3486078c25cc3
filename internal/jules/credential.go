package jules

import (
	"os"
	"strings"
)

// DefaultAPIKeyEnv is the environment variable holding the Jules API key.
const DefaultAPIKeyEnv = "JULES_API_KEY"

// CredentialSource yields the secret attached to every outbound request.
//
// Implementations are consulted once per call and must not cache: the secret
// is external configuration that may change while the process runs.
type CredentialSource interface {
	Resolve() (string, error)
}

// MissingCredentialError reports that the configured secret is absent or
// empty. Its message is already actionable and is shown to the caller
// verbatim.
type MissingCredentialError struct {
	// Env is the name of the environment variable that was consulted.
	Env string
}

func (e *MissingCredentialError) Error() string {
	return e.Env + " environment variable is missing."
}

// EnvCredential resolves the secret from the named environment variable on
// every call.
type EnvCredential string

// Resolve implements [CredentialSource].
func (e EnvCredential) Resolve() (string, error) {
	name := string(e)
	if name == "" {
		name = DefaultAPIKeyEnv
	}
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", &MissingCredentialError{Env: name}
	}
	return v, nil
}

// StaticCredential is a fixed secret. An empty value behaves like an unset
// [DefaultAPIKeyEnv].
type StaticCredential string

// Resolve implements [CredentialSource].
func (s StaticCredential) Resolve() (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", &MissingCredentialError{Env: DefaultAPIKeyEnv}
	}
	return string(s), nil
}
