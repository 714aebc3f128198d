package registry

import (
	"fmt"
	"log"
	"os"

	"google.golang.org/api/option"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// AuthMethod names how the registry client authenticates.
type AuthMethod string

const (
	AuthSession AuthMethod = "session"
	AuthAPIKey  AuthMethod = "api_key"
)

// Auth is the credential strategy chosen at startup.
type Auth struct {
	Method      AuthMethod
	SessionFile string
	APIKey      string
}

// ResolveAuth prefers a cached session credentials file when one exists and
// falls back to the API key otherwise.
func ResolveAuth(sessionFile, apiKey string) (Auth, error) {
	if sessionFile != "" {
		if _, err := os.Stat(sessionFile); err == nil {
			log.Printf("INFO: registry: using cached session credentials %s", sessionFile)
			return Auth{Method: AuthSession, SessionFile: sessionFile}, nil
		}
		log.Printf("INFO: registry: session file %s not found, falling back to API key", sessionFile)
	}
	if apiKey == "" {
		return Auth{}, fmt.Errorf("%w: registry API key is not set", aqi.ErrConfiguration)
	}
	return Auth{Method: AuthAPIKey, APIKey: apiKey}, nil
}

// ClientOptions converts the strategy to Google API client options.
func (a Auth) ClientOptions() []option.ClientOption {
	switch a.Method {
	case AuthSession:
		return []option.ClientOption{option.WithCredentialsFile(a.SessionFile)}
	case AuthAPIKey:
		return []option.ClientOption{option.WithAPIKey(a.APIKey)}
	default:
		return nil
	}
}
