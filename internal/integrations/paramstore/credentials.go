package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"listing-wizard/internal/config"
)

const (
	openAITokenParam = "/open-ai-token"
	geminiTokenParam = "/gemini-token"
)

// tokenPayload is the expected JSON shape stored in SSM for an API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// LoadCredentials reads both provider tokens under prefix in one call. A
// missing or malformed token leaves that key empty; at least one must be
// usable.
func LoadCredentials(ctx context.Context, getter Getter, prefix string) (config.Credentials, error) {
	if getter == nil {
		return config.Credentials{}, errors.New("paramstore: getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return config.Credentials{}, errors.New("paramstore: parameter prefix must not be empty")
	}

	openAIName, geminiName := prefix+openAITokenParam, prefix+geminiTokenParam
	values, err := getter.GetParameters(ctx, openAIName, geminiName)
	if err != nil {
		return config.Credentials{}, err
	}

	openAIKey, openAIErr := parseToken(values, openAIName)
	geminiKey, geminiErr := parseToken(values, geminiName)

	creds := config.Credentials{OpenAIKey: openAIKey, GeminiKey: geminiKey}
	if creds.Empty() {
		return creds, fmt.Errorf("paramstore: no provider token found: %w", errors.Join(openAIErr, geminiErr))
	}
	return creds, nil
}

func parseToken(values map[string]string, name string) (string, error) {
	raw, ok := values[name]
	if !ok {
		return "", fmt.Errorf("paramstore: parameter %q not found", name)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal %q as JSON: %w", name, err)
	}
	token := strings.TrimSpace(tp.Token)
	if token == "" {
		return "", fmt.Errorf("paramstore: token in %q is empty", name)
	}
	return token, nil
}
