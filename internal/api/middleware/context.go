package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	usernameKey     contextKey = "username"
	apiKeyScopesKey contextKey = "api_key_scopes"
)

func SetUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// GetUsername returns the authenticated caller set by Authenticate.
func GetUsername(r *http.Request) (string, bool) {
	username, ok := r.Context().Value(usernameKey).(string)
	return username, ok && username != ""
}

func SetScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func GetScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}
