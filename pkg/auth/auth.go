// Package auth supplies bearer tokens to the REST client and the hub
// connection. Token acquisition and refresh belong to the caller.
package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
)

// ErrNoToken is returned when a token source has no token to offer.
var ErrNoToken = errors.New("no token available")

// TokenSource returns the current bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

// Token returns the static token, or ErrNoToken if it is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// FileToken reads the token from a file on every call, so an external
// process can rotate it.
type FileToken string

// Token returns the trimmed file contents.
func (p FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return "", err
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Apply sets the Authorization header on h from src. A nil source leaves h
// untouched.
func Apply(ctx context.Context, src TokenSource, h http.Header) error {
	if src == nil {
		return nil
	}
	tok, err := src.Token(ctx)
	if err != nil {
		return err
	}
	h.Set("Authorization", "Bearer "+tok)
	return nil
}
