// Package auth obtains bearer tokens for the internal service APIs.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
)

// Scheme is the Authorization header scheme expected by the services
const Scheme = "slauth"

// DefaultBinary is the CLI that issues service tokens
const DefaultBinary = "atlas"

// CredentialProvider issues a token for an audience, group and environment
type CredentialProvider interface {
	Token(ctx context.Context, audience, group, env string) (string, error)
}

// SLAuth shells out to `atlas slauth token` for every token request
type SLAuth struct {
	binary string
	logger *slog.Logger
}

// NewSLAuth creates an SLAuth provider. An empty binary uses DefaultBinary.
func NewSLAuth(binary string, logger *slog.Logger) *SLAuth {
	if binary == "" {
		binary = DefaultBinary
	}
	return &SLAuth{binary: binary, logger: logger}
}

// Token runs `<binary> slauth token -m -g <group> -e <env> -a <audience>` and returns the
// trimmed stdout. Any failure is an *domain.AuthError.
func (p *SLAuth) Token(ctx context.Context, audience, group, env string) (string, error) {
	args := []string{"slauth", "token", "-m", "-g", group, "-e", env, "-a", audience}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger.Debug("Requesting service token",
		slog.String("audience", audience),
		slog.String("group", group),
		slog.String("env", env),
	)

	if err := cmd.Run(); err != nil {
		return "", &domain.AuthError{
			Audience: audience,
			Env:      env,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return "", &domain.AuthError{
			Audience: audience,
			Env:      env,
			Err:      errors.New("credential tool returned an empty token"),
		}
	}

	return token, nil
}

// Static returns the same token for every request. Used against the sandbox server.
type Static struct {
	token string
}

// NewStatic creates a Static provider
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// Token returns the configured token
func (p *Static) Token(_ context.Context, audience, _, env string) (string, error) {
	if p.token == "" {
		return "", &domain.AuthError{Audience: audience, Env: env, Err: errors.New("static token is empty")}
	}
	return p.token, nil
}

// Header formats the Authorization header value for a token
func Header(token string) string {
	return fmt.Sprintf("%s %s", Scheme, token)
}
