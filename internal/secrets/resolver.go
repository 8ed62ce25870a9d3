// Package secrets resolves the OAuth credential bundle held in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/fault"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/tracing"
)

const opResolve = "secrets.Resolve"

// Error types for credential resolution.
var (
	ErrEmptySecret      = errors.New("secret has no string value")
	ErrIncompleteBundle = errors.New("credential bundle is missing client_id, client_secret or refresh_token")
)

// CredentialBundle is the OAuth client and refresh token stored as a JSON secret.
type CredentialBundle struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// LogValue keeps the bundle out of logs.
func (CredentialBundle) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}

// SecretGetter abstracts Secrets Manager reads for dependency inversion.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver reads one named secret and parses it as a CredentialBundle.
type Resolver struct {
	client     SecretGetter
	secretName string
}

// NewResolver creates a Resolver for secretName.
func NewResolver(client SecretGetter, secretName string) *Resolver {
	return &Resolver{
		client:     client,
		secretName: secretName,
	}
}

// SecretName returns the configured secret id.
func (r *Resolver) SecretName() string {
	return r.secretName
}

// Resolve fetches and parses the credential bundle.
// A missing secret yields fault.KindSecretNotFound; every other failure,
// including malformed JSON, yields fault.KindSecretAccess.
func (r *Resolver) Resolve(ctx context.Context) (CredentialBundle, error) {
	tracer := tracing.Tracer("docfetch-secrets")
	ctx, span := tracer.Start(ctx, "secrets.Resolve")
	defer span.End()

	secretName := r.secretName
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretName,
	})
	if err != nil {
		tracing.RecordError(span, err)
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return CredentialBundle{}, fault.New(fault.KindSecretNotFound, opResolve, err)
		}
		return CredentialBundle{}, fault.New(fault.KindSecretAccess, opResolve, fmt.Errorf("get secret value: %w", err))
	}

	if out.SecretString == nil || *out.SecretString == "" {
		tracing.RecordError(span, ErrEmptySecret)
		return CredentialBundle{}, fault.New(fault.KindSecretAccess, opResolve, ErrEmptySecret)
	}

	var bundle CredentialBundle
	if err := json.Unmarshal([]byte(*out.SecretString), &bundle); err != nil {
		tracing.RecordError(span, err)
		return CredentialBundle{}, fault.New(fault.KindSecretAccess, opResolve, fmt.Errorf("parse secret: %w", err))
	}

	if bundle.ClientID == "" || bundle.ClientSecret == "" || bundle.RefreshToken == "" {
		tracing.RecordError(span, ErrIncompleteBundle)
		return CredentialBundle{}, fault.New(fault.KindSecretAccess, opResolve, ErrIncompleteBundle)
	}

	return bundle, nil
}
