// Package main implements the operator CLI that runs the one-time Gmail OAuth
// consent flow and produces the credential bundle read by the attachment Lambda.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/config"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/gmail"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/logging"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/secrets"
)

const defaultRedirectURL = "http://localhost"

// ErrNoRefreshToken is returned when the token response carries no refresh token.
var ErrNoRefreshToken = errors.New("token response has no refresh token; revoke the app's access and retry")

// ErrStateMismatch is returned when a pasted redirect URL carries a state
// other than the one issued in the consent URL.
var ErrStateMismatch = errors.New("redirect URL state does not match the consent request")

// SecretWriter abstracts Secrets Manager writes for dependency inversion.
type SecretWriter interface {
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// setupOptions holds the flag values of the root command.
type setupOptions struct {
	clientID     string
	clientSecret string
	redirectURL  string
	store        bool
	secretName   string
	region       string
}

// deps are the collaborators the command reaches outside the process.
type deps struct {
	oauthConfig func(opts setupOptions) *oauth2.Config
	newWriter   func(ctx context.Context, region string) (SecretWriter, error)
	newState    func() string
}

func defaultDeps() deps {
	return deps{
		oauthConfig: func(opts setupOptions) *oauth2.Config {
			cfg := gmail.OAuthConfig(opts.clientID, opts.clientSecret)
			cfg.RedirectURL = opts.redirectURL
			return cfg
		},
		newWriter: func(ctx context.Context, region string) (SecretWriter, error) {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
			if err != nil {
				return nil, fmt.Errorf("load AWS config: %w", err)
			}
			return secretsmanager.NewFromConfig(awsCfg), nil
		},
		newState: uuid.NewString,
	}
}

func newRootCmd(d deps) *cobra.Command {
	opts := setupOptions{}

	cmd := &cobra.Command{
		Use:   "gmail-oauth-setup",
		Short: "Obtain a Gmail refresh token for the attachment Lambda",
		Long: `gmail-oauth-setup prints a Google consent URL for read-only Gmail access,
exchanges the authorization code you paste back for a refresh token, and prints
the credential bundle JSON. With --store the bundle is written to AWS Secrets
Manager under --secret-name.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.clientID == "" || opts.clientSecret == "" {
				return errors.New("--client-id and --client-secret are required (or set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET)")
			}
			return run(cmd.Context(), d, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.clientID, "client-id", os.Getenv("GOOGLE_CLIENT_ID"), "OAuth client id")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", os.Getenv("GOOGLE_CLIENT_SECRET"), "OAuth client secret")
	cmd.Flags().StringVar(&opts.redirectURL, "redirect-url", defaultRedirectURL, "Redirect URL registered for the OAuth client")
	cmd.Flags().BoolVar(&opts.store, "store", false, "Write the credential bundle to AWS Secrets Manager")
	cmd.Flags().StringVar(&opts.secretName, "secret-name", config.DefaultSecretName, "Secrets Manager secret id")
	cmd.Flags().StringVar(&opts.region, "region", config.DefaultRegion, "AWS region of the secret")

	return cmd
}

func run(ctx context.Context, d deps, opts setupOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := d.oauthConfig(opts)

	state := d.newState()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL in a browser and grant access:\n\n%s\n\n", authURL)
	fmt.Fprint(out, "Paste the authorization code or the full redirect URL> ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	code, err := extractCode(scanner.Text(), state)
	if err != nil {
		return err
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	bundle := secrets.CredentialBundle{
		ClientID:     opts.clientID,
		ClientSecret: opts.clientSecret,
		RefreshToken: tok.RefreshToken,
	}
	secretJSON, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}

	if !opts.store {
		fmt.Fprintf(out, "\nStore this JSON in Secrets Manager as %q:\n%s\n", opts.secretName, secretJSON)
		return nil
	}

	writer, err := d.newWriter(ctx, opts.region)
	if err != nil {
		return err
	}
	if err := storeSecret(ctx, writer, opts.secretName, string(secretJSON)); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nStored credential bundle in %q (refresh token %s)\n",
		opts.secretName, logging.SanitizeToken(tok.RefreshToken))
	return nil
}

// extractCode accepts a bare authorization code or a redirect URL carrying
// one. A redirect URL must echo state.
func extractCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	if e := u.Query().Get("error"); e != "" {
		return "", fmt.Errorf("consent denied: %s", e)
	}
	if u.Query().Get("state") != state {
		return "", ErrStateMismatch
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code parameter")
	}
	return code, nil
}

// storeSecret writes a new version of the secret, creating it when absent.
func storeSecret(ctx context.Context, w SecretWriter, name, value string) error {
	_, err := w.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		_, err = w.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			Description:  aws.String("Gmail OAuth client and refresh token for attachment retrieval"),
			SecretString: aws.String(value),
		})
		if err != nil {
			return fmt.Errorf("create secret: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("put secret value: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}
