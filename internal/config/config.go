// Package config loads the Lambda configuration from the environment once at
// process start.
package config

import (
	"os"
	"strconv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultSecretName        = "gmail-oauth-credentials"
	DefaultRegion            = "ap-northeast-1"
	DefaultMaxMessages       = 10
	DefaultNuroBaseURL       = "https://api.c.nuro.jp"
	DefaultNuroSigningRegion = "ap-northeast-1"
)

// Config holds the settings shared by the document-fetch Lambdas.
type Config struct {
	// SecretName is the Secrets Manager id of the OAuth credential bundle.
	SecretName string
	// Region is the AWS region of the secret store.
	Region string
	// DefaultMaxMessages caps a search when the request does not say otherwise.
	DefaultMaxMessages int
	// RetrievalEventsQueueURL enables retrieval event publishing when non-empty.
	RetrievalEventsQueueURL string
	// NuroBaseURL is the invoice portal API origin.
	NuroBaseURL string
	// NuroSigningRegion is the SigV4 region of the invoice portal API.
	NuroSigningRegion string
}

// FromEnv loads the configuration from the process environment.
func FromEnv() Config {
	return Load(os.Getenv)
}

// Load builds a Config using getenv for lookups.
func Load(getenv func(string) string) Config {
	return Config{
		SecretName:              stringOr(getenv("SECRETS_NAME"), DefaultSecretName),
		Region:                  stringOr(getenv("AWS_REGION"), DefaultRegion),
		DefaultMaxMessages:      positiveIntOr(getenv("DEFAULT_MAX_MESSAGES"), DefaultMaxMessages),
		RetrievalEventsQueueURL: getenv("RETRIEVAL_EVENTS_QUEUE_URL"),
		NuroBaseURL:             stringOr(getenv("NURO_API_BASE_URL"), DefaultNuroBaseURL),
		NuroSigningRegion:       stringOr(getenv("NURO_SIGNING_REGION"), DefaultNuroSigningRegion),
	}
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveIntOr(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
