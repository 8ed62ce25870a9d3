// Package sigv4 signs outbound HTTP requests with AWS Signature Version 4.
package sigv4

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// ServiceExecuteAPI is the signing name of API Gateway endpoints.
const ServiceExecuteAPI = "execute-api"

// Transport is an http.RoundTripper that signs requests for one service and region.
type Transport struct {
	wrapped     http.RoundTripper
	credentials aws.CredentialsProvider
	service     string
	region      string
	signer      *v4.Signer
	now         func() time.Time
}

// NewTransport creates a Transport. A nil wrapped uses http.DefaultTransport.
func NewTransport(wrapped http.RoundTripper, credentials aws.CredentialsProvider, service, region string) *Transport {
	if wrapped == nil {
		wrapped = http.DefaultTransport
	}
	return &Transport{
		wrapped:     wrapped,
		credentials: credentials,
		service:     service,
		region:      region,
		signer:      v4.NewSigner(),
		now:         time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	creds, err := t.credentials.Retrieve(ctx)
	if err != nil {
		return nil, err
	}

	// Clone so the caller's request keeps its headers and body
	signedReq := req.Clone(ctx)

	payloadHash, err := hashBody(signedReq)
	if err != nil {
		return nil, err
	}

	if err := t.signer.SignHTTP(ctx, creds, signedReq, payloadHash, t.service, t.region, t.now()); err != nil {
		return nil, err
	}

	return t.wrapped.RoundTrip(signedReq)
}

// hashBody returns the hex SHA-256 of the request body, buffering the body
// so it can still be sent.
func hashBody(req *http.Request) (string, error) {
	if req.Body == nil || req.Body == http.NoBody {
		h := sha256.Sum256(nil)
		return hex.EncodeToString(h[:]), nil
	}

	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		return "", err
	}
	req.Body.Close()
	h := sha256.Sum256(bodyBytes)
	req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	req.ContentLength = int64(len(bodyBytes))
	return hex.EncodeToString(h[:]), nil
}
