// Package nuro fetches invoice PDFs from the NURO Hikari member portal API.
// A password login yields temporary AWS credentials which sign the invoice
// download request.
package nuro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/sigv4"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/tracing"
)

// Stages reported by StatusError.
const (
	StageLogin   = "login"
	StageInvoice = "invoice"
)

// responseCodeNormal marks a successful invoice response.
const responseCodeNormal = "normal"

// Error types for invoice retrieval.
var (
	ErrMissingFields = errors.New("missing required fields: user_id, password, service_id, year_month")
	ErrNoCredentials = errors.New("no credentials in login response")
	ErrNoPDFData     = errors.New("no PDF data in response")
)

// StatusError is a non-2xx portal response.
type StatusError struct {
	Stage      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.Stage, e.StatusCode)
}

// APIError is an invoice response whose response_code is not "normal".
type APIError struct {
	ResponseCode string
	Raw          json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("invoice API returned response_code %q", e.ResponseCode)
}

// HTTPDoer abstracts HTTP client operations for dependency inversion.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request identifies one invoice and the portal account that owns it.
type Request struct {
	UserID    string `json:"user_id"`
	Password  string `json:"password"`
	ServiceID string `json:"service_id"`
	YearMonth string `json:"year_month"`
	Format    string `json:"format,omitempty"`
}

// Validate reports ErrMissingFields unless all four identifying fields are set.
func (r Request) Validate() error {
	if r.UserID == "" || r.Password == "" || r.ServiceID == "" || r.YearMonth == "" {
		return ErrMissingFields
	}
	return nil
}

// TemporaryCredentials are the AWS credentials issued by a portal login.
type TemporaryCredentials struct {
	AccessKeyID  string `json:"access_key_id"`
	AccessSecret string `json:"access_secret"`
	SessionToken string `json:"session_token"`
}

// Invoice is a downloaded invoice with its base64 PDF content.
type Invoice struct {
	Filename  string `json:"filename"`
	PDFBase64 string `json:"pdf_base64"`
}

type loginResponse struct {
	Credentials *TemporaryCredentials `json:"credentials"`
}

type invoiceResponse struct {
	ResponseCode string `json:"response_code"`
	FileName     string `json:"file_name"`
	Data         string `json:"data"`
}

// Client talks to the portal API.
type Client struct {
	baseURL       string
	httpClient    HTTPDoer
	base          http.RoundTripper
	signingRegion string
}

// NewClient creates a Client. httpClient carries the login call; signed
// invoice requests are sent through base.
func NewClient(baseURL string, httpClient HTTPDoer, base http.RoundTripper, signingRegion string) *Client {
	return &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		base:          base,
		signingRegion: signingRegion,
	}
}

func (c *Client) loginURL() string {
	return c.baseURL + "/auth-api/api/v2/authn/mypage/login"
}

func (c *Client) invoiceURL(serviceID, yearMonth string) string {
	return c.baseURL + "/nurohikari-mypage-api/api/read/v2/services/" +
		url.PathEscape(serviceID) + "/download/invoice_pdf/" + url.PathEscape(yearMonth) + "/nuro"
}

// FetchInvoice logs in and downloads the invoice for req.
func (c *Client) FetchInvoice(ctx context.Context, req Request) (Invoice, error) {
	tracer := tracing.Tracer("docfetch-nuro")
	ctx, span := tracer.Start(ctx, "nuro.FetchInvoice")
	defer span.End()
	span.SetAttributes(tracing.ServiceID(req.ServiceID), tracing.YearMonth(req.YearMonth))

	creds, err := c.Login(ctx, req.UserID, req.Password)
	if err != nil {
		tracing.RecordError(span, err)
		return Invoice{}, err
	}

	inv, err := c.download(ctx, creds, req.ServiceID, req.YearMonth)
	if err != nil {
		tracing.RecordError(span, err)
		return Invoice{}, err
	}
	return inv, nil
}

// Login exchanges a portal user id and password for temporary credentials.
func (c *Client) Login(ctx context.Context, userID, password string) (TemporaryCredentials, error) {
	payload, err := json.Marshal(map[string]string{
		"user_id":  userID,
		"password": password,
	})
	if err != nil {
		return TemporaryCredentials{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL(), bytes.NewReader(payload))
	if err != nil {
		return TemporaryCredentials{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := send(c.httpClient, httpReq, StageLogin)
	if err != nil {
		return TemporaryCredentials{}, err
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return TemporaryCredentials{}, fmt.Errorf("decode login response: %w", err)
	}
	if lr.Credentials == nil {
		return TemporaryCredentials{}, ErrNoCredentials
	}
	return *lr.Credentials, nil
}

func (c *Client) download(ctx context.Context, creds TemporaryCredentials, serviceID, yearMonth string) (Invoice, error) {
	provider := credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.AccessSecret, creds.SessionToken)
	signed := &http.Client{
		Transport: sigv4.NewTransport(c.base, provider, sigv4.ServiceExecuteAPI, c.signingRegion),
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.invoiceURL(serviceID, yearMonth), nil)
	if err != nil {
		return Invoice{}, err
	}

	body, err := send(signed, httpReq, StageInvoice)
	if err != nil {
		return Invoice{}, err
	}

	var ir invoiceResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice response: %w", err)
	}
	if ir.ResponseCode != responseCodeNormal {
		return Invoice{}, &APIError{ResponseCode: ir.ResponseCode, Raw: json.RawMessage(body)}
	}
	if ir.Data == "" {
		return Invoice{}, ErrNoPDFData
	}

	filename := ir.FileName
	if filename == "" {
		filename = "invoice_" + yearMonth + ".pdf"
	}
	return Invoice{Filename: filename, PDFBase64: ir.Data}, nil
}

// send performs req and returns the body of a 2xx response.
func send(doer HTTPDoer, req *http.Request, stage string) ([]byte, error) {
	resp, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", stage, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", stage, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Stage: stage, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
