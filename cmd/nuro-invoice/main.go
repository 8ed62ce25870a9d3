// Package main implements the NURO Hikari invoice download Lambda handler.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	appconfig "github.com/jarrod-lowe/docfetch-lambdas/internal/config"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/invocation"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/logging"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/nuro"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/response"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/tracing"
)

const formatBinary = "binary"

var logger = logging.New()

// InvoiceFetcher abstracts invoice download for dependency inversion.
type InvoiceFetcher interface {
	FetchInvoice(ctx context.Context, req nuro.Request) (nuro.Invoice, error)
}

// apiErrorBody reports an abnormal portal response_code with the raw response.
type apiErrorBody struct {
	Error        string          `json:"error"`
	ResponseCode string          `json:"response_code"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// handler implements the invoice download logic.
type handler struct {
	fetcher InvoiceFetcher
}

// newHandler creates a new handler.
func newHandler(fetcher InvoiceFetcher) *handler {
	return &handler{fetcher: fetcher}
}

// handle downloads one invoice. Every failure is returned as a shaped response.
func (h *handler) handle(ctx context.Context, event invocation.Event) (events.APIGatewayProxyResponse, error) {
	tracer := tracing.Tracer("docfetch-nuro-invoice")
	ctx, span := tracer.Start(ctx, "NuroInvoiceHandler")
	defer span.End()

	var req nuro.Request
	if err := event.DecodeBody(&req); err != nil {
		tracing.RecordError(span, err)
		return response.Error(http.StatusBadRequest, "Invalid request body", err.Error(), ""), nil
	}
	if err := req.Validate(); err != nil {
		tracing.RecordError(span, err)
		return response.Error(http.StatusBadRequest,
			"Missing required fields: user_id, password, service_id, year_month", "", ""), nil
	}

	span.SetAttributes(tracing.ServiceID(req.ServiceID), tracing.YearMonth(req.YearMonth))

	inv, err := h.fetcher.FetchInvoice(ctx, req)
	if err != nil {
		return h.fail(ctx, span, req, err), nil
	}

	logger.InfoContext(ctx, "Invoice fetched",
		slog.String("service_id", req.ServiceID),
		slog.String("year_month", req.YearMonth),
		slog.String("filename", inv.Filename),
	)

	if req.Format == formatBinary {
		pdf, err := base64.StdEncoding.DecodeString(inv.PDFBase64)
		if err != nil {
			return h.fail(ctx, span, req, err), nil
		}
		return response.Binary("application/pdf", inv.Filename, pdf), nil
	}
	return response.JSON(http.StatusOK, inv), nil
}

// fail logs and records err, then shapes it into a response.
func (h *handler) fail(ctx context.Context, span trace.Span, req nuro.Request, err error) events.APIGatewayProxyResponse {
	tracing.RecordError(span, err)
	logger.ErrorContext(ctx, "Invoice fetch failed",
		slog.String("service_id", req.ServiceID),
		slog.String("year_month", req.YearMonth),
		logging.Err(err),
	)

	var statusErr *nuro.StatusError
	if errors.As(err, &statusErr) {
		title := "Invoice fetch failed"
		if statusErr.Stage == nuro.StageLogin {
			title = "Login failed"
		}
		return response.Error(statusErr.StatusCode, title, "", statusErr.Body)
	}

	var apiErr *nuro.APIError
	if errors.As(err, &apiErr) {
		return response.JSON(http.StatusBadRequest, apiErrorBody{
			Error:        "API returned error",
			ResponseCode: apiErr.ResponseCode,
			Details:      apiErr.Raw,
		})
	}

	switch {
	case errors.Is(err, nuro.ErrNoCredentials):
		return response.Error(http.StatusUnauthorized, "No credentials in login response", "", "")
	case errors.Is(err, nuro.ErrNoPDFData):
		return response.Error(http.StatusInternalServerError, "No PDF data in response", "", "")
	}
	return response.Error(http.StatusInternalServerError, "Internal error", err.Error(), "")
}

func main() {
	ctx := context.Background()
	cfg := appconfig.FromEnv()

	tp, err := tracing.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider", logging.Err(err))
		panic(err)
	}

	baseTransport := otelhttp.NewTransport(http.DefaultTransport)
	client := nuro.NewClient(cfg.NuroBaseURL, &http.Client{Transport: baseTransport}, baseTransport, cfg.NuroSigningRegion)

	h := newHandler(client)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
