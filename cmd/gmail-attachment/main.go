// Package main implements the Gmail attachment retrieval Lambda handler.
package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/attachment"
	appconfig "github.com/jarrod-lowe/docfetch-lambdas/internal/config"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/fault"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/gmail"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/invocation"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/logging"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/response"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/retrieval"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/retrievalevent"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/secrets"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/tracing"
)

var logger = logging.New()

// CredentialResolver abstracts credential bundle lookup for dependency inversion.
type CredentialResolver interface {
	Resolve(ctx context.Context) (secrets.CredentialBundle, error)
	SecretName() string
}

// Mailbox is the mailbox surface the pipeline uses.
type Mailbox interface {
	retrieval.Lister
	attachment.Mailbox
}

// MailboxFactory builds a Mailbox from resolved credentials.
type MailboxFactory interface {
	NewMailbox(ctx context.Context, bundle secrets.CredentialBundle) (Mailbox, error)
}

// mailboxFactoryFunc adapts a function to MailboxFactory.
type mailboxFactoryFunc func(ctx context.Context, bundle secrets.CredentialBundle) (Mailbox, error)

func (f mailboxFactoryFunc) NewMailbox(ctx context.Context, bundle secrets.CredentialBundle) (Mailbox, error) {
	return f(ctx, bundle)
}

// handler implements the attachment retrieval pipeline.
type handler struct {
	resolver   CredentialResolver
	factory    MailboxFactory
	publisher  retrievalevent.Publisher
	defaultMax int
}

// newHandler creates a new handler. publisher may be nil.
func newHandler(resolver CredentialResolver, factory MailboxFactory, publisher retrievalevent.Publisher, defaultMax int) *handler {
	return &handler{
		resolver:   resolver,
		factory:    factory,
		publisher:  publisher,
		defaultMax: defaultMax,
	}
}

// handle runs one retrieval. Every failure is returned as a shaped response.
func (h *handler) handle(ctx context.Context, event invocation.Event) (events.APIGatewayProxyResponse, error) {
	tracer := tracing.Tracer("docfetch-gmail-attachment")
	ctx, span := tracer.Start(ctx, "GmailAttachmentHandler")
	defer span.End()

	requestID := ""
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	var req retrieval.Request
	if err := event.DecodeBody(&req); err != nil {
		return h.fail(ctx, span, requestID, fault.New(fault.KindValidation, "invocation.DecodeBody", err)), nil
	}
	if err := req.Validate(); err != nil {
		return h.fail(ctx, span, requestID, err), nil
	}

	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.Bool("explicit_message", req.MessageID != ""),
	)
	logger.InfoContext(ctx, "Retrieval requested",
		slog.String(logging.KeyRequestID, requestID),
		logging.FromDomain(req.From),
		slog.Bool("has_subject", req.Subject != ""),
		slog.String("year_month", req.YearMonth),
		slog.String(logging.KeyMessageID, req.MessageID),
	)

	bundle, err := h.resolver.Resolve(ctx)
	if err != nil {
		return h.fail(ctx, span, requestID, err), nil
	}

	mailbox, err := h.factory.NewMailbox(ctx, bundle)
	if err != nil {
		return h.fail(ctx, span, requestID, err), nil
	}

	ids, err := retrieval.ResolveMessageIDs(ctx, mailbox, req, h.defaultMax)
	if err != nil {
		return h.fail(ctx, span, requestID, err), nil
	}
	span.SetAttributes(tracing.MessageCount(len(ids)))

	if len(ids) == 0 {
		logger.InfoContext(ctx, "No matching messages", slog.String(logging.KeyRequestID, requestID))
		return response.JSON(http.StatusOK, retrieval.Result{Attachments: []attachment.Record{}}), nil
	}

	result, err := retrieval.Collect(ctx, attachment.NewExtractor(mailbox), ids)
	if err != nil {
		return h.fail(ctx, span, requestID, err), nil
	}
	span.SetAttributes(tracing.AttachmentCount(result.TotalAttachments))

	logger.InfoContext(ctx, "Retrieval completed",
		slog.String(logging.KeyRequestID, requestID),
		slog.Int("total_messages_scanned", result.TotalMessagesScanned),
		slog.Int("total_attachments", result.TotalAttachments),
	)

	if h.publisher != nil {
		if err := h.publisher.PublishRetrieval(ctx, requestID, ids, result); err != nil {
			logger.WarnContext(ctx, "Failed to publish retrieval event",
				slog.String(logging.KeyRequestID, requestID),
				logging.Err(err),
			)
		}
	}

	return response.JSON(http.StatusOK, result), nil
}

// fail logs and records err, then shapes it into a response.
func (h *handler) fail(ctx context.Context, span trace.Span, requestID string, err error) events.APIGatewayProxyResponse {
	kind := fault.Classify(err)
	tracing.RecordError(span, err)
	span.SetAttributes(attribute.String(logging.KeyFaultKind, kind.String()))

	level := slog.LevelError
	if kind == fault.KindValidation {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "Retrieval failed",
		slog.String(logging.KeyRequestID, requestID),
		slog.String(logging.KeyFaultKind, kind.String()),
		slog.String("op", fault.OpOf(err)),
		logging.Err(err),
	)

	return response.FromError(err, h.resolver.SecretName())
}

func main() {
	ctx := context.Background()
	cfg := appconfig.FromEnv()

	tp, err := tracing.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider", logging.Err(err))
		panic(err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", logging.Err(err))
		panic(err)
	}

	// Instrument AWS SDK clients with OTel tracing
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	resolver := secrets.NewResolver(secretsmanager.NewFromConfig(awsCfg), cfg.SecretName)

	gmailFactory := &gmail.Factory{
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	factory := mailboxFactoryFunc(func(ctx context.Context, bundle secrets.CredentialBundle) (Mailbox, error) {
		mb, err := gmailFactory.NewMailbox(ctx, bundle)
		if err != nil {
			return nil, err
		}
		return mb, nil
	})

	var publisher retrievalevent.Publisher
	if cfg.RetrievalEventsQueueURL != "" {
		publisher = retrievalevent.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.RetrievalEventsQueueURL)
	}

	h := newHandler(resolver, factory, publisher, cfg.DefaultMaxMessages)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
