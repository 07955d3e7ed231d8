// Package telemetry wraps Sentry tracing and error reporting for the tutor
// server. Every helper is safe to call when Sentry was never initialized.
package telemetry

import (
	"context"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const (
	serverName   = "coursetutor"
	flushTimeout = 5 * time.Second
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
}

var apiKeyPattern = regexp.MustCompile(`ctu_[0-9a-f]{8,64}`)

// Init starts the Sentry client and returns a flush function for shutdown.
// An empty DSN leaves Sentry disabled. An init failure is logged and
// reported as disabled rather than stopping the server.
func Init(cfg Config, logger *zap.Logger) (func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       serverName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		BeforeSend:       scrub,
	})
	if err != nil {
		logger.Warn("sentry: init failed, running without it", zap.Error(err))
		return noop, nil
	}

	logger.Info("sentry: enabled",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", cfg.TracesSampleRate),
	)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler drops probe endpoints and keeps child spans with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(sc sentry.SamplingContext) float64 {
		switch sc.Span.Name {
		case "GET /health", "GET /metrics":
			return 0
		}
		if sc.Span.ParentSpanID != (sentry.SpanID{}) {
			if sc.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// scrub removes credentials and student message bodies from outgoing events.
func scrub(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if req := event.Request; req != nil {
		req.Data = ""
		req.Cookies = ""
		for name := range req.Headers {
			switch name {
			case "Authorization", "Cookie", "X-Api-Key":
				req.Headers[name] = "[redacted]"
			}
		}
		req.QueryString = apiKeyPattern.ReplaceAllString(req.QueryString, "ctu_[redacted]")
	}
	event.Message = apiKeyPattern.ReplaceAllString(event.Message, "ctu_[redacted]")
	for i := range event.Exception {
		event.Exception[i].Value = apiKeyPattern.ReplaceAllString(event.Exception[i].Value, "ctu_[redacted]")
	}
	return event
}

// SpanAttributes are the tags attached to service spans.
type SpanAttributes struct {
	CourseID       string
	DocumentID     string
	ConversationID string
	UserID         string
	Operation      string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	for tag, v := range map[string]string{
		"course_id":       a.CourseID,
		"document_id":     a.DocumentID,
		"conversation_id": a.ConversationID,
		"user_id":         a.UserID,
	} {
		if v != "" {
			span.SetTag(tag, v)
		}
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is a nil-safe handle on a Sentry span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports err on the span's hub.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// StartSpan opens a child of the span in ctx, or a new transaction when
// there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// StartTransaction always opens a root span, used for background jobs.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	span := sentry.StartSpan(ctx, op,
		sentry.WithTransactionName(name),
		sentry.WithOpName(op),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	return span.Context(), &Span{inner: span}
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureError reports err on the hub carried by ctx.
func CaptureError(ctx context.Context, err error) {
	hubFor(ctx).CaptureException(err)
}

// CaptureErrorWithTags reports err with extra tags on a cloned scope.
func CaptureErrorWithTags(ctx context.Context, err error, tags map[string]string) {
	hub := hubFor(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// CaptureMessage reports an informational event.
func CaptureMessage(ctx context.Context, message string) {
	hubFor(ctx).CaptureMessage(message)
}

// AddBreadcrumb records a step on the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFor(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
