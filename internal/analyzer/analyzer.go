package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/tributeguard/internal/extract"
	"github.com/ppiankov/tributeguard/internal/policy"
	"github.com/ppiankov/tributeguard/internal/schema"
)

// Error classes. Every error returned by Analyze wraps exactly one of them.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrExtractionFailure = errors.New("extraction failure")
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-5-nano"

// DefaultTimeout bounds a single extraction call.
const DefaultTimeout = 30 * time.Second

// Request is one tribute submitted for analysis. A nil Policy selects the
// default policy.
type Request struct {
	Text   string
	Policy *string
}

// Result is the verdict: the flagged spans in extraction order. An empty
// list means approved.
type Result struct {
	FlaggedContent []string `json:"flaggedContent"`
}

// Approved reports whether nothing was flagged.
func (r Result) Approved() bool {
	return len(r.FlaggedContent) == 0
}

// Verdict returns "approved" or "flagged".
func (r Result) Verdict() string {
	if r.Approved() {
		return "approved"
	}
	return "flagged"
}

// Outcome describes a completed analysis for observers.
type Outcome struct {
	RequestID  string
	Source     string
	Text       string
	Policy     string
	PolicyHash string
	Model      string
	Result     Result
	Duration   time.Duration
}

// Observer is notified after every successful analysis. Observer errors
// are logged and never change the result.
type Observer interface {
	Observe(ctx context.Context, o Outcome) error
}

// Analyzer turns tribute text and a policy into a verdict through one
// extraction call. It holds no per-request state and is safe for
// concurrent use.
type Analyzer struct {
	extractor     extract.Extractor
	model         string
	timeout       time.Duration
	defaultPolicy func() string
	observers     []Observer
	logger        *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithModel sets the model identifier passed to the extractor.
func WithModel(model string) Option {
	return func(a *Analyzer) {
		if model != "" {
			a.model = model
		}
	}
}

// WithTimeout bounds each extraction call. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithDefaultPolicy replaces the source of the policy used when a request
// carries none. The function is called once per request.
func WithDefaultPolicy(fn func() string) Option {
	return func(a *Analyzer) {
		if fn != nil {
			a.defaultPolicy = fn
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(a *Analyzer) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// WithLogger sets the logger for observer failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Analyzer backed by ex.
func New(ex extract.Extractor, opts ...Option) *Analyzer {
	a := &Analyzer{
		extractor:     ex,
		model:         DefaultModel,
		timeout:       DefaultTimeout,
		defaultPolicy: policy.Default,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Model returns the configured model identifier.
func (a *Analyzer) Model() string {
	return a.model
}

// Analyze validates req, makes one extraction call and returns the flagged
// spans verbatim. Invalid input fails before any outbound call. Any
// extraction problem fails with ErrExtractionFailure; there are no partial
// results and no retries.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	return a.analyze(ctx, "", req)
}

// AnalyzeWithID is Analyze with a caller-assigned request id passed to
// observers.
func (a *Analyzer) AnalyzeWithID(ctx context.Context, requestID string, req Request) (Result, error) {
	return a.analyze(ctx, requestID, req)
}

func (a *Analyzer) analyze(ctx context.Context, requestID string, req Request) (Result, error) {
	if err := Validate(req); err != nil {
		return Result{}, err
	}

	p := req.Policy
	var governing string
	if p != nil && strings.TrimSpace(*p) != "" {
		governing = *p
	} else {
		governing = a.defaultPolicy()
	}
	if strings.TrimSpace(governing) == "" {
		governing = policy.Default()
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.extractor.Extract(callCtx, extract.NewCall(a.model, governing, req.Text))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}

	spans, err := schema.Decode(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}

	// Observers record a completed analysis even if the caller has gone.
	result := Result{FlaggedContent: spans}
	a.notify(context.WithoutCancel(ctx), Outcome{
		RequestID:  requestID,
		Source:     SourceFrom(ctx),
		Text:       req.Text,
		Policy:     governing,
		PolicyHash: policy.Hash(governing),
		Model:      a.model,
		Result:     result,
		Duration:   time.Since(start),
	})
	return result, nil
}

func (a *Analyzer) notify(ctx context.Context, o Outcome) {
	for _, obs := range a.observers {
		if err := obs.Observe(ctx, o); err != nil {
			a.logger.Warn("analysis observer failed", "request_id", o.RequestID, "err", err)
		}
	}
}

type sourceKey struct{}

// ContextWithSource tags ctx with the transport that received the request
// ("http", "grpc", "mcp", "cli"). Observers see it as Outcome.Source.
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the transport tag set by ContextWithSource.
func SourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}

// UserMessage returns the caller-facing text of an invalid-input error,
// without the error-class prefix.
func UserMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
}

// Validate checks a request without calling out.
func Validate(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: Text is required and must be a non-empty string", ErrInvalidInput)
	}
	return nil
}
