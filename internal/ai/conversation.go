package ai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// NoResponseText replaces a reply that carried no candidate text
	NoResponseText = "No response"
	// NotConfiguredMessage is reported when the session has no sender
	NotConfiguredMessage = "API key not configured"
	// GenericErrorMessage is reported when the API failed without saying why
	GenericErrorMessage = "API error"
	// CanceledMessage is reported for canceled requests
	CanceledMessage = "Response canceled."
)

// State is the request lifecycle state of a Session
type State int

const (
	StateIdle State = iota
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// Outcome is the terminal state of one Send
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCanceled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Settlement is the terminal outcome of one Send
type Settlement struct {
	RequestID string
	Outcome   Outcome
	Text      string // The model reply; set only when Completed
	Message   string // Human-readable reason; set when Canceled or Failed
	Err       error
}

// Sink receives turns as they become visible. User turns and completed model turns are final; streamed model text is
// delivered as a non-final turn holding everything received so far. Sink methods may be called from the goroutine
// running the outbound call.
type Sink interface {
	TurnRendered(turn Turn, final bool)
}

// SettleFunc is invoked exactly once per Send, after the session is back to idle
type SettleFunc func(Settlement)

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithTracer sets the tracer used for send spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) { s.tracer = tracer }
}

// WithSink sets the render sink
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithSettleFunc sets the callback invoked on every settlement
func WithSettleFunc(fn SettleFunc) Option {
	return func(s *Session) { s.onSettle = fn }
}

// Session owns the conversation history and at most one in-flight request. All state is guarded by mu, which is the
// single serialized context every mutation goes through.
type Session struct {
	id       string
	sender   Sender
	logger   zerolog.Logger
	tracer   trace.Tracer
	sink     Sink
	onSettle SettleFunc

	mu       sync.Mutex
	history  []Turn
	inFlight *Request
}

// NewSession creates a session that sends through sender. A nil sender means no credential is configured: every Send
// then settles as Failed without touching the network.
func NewSession(sender Sender, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		sender: sender,
		logger: zerolog.Nop(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("session_id", s.id).Logger()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Configured reports whether the session has a sender
func (s *Session) Configured() bool {
	return s.sender != nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight != nil {
		return StateSending
	}
	return StateIdle
}

// History returns a copy of the conversation history
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTurns(s.history)
}

// Send appends a user turn and starts one outbound call carrying the whole history. Validation errors are returned
// synchronously and leave the history untouched; every other failure is reported through the returned request's
// settlement.
func (s *Session) Send(ctx context.Context, text string, attachment *InlineData) (*Request, error) {
	text = strings.TrimSpace(text)
	if attachment != nil && attachment.Data == "" {
		attachment = nil
	}
	if text == "" && attachment == nil {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	if s.inFlight != nil {
		s.mu.Unlock()
		return nil, ErrConcurrentSend
	}
	turn := NewUserTurn(text, attachment)
	s.history = append(s.history, turn)
	history := cloneTurns(s.history)

	reqCtx, cancel := context.WithCancel(ctx)
	req := &Request{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.inFlight = req
	s.mu.Unlock()

	s.logger.Debug().Str("request_id", req.id).Int("turns", len(history)).Msg("Sending message")
	s.emit(turn, true)

	go s.run(reqCtx, req, history)
	return req, nil
}

// Cancel signals the in-flight request to stop. The resulting settlement is Canceled even if a reply arrives anyway.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		return ErrNoActiveRequest
	}
	if !s.inFlight.canceled {
		s.inFlight.canceled = true
		s.inFlight.cancel()
	}
	return nil
}

// Clear truncates the history. It fails while a request is in flight.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight != nil {
		return ErrConcurrentSend
	}
	s.history = nil
	return nil
}

func (s *Session) run(ctx context.Context, req *Request, history []Turn) {
	ctx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.session_id", s.id),
		attribute.String("chat.request_id", req.id),
		attribute.Int("chat.turns", len(history)),
	))

	var (
		reply Reply
		err   error
	)
	if s.sender == nil {
		err = &ConfigurationError{Message: NotConfiguredMessage}
	} else {
		var streamed strings.Builder
		reply, err = s.sender.Send(ctx, history, func(delta string) {
			if delta == "" || ctx.Err() != nil {
				return
			}
			streamed.WriteString(delta)
			s.emit(NewModelTurn(streamed.String()), false)
		})
	}

	st := s.settle(ctx, req, reply, err)

	span.SetAttributes(attribute.String("chat.outcome", st.Outcome.String()))
	if st.Outcome == OutcomeFailed {
		span.RecordError(st.Err)
		span.SetStatus(codes.Error, st.Message)
	}
	span.End()

	close(req.done)
}

// settle records the outcome, returns the session to idle and fires the callbacks. The caller closes req.done.
func (s *Session) settle(ctx context.Context, req *Request, reply Reply, err error) Settlement {
	st := Settlement{RequestID: req.id}

	s.mu.Lock()
	switch {
	case req.canceled || errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		st.Outcome = OutcomeCanceled
		st.Message = CanceledMessage
		st.Err = ErrCanceled
	case err != nil:
		st.Outcome = OutcomeFailed
		st.Message = failureMessage(err)
		st.Err = err
	default:
		text := strings.TrimSpace(reply.Text)
		if !reply.Found || text == "" {
			text = NoResponseText
		}
		s.history = append(s.history, NewModelTurn(text))
		st.Outcome = OutcomeCompleted
		st.Text = text
	}
	req.settlement = st
	s.inFlight = nil
	req.cancel()
	s.mu.Unlock()

	event := s.logger.Info()
	if st.Outcome == OutcomeFailed {
		event = s.logger.Warn().Err(st.Err)
	}
	event.Str("request_id", req.id).Str("outcome", st.Outcome.String()).Msg("Request settled")

	if st.Outcome == OutcomeCompleted {
		s.emit(NewModelTurn(st.Text), true)
	}
	if s.onSettle != nil {
		s.onSettle(st)
	}
	return st
}

func (s *Session) emit(turn Turn, final bool) {
	if s.sink != nil {
		s.sink.TurnRendered(turn, final)
	}
}

func failureMessage(err error) string {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Message
	}
	var te *TransportError
	if errors.As(err, &te) {
		if te.Message != "" {
			return te.Message
		}
		if te.StatusCode != 0 || te.Err == nil {
			return GenericErrorMessage
		}
		return te.Err.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericErrorMessage
}

// Request is the handle of one in-flight outbound call
type Request struct {
	id       string
	cancel   context.CancelFunc
	canceled bool // Guarded by Session.mu

	done       chan struct{}
	settlement Settlement // Written before done is closed
}

// ID returns the request identifier
func (r *Request) ID() string {
	return r.id
}

// Done is closed once the request has settled and the settle callback has returned
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Settlement returns the outcome, or false if the request hasn't settled yet
func (r *Request) Settlement() (Settlement, bool) {
	select {
	case <-r.done:
		return r.settlement, true
	default:
		return Settlement{}, false
	}
}

// Wait blocks until the request settles or ctx is done
func (r *Request) Wait(ctx context.Context) (Settlement, error) {
	select {
	case <-r.done:
		return r.settlement, nil
	case <-ctx.Done():
		return Settlement{}, ctx.Err()
	}
}
