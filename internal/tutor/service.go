// Package tutor runs Socratic tutoring conversations: it owns the turn
// protocol, the conversation access rules and the prompt scaffolding.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/ports"
	"github.com/tjfontaine/classroom-llm-gateway/internal/provider"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage"
	"github.com/tjfontaine/classroom-llm-gateway/internal/telemetry"
	"github.com/tjfontaine/classroom-llm-gateway/internal/tokens"
)

// Model is a client bound to one model, as returned by access.Resolver.
type Model interface {
	Provider() string
	Model() string
	Complete(ctx context.Context, turns []domain.Turn, sampling domain.SamplingParams) (*domain.CompletionResponse, error)
}

// Config holds the turn settings.
type Config struct {
	// ModelTimeout bounds each provider call
	ModelTimeout time.Duration

	// Sampling is sent with every completion
	Sampling domain.SamplingParams

	// MaxPromptTokens rejects larger prompts before the call; 0 disables
	MaxPromptTokens int

	// HistoryLimit is the default History size
	HistoryLimit int
}

// DefaultConfig returns the standard tutoring settings.
func DefaultConfig() Config {
	return Config{
		ModelTimeout: 60 * time.Second,
		Sampling:     domain.DefaultSampling(),
		HistoryLimit: 10,
	}
}

// Service runs tutoring turns against a conversation store.
type Service struct {
	store      ports.ConversationStore
	cfg        Config
	counter    *tokens.Registry
	classifier *provider.Classifier
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces the default settings.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTokenCounter sets the counter used by the prompt-size preflight.
func WithTokenCounter(r *tokens.Registry) Option {
	return func(s *Service) {
		s.counter = r
	}
}

// NewService creates a tutoring service over store.
func NewService(store ports.ConversationStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.counter == nil {
		s.counter = tokens.NewRegistry()
	}
	s.classifier = provider.NewClassifier(s.logger, s.metrics)
	return s
}

// Start creates a conversation and runs the opening turn. The id is returned
// even when the opening turn fails, since the conversation already exists.
func (s *Service) Start(ctx context.Context, ac *domain.AuthContext, llm Model, topic, notes string) (string, error) {
	if !ac.IsAuthenticated() {
		return "", domain.ErrConversationAccessDenied()
	}

	conv := &domain.Conversation{
		ID:       uuid.NewString(),
		OwnerID:  ac.IdentityID,
		TenantID: ac.TenantID,
		Topic:    topic,
		Context:  notes,
		Turns:    []domain.Turn{},
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	s.metrics.ConversationStarted()
	s.logger.InfoContext(ctx, "conversation started",
		slog.String("conversation_id", conv.ID),
		slog.Int64("identity_id", ac.IdentityID),
		slog.Int64("tenant_id", ac.TenantID),
	)

	return conv.ID, s.runTurn(ctx, llm, conv)
}

// Continue appends the user's message and runs one turn. The user turn is
// stored before the model is called.
func (s *Service) Continue(ctx context.Context, ac *domain.AuthContext, llm Model, id, message string) error {
	conv, err := s.load(ctx, ac, id)
	if err != nil {
		return err
	}

	conv.Turns = append(conv.Turns, domain.Turn{Role: domain.TurnUser, Content: message})
	if err := s.saveTurns(ctx, conv, "user"); err != nil {
		return err
	}

	return s.runTurn(ctx, llm, conv)
}

// Get returns a conversation the caller may view.
func (s *Service) Get(ctx context.Context, ac *domain.AuthContext, id string) (*domain.Conversation, error) {
	return s.load(ctx, ac, id)
}

// History lists the caller's most recent conversations. A non-positive
// limit uses the configured default.
func (s *Service) History(ctx context.Context, ac *domain.AuthContext, limit int) ([]domain.ConversationSummary, error) {
	if !ac.IsAuthenticated() {
		return []domain.ConversationSummary{}, nil
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	summaries, err := s.store.ListConversations(ctx, ac.IdentityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summaries, nil
}

// AdminSummaries lists every conversation for platform admins.
func (s *Service) AdminSummaries(ctx context.Context, ac *domain.AuthContext) ([]domain.ConversationSummary, error) {
	if ac == nil || !ac.IsAdmin {
		return nil, domain.ErrConversationAccessDenied()
	}
	summaries, err := s.store.ListAllConversations(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summaries, nil
}

func (s *Service) load(ctx context.Context, ac *domain.AuthContext, id string) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrConversationNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if !CanAccess(ac, conv) {
		s.logger.InfoContext(ctx, "conversation access denied",
			slog.String("conversation_id", id),
			slog.Int64("identity_id", ac.IdentityID),
		)
		return nil, domain.ErrConversationAccessDenied()
	}
	return conv, nil
}

// CanAccess reports whether ac may view or continue conv: its owner, a
// platform admin, or an instructor of the tenant that owns it.
func CanAccess(ac *domain.AuthContext, conv *domain.Conversation) bool {
	if ac == nil {
		return false
	}
	switch {
	case ac.IdentityID != 0 && ac.IdentityID == conv.OwnerID:
		return true
	case ac.IsAdmin:
		return true
	case ac.IsInstructor() && conv.TenantID != 0 && ac.TenantID == conv.TenantID:
		return true
	}
	return false
}

// saveTurns persists conv.Turns. A conversation written by another request
// since it was loaded fails with storage.ErrNotAppendOnly and is left as is.
func (s *Service) saveTurns(ctx context.Context, conv *domain.Conversation, role string) error {
	err := s.store.SaveTurns(ctx, conv.ID, conv.Turns)
	if errors.Is(err, storage.ErrNotAppendOnly) {
		s.logger.WarnContext(ctx, "conversation changed since it was loaded",
			slog.String("conversation_id", conv.ID),
			slog.String("turn", role),
			slog.Int("turns", len(conv.Turns)),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to save %s turn: %w", role, err)
	}
	return nil
}

// runTurn calls the model with the scaffolded prompt and stores its reply.
// Failures leave the stored conversation untouched.
func (s *Service) runTurn(ctx context.Context, llm Model, conv *domain.Conversation) error {
	ctx, span := telemetry.Tracer().Start(ctx, "tutor.Turn",
		trace.WithAttributes(
			attribute.String("conversation.id", conv.ID),
			attribute.String("model", llm.Model()),
			attribute.Int("conversation.turns", len(conv.Turns)),
		),
	)
	defer span.End()

	prompt := BuildPrompt(conv.Topic, conv.Context, conv.Turns)

	if s.cfg.MaxPromptTokens > 0 {
		n, estimated := s.counter.CountTurns(llm.Model(), prompt)
		if n > s.cfg.MaxPromptTokens {
			s.logger.InfoContext(ctx, "prompt exceeds token limit",
				slog.String("conversation_id", conv.ID),
				slog.Int("tokens", n),
				slog.Bool("estimated", estimated),
				slog.Int("limit", s.cfg.MaxPromptTokens),
			)
			span.SetStatus(codes.Error, string(domain.KindContextTooLong))
			return domain.NewError(domain.KindContextTooLong).
				WithDetail(fmt.Sprintf("prompt has %d tokens, limit %d", n, s.cfg.MaxPromptTokens))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := llm.Complete(callCtx, prompt, s.cfg.Sampling)
	elapsed := time.Since(start)
	if err != nil {
		derr := s.classifier.Classify(ctx, err)
		s.metrics.ModelCall(llm.Provider(), string(derr.Kind), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(derr.Kind))
		return derr
	}
	s.metrics.ModelCall(llm.Provider(), "ok", elapsed)

	text := strings.TrimSpace(resp.Text)
	if resp.FinishReason == domain.FinishLength {
		text += TruncationMarker
	}

	conv.Turns = append(conv.Turns, domain.Turn{Role: domain.TurnAssistant, Content: text})
	if err := s.saveTurns(ctx, conv, "assistant"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return err
	}

	s.logger.DebugContext(ctx, "tutor turn completed",
		slog.String("conversation_id", conv.ID),
		slog.Duration("elapsed", elapsed),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return nil
}
