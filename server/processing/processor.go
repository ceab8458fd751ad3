package processing

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/errors"
	"github.com/teilomillet/parley/server/attachment"
	"github.com/teilomillet/parley/server/conversation"
	"github.com/teilomillet/parley/server/metrics"
	"github.com/teilomillet/parley/server/moderation"
	"github.com/teilomillet/parley/server/provider"
	"go.uber.org/zap"
)

// Processor runs chat exchanges against per-session memory.
//
// Each exchange holds its session's lock from extraction to the memory
// write, so concurrent requests on one session are serialized and every
// user turn is followed by its own answer. Different sessions run in
// parallel.
type Processor struct {
	store     *conversation.Store
	completer provider.Completer
	moderator moderation.Moderator
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu        sync.RWMutex
	assembler Assembler
	extractor *attachment.Extractor
	opts      provider.Options
}

// Option customizes a Processor.
type Option func(*Processor)

// WithModerator replaces the blocklist built from configuration.
func WithModerator(m moderation.Moderator) Option {
	return func(p *Processor) {
		p.moderator = m
	}
}

// WithMetrics records outcomes and session counts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor creates a processor from cfg that sends conversations to c.
func NewProcessor(cfg *config.Config, c provider.Completer, logger *zap.Logger, opts ...Option) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if c == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	counter, err := conversation.NewTokenCounter(cfg.Memory.Tokenizer, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("token counter: %w", err)
	}

	p := &Processor{
		store:     conversation.NewStore(policyFromConfig(cfg.Memory), counter),
		completer: c,
		moderator: moderation.NewBlocklist(cfg.Moderation.BlockedTerms, cfg.Moderation.Refusal),
		logger:    logger,
	}
	p.store.SetMaxSessions(cfg.Memory.MaxSessions)
	p.load(cfg)

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func policyFromConfig(cfg config.MemoryConfig) conversation.Policy {
	return conversation.Policy{MaxTurns: cfg.MaxTurns, MaxTokens: cfg.MaxTokens}
}

func (p *Processor) load(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assembler = Assembler{
		SystemPrompt:   cfg.LLM.SystemPrompt,
		DefaultCaption: cfg.Upload.DefaultCaption,
	}
	p.extractor = attachment.NewExtractor(cfg.Upload.MaxDocumentPages)
	p.opts = provider.OptionsFromConfig(cfg.LLM)
}

// ApplyConfig swaps the reloadable settings: system prompt, caption,
// generation options, page limit, retention policy, session limit and, for
// the built-in blocklist, the moderation terms. Exchanges already running finish with
// the settings they started with.
func (p *Processor) ApplyConfig(cfg *config.Config) {
	p.load(cfg)
	p.store.SetPolicy(policyFromConfig(cfg.Memory))
	p.store.SetMaxSessions(cfg.Memory.MaxSessions)
	fields := []zap.Field{
		zap.Int("max_turns", cfg.Memory.MaxTurns),
		zap.Int("max_tokens", cfg.Memory.MaxTokens),
		zap.Int("max_sessions", cfg.Memory.MaxSessions),
	}
	if bl, ok := p.moderator.(*moderation.Blocklist); ok {
		bl.SetTerms(cfg.Moderation.BlockedTerms, cfg.Moderation.Refusal)
		fields = append(fields, zap.Strings("blocked_terms", bl.Terms()))
	}
	p.logger.Info("Processor configuration applied", fields...)
}

func (p *Processor) snapshot() (Assembler, *attachment.Extractor, provider.Options) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.assembler, p.extractor, p.opts
}

// Process runs one exchange and returns the moderated answer.
//
// Errors are *errors.ParleyError of type ValidationError, ExtractionError
// or ProviderError, or the context error when the session lock could not
// be taken. Memory is only written when an answer is returned.
func (p *Processor) Process(ctx context.Context, in Input) (string, error) {
	if in.IsEmpty() {
		return "", errors.NewValidationError(in.RequestID, NoInputMessage, nil)
	}

	sess, err := p.store.Acquire(ctx, in.SessionID)
	p.observeSessions()
	if err != nil {
		p.observe(metrics.OutcomeCanceled)
		return "", err
	}
	defer sess.Release()

	assembler, extractor, opts := p.snapshot()
	logger := p.logger.With(
		zap.String("request_id", in.RequestID),
		zap.String("session_id", sess.ID),
	)

	var payload attachment.Payload
	if att := in.Attachment(); att != nil {
		payload, err = extractor.Extract(att)
		switch {
		case stderrors.Is(err, attachment.ErrNoText) && in.Text != "":
			// A document without a text layer adds nothing; the text
			// alone is still answered.
			logger.Info("Attachment has no text, sending text only",
				zap.String("file", att.Filename()),
			)
			payload = nil
		case err != nil:
			p.observe(metrics.OutcomeExtractionError)
			return "", errors.NewExtractionError(in.RequestID, err)
		default:
			p.countAttachment(payload)
			logger.Debug("Attachment extracted",
				zap.String("file", att.Filename()),
				zap.Int("size", att.Size()),
			)
		}
	}

	turns, err := assembler.Assemble(sess.Transcript().History(), in.Text, payload)
	if err != nil {
		return "", errors.NewInternalError(in.RequestID, err)
	}

	answer, err := p.completer.Complete(ctx, turns, opts)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = provider.ErrEmptyResponse
	}
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			p.observe(metrics.OutcomeCanceled)
		} else {
			p.observe(metrics.OutcomeProviderError)
		}
		return "", errors.NewProviderError(in.RequestID, "Completion failed", err)
	}

	moderated := p.moderator.Moderate(answer)

	user, err := conversation.UserText(in.Description())
	if err != nil {
		return "", errors.NewInternalError(in.RequestID, err)
	}
	assistant, err := conversation.AssistantText(moderated)
	if err != nil {
		return "", errors.NewInternalError(in.RequestID, err)
	}
	if err := sess.Transcript().Append(user, assistant); err != nil {
		return "", errors.NewInternalError(in.RequestID, err)
	}

	if moderated != answer {
		p.observe(metrics.OutcomeRefused)
		fields := []zap.Field{}
		if m, ok := p.moderator.(moderation.Matcher); ok {
			if term, found := m.Match(answer); found {
				fields = append(fields, zap.String("term", term))
			}
		}
		logger.Info("Answer refused by moderation", fields...)
	} else {
		p.observe(metrics.OutcomeOK)
	}
	logger.Debug("Exchange recorded",
		zap.Int("turns_sent", len(turns)),
		zap.Int("history_len", sess.Transcript().Len()),
	)
	return moderated, nil
}

// Chat runs Process and flattens any failure into the answer string.
func (p *Processor) Chat(ctx context.Context, in Input) string {
	answer, err := p.Process(ctx, in)
	if err != nil {
		errors.LogError(p.logger, err, in.RequestID)
		return errors.Answer(err)
	}
	return answer
}

// Reset clears the memory of a session. It waits for an exchange already
// running on the session, so that exchange's pair does not survive the
// reset, and gives up when ctx is done.
func (p *Processor) Reset(ctx context.Context, sessionID string) error {
	if err := p.store.Reset(ctx, sessionID); err != nil {
		return err
	}
	p.logger.Info("Session memory reset", zap.String("session_id", sessionID))
	return nil
}

// History returns the stored turns of a session, oldest first. Unknown
// sessions have no history.
func (p *Processor) History(sessionID string) []conversation.Turn {
	sess, ok := p.store.Lookup(sessionID)
	if !ok {
		return nil
	}
	return sess.Transcript().History()
}

func (p *Processor) observeSessions() {
	if p.metrics != nil {
		p.metrics.ActiveSessions.Set(float64(p.store.Sessions()))
	}
}

func (p *Processor) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.ChatOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (p *Processor) countAttachment(payload attachment.Payload) {
	if p.metrics == nil {
		return
	}
	switch payload.(type) {
	case attachment.DocumentText:
		p.metrics.AttachmentsTotal.WithLabelValues("document").Inc()
	case attachment.EncodedImage:
		p.metrics.AttachmentsTotal.WithLabelValues("image").Inc()
	}
}
