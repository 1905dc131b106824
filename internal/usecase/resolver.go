package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"realestate-bot/internal/domain"
	"realestate-bot/internal/listing"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTurnTimeout = 90 * time.Second
	apologyTimeout     = 15 * time.Second

	maxPhotoProperties = 2
	maxPhotosPerProp   = 3

	apologyText = "Disculpá, estoy teniendo un problema técnico. Por favor intentá de nuevo en unos minutos o contactanos directamente."
)

type ListingReader interface {
	Listings(ctx context.Context) ([]domain.Property, error)
}

type HistoryStore interface {
	Get(senderKey string) []domain.ChatMessage
	Append(senderKey, role, content string)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// Messenger delivers replies through the WhatsApp gateway.
type Messenger interface {
	SendText(ctx context.Context, number, text string) error
	SendImage(ctx context.Context, number, mediaURL, caption string) error
}

// TurnArchive records resolved turns for later inspection.
type TurnArchive interface {
	RecordTurn(ctx context.Context, rec domain.TurnRecord) error
}

// Pacer blocks until the next photo may be sent. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type Config struct {
	Model       string
	AgencyName  string
	WebURL      string
	TurnTimeout time.Duration
}

// Result describes a turn that was answered.
type Result struct {
	Answer     domain.Answer
	PhotosSent int
}

// Resolver answers one coalesced turn end to end.
type Resolver struct {
	listings  ListingReader
	history   HistoryStore
	llm       LLMClient
	messenger Messenger
	archive   TurnArchive
	pacer     Pacer

	model       string
	prompt      promptContext
	turnTimeout time.Duration
	now         func() time.Time
}

type Option func(*Resolver)

// WithArchive records every handled turn. Archive failures are logged only.
func WithArchive(a TurnArchive) Option {
	return func(r *Resolver) {
		r.archive = a
	}
}

// WithPacer spaces photo dispatches. Without one photos are sent back to back.
func WithPacer(p Pacer) Option {
	return func(r *Resolver) {
		r.pacer = p
	}
}

func NewResolver(l ListingReader, h HistoryStore, llm LLMClient, m Messenger, cfg Config, opts ...Option) (*Resolver, error) {
	if l == nil {
		return nil, errors.New("usecase: listing reader must not be nil")
	}
	if h == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if m == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	r := &Resolver{
		listings:    l,
		history:     h,
		llm:         llm,
		messenger:   m,
		model:       cfg.Model,
		prompt:      promptContext{agencyName: cfg.AgencyName, webURL: cfg.WebURL},
		turnTimeout: cfg.TurnTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Handle resolves turn and, on failure, sends a single apology. It never
// panics on collaborator errors and never returns them; it is meant to be
// the debounce buffer's flush handler.
func (r *Resolver) Handle(turn domain.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), r.turnTimeout)
	defer cancel()

	turnID := newUUID()
	log := slog.With("turn_id", turnID, "sender", turn.SenderKey)
	started := r.now()

	rec := domain.TurnRecord{
		TurnID:      turnID,
		SenderKey:   turn.SenderKey,
		DisplayName: turn.DisplayName,
		Question:    turn.Message,
		Fragments:   turn.Fragments,
		CreatedAt:   started,
	}

	res, err := r.safeResolve(ctx, turn)
	if err != nil {
		code, reason := classify(err)
		log.Error("usecase: turn failed", "code", code, "reason", reason, "err", err)
		rec.Status = domain.TurnFailed
		rec.FailureCode = string(code)
		rec.FailureReason = reason
		rec.Answer = apologyText

		// The turn context may already be spent.
		actx, acancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
		if sendErr := r.messenger.SendText(actx, turn.SenderKey, apologyText); sendErr != nil {
			log.Error("usecase: apology dispatch failed", "err", sendErr)
		}
		acancel()
	} else {
		rec.Status = domain.TurnAnswered
		rec.Answer = res.Answer.Text
		rec.PropertyIDs = res.Answer.PropertyIDs
		log.Info("usecase: turn answered",
			"property_ids", res.Answer.PropertyIDs,
			"photos", res.PhotosSent,
			"elapsed", r.now().Sub(started).Round(time.Millisecond),
		)
	}

	r.record(ctx, log, rec)
}

// safeResolve turns a panic inside Resolve into an internal error so the
// customer still gets the apology.
func (r *Resolver) safeResolve(ctx context.Context, turn domain.Turn) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = newError(ErrorInternal, "panic", fmt.Errorf("%v", p))
		}
	}()
	return r.Resolve(ctx, turn)
}

func (r *Resolver) record(ctx context.Context, log *slog.Logger, rec domain.TurnRecord) {
	if r.archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
	defer cancel()
	if err := r.archive.RecordTurn(actx, rec); err != nil {
		log.Warn("usecase: archive turn failed", "err", err)
	}
}

// Resolve runs the turn: listing fetch, history bookkeeping, model call,
// text reply and photo dispatch. Malformed model output is not an error.
func (r *Resolver) Resolve(ctx context.Context, turn domain.Turn) (Result, error) {
	question := strings.TrimSpace(turn.Message)
	if question == "" {
		return Result{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if strings.TrimSpace(turn.SenderKey) == "" {
		return Result{}, newError(ErrorInvalidInput, "empty_sender", nil)
	}

	props, err := r.listings.Listings(ctx)
	if err != nil {
		return Result{}, newError(ErrorUpstream, "listing_fetch_error", err)
	}

	// Snapshot before recording the question so it is sent once.
	prior := r.history.Get(turn.SenderKey)
	r.history.Append(turn.SenderKey, domain.RoleUser, turn.Message)

	raw, err := r.llm.Chat(ctx, r.model, buildPromptMessages(r.prompt, props, prior, turn.Message))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return Result{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return Result{}, newError(ErrorUpstream, "openai_error", err)
	}
	answer := parseAnswer(raw)

	if err := r.messenger.SendText(ctx, turn.SenderKey, answer.Text); err != nil {
		return Result{}, newError(ErrorUpstream, "gateway_send_error", err)
	}
	r.history.Append(turn.SenderKey, domain.RoleAssistant, answer.Text)

	return Result{Answer: answer, PhotosSent: r.sendPhotos(ctx, turn.SenderKey, props, answer.PropertyIDs)}, nil
}

// sendPhotos is best effort: failed dispatches are logged and skipped.
func (r *Resolver) sendPhotos(ctx context.Context, number string, props []domain.Property, ids []string) int {
	if len(ids) > maxPhotoProperties {
		ids = ids[:maxPhotoProperties]
	}
	sent := 0
	for _, prop := range listing.FindByIDs(props, ids) {
		photos := prop.Photos
		if len(photos) > maxPhotosPerProp {
			photos = photos[:maxPhotosPerProp]
		}
		for i, url := range photos {
			if r.pacer != nil {
				if err := r.pacer.Wait(ctx); err != nil {
					slog.Warn("usecase: photo pacing aborted", "sender", number, "err", err)
					return sent
				}
			}
			caption := ""
			if i == 0 {
				caption = photoCaption(prop)
			}
			if err := r.messenger.SendImage(ctx, number, url, caption); err != nil {
				slog.Warn("usecase: photo dispatch failed", "sender", number, "property_id", prop.ID, "err", err)
				continue
			}
			sent++
		}
	}
	return sent
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
