package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/helpdesk/internal/agent"
	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/messenger"
	"github.com/gosuda/helpdesk/internal/queue"
)

const (
	// DefaultMaxImageBytes caps the size of a downloaded image attachment.
	DefaultMaxImageBytes = 5 << 20

	// BusyMessage is posted when a channel's backlog is full.
	BusyMessage = "I'm still working through earlier messages in this channel. Please try again in a moment."

	dedupeTTL = 10 * time.Minute
)

// supportedImageTypes are the attachment types forwarded to the model.
var supportedImageTypes = map[string]bool{ //nolint:gochecknoglobals // lookup table
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Assistant is the conversational backend behind the webhook.
// *agent.Orchestrator satisfies this interface.
type Assistant interface {
	Submit(ctx context.Context, msg domain.InboundMessage) <-chan queue.Result
	Reset(ctx context.Context, target messenger.Target)
	Stats(channelID string) (agent.ChannelStatus, bool)
}

// Replier posts direct replies for commands handled outside the assistant.
// *SlackMessenger satisfies this interface.
type Replier interface {
	SendMessage(ctx context.Context, channelID, threadTS, text string) (messenger.MessageID, error)
	SendBlocks(ctx context.Context, channelID, threadTS, fallback string, blocks []slacklib.Block) (messenger.MessageID, error)
}

// FileDownloader fetches private Slack files with the bot token.
// *slack.Client satisfies this interface.
type FileDownloader interface {
	GetFileContext(ctx context.Context, downloadURL string, writer io.Writer) error
}

// Deduper reports whether an event key is seen for the first time.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) bool
}

// Handler processes Slack Events API webhooks and feeds human messages to the
// Assistant.
type Handler struct {
	signingSecret string
	assistant     Assistant
	replier       Replier
	files         FileDownloader
	dedupe        Deduper
	botUserID     string
	maxImageBytes int

	wg sync.WaitGroup
}

// HandlerOption configures optional Handler collaborators.
type HandlerOption func(*Handler)

// WithBotUserID sets the bot's own user ID, used to strip its mention and to
// ignore its own messages.
func WithBotUserID(id string) HandlerOption {
	return func(h *Handler) { h.botUserID = id }
}

// WithFileDownloader enables image attachments.
func WithFileDownloader(f FileDownloader) HandlerOption {
	return func(h *Handler) { h.files = f }
}

// WithDeduper replaces the in-memory event deduplication.
func WithDeduper(d Deduper) HandlerOption {
	return func(h *Handler) { h.dedupe = d }
}

// WithMaxImageBytes overrides DefaultMaxImageBytes.
func WithMaxImageBytes(n int) HandlerOption {
	return func(h *Handler) { h.maxImageBytes = n }
}

// NewHandler creates a new Slack webhook handler.
func NewHandler(signingSecret string, assistant Assistant, replier Replier, opts ...HandlerOption) *Handler {
	h := &Handler{
		signingSecret: signingSecret,
		assistant:     assistant,
		replier:       replier,
		dedupe:        NewMemoryDeduper(dedupeTTL),
		maxImageBytes: DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// slackEvent represents the outer envelope of Slack Events API payloads.
type slackEvent struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// innerEvent represents the inner event within an event_callback.
type innerEvent struct {
	Type     string      `json:"type"`
	Subtype  string      `json:"subtype,omitempty"`
	Channel  string      `json:"channel"`
	TS       string      `json:"ts"`
	ThreadTS string      `json:"thread_ts,omitempty"`
	Text     string      `json:"text"`
	User     string      `json:"user"`
	BotID    string      `json:"bot_id,omitempty"`
	Files    []slackFile `json:"files,omitempty"`
}

type slackFile struct {
	ID                 string `json:"id"`
	Mimetype           string `json:"mimetype"`
	Size               int    `json:"size"`
	URLPrivate         string `json:"url_private"`
	URLPrivateDownload string `json:"url_private_download"`
}

// HandleEvents is an http.HandlerFunc for POST /slack/events.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if verifyErr := h.verifySignature(r.Header, body); verifyErr != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// Slack retries events it thinks timed out; the first delivery was
	// already accepted.
	if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
		log.Debug().Str("retry", retry).Str("reason", r.Header.Get("X-Slack-Retry-Reason")).Msg("slack: dropping retried event")
		w.WriteHeader(http.StatusOK)
		return
	}

	var envelope slackEvent
	if unmarshalErr := json.Unmarshal(body, &envelope); unmarshalErr != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		h.handleURLVerification(w, envelope.Challenge)
		return
	case "event_callback":
		h.handleEventCallback(r.Context(), w, envelope.Event)
		return
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// Wait blocks until every accepted event has been handed off.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// handleURLVerification responds to Slack's URL verification challenge.
func (h *Handler) handleURLVerification(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "application/json")

	resp := map[string]string{"challenge": challenge}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		log.Error().Err(encodeErr).Msg("slack: encode url verification response")
	}
}

// handleEventCallback routes an event_callback before acknowledging it, so a
// channel's messages enter the queue in the order Slack delivered them. Only
// waiting for results and posting command replies happen in the background.
func (h *Handler) handleEventCallback(ctx context.Context, w http.ResponseWriter, rawEvent json.RawMessage) {
	var evt innerEvent
	if unmarshalErr := json.Unmarshal(rawEvent, &evt); unmarshalErr != nil {
		http.Error(w, "invalid event JSON", http.StatusBadRequest)
		return
	}

	if !h.accept(ctx, &evt) {
		w.WriteHeader(http.StatusOK)
		return
	}

	if finish := h.dispatch(ctx, &evt); finish != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			finish()
		}()
	}

	w.WriteHeader(http.StatusOK)
}

// accept filters events down to first-seen human messages.
func (h *Handler) accept(ctx context.Context, evt *innerEvent) bool {
	if evt.Type != "message" && evt.Type != "app_mention" {
		return false
	}
	if evt.BotID != "" || evt.User == "" || evt.User == h.botUserID {
		return false
	}
	if evt.Subtype != "" && evt.Subtype != "file_share" && evt.Subtype != "thread_broadcast" {
		return false
	}
	if evt.Channel == "" {
		return false
	}
	// A mention arrives both as message and app_mention with the same ts.
	return h.dedupe.FirstSeen(ctx, evt.Channel+":"+evt.TS)
}

// dispatch handles the event up to the point where its order is fixed and
// returns the remaining work, or nil when there is none. Image downloads use
// the request context; everything that outlives the request does not.
func (h *Handler) dispatch(ctx context.Context, evt *innerEvent) func() {
	bg := context.WithoutCancel(ctx)
	cmd := ParseCommand(evt.Text, h.botUserID)
	target := messenger.Target{ChannelID: evt.Channel, ThreadTS: evt.ThreadTS}
	logger := log.With().Str("channel_id", evt.Channel).Str("user_id", evt.User).Logger()

	switch cmd.Action {
	case CommandActionReset:
		h.assistant.Reset(bg, target)
		logger.Info().Msg("slack: session reset by user")
		return nil

	case CommandActionStats:
		return func() {
			status, _ := h.assistant.Stats(evt.Channel)
			if _, err := h.replier.SendBlocks(bg, target.ChannelID, target.ThreadTS, StatsFallback(status), BuildStatsBlocks(status)); err != nil {
				logger.Warn().Err(err).Msg("slack: stats reply failed")
			}
		}

	case CommandActionHelp:
		return func() {
			if _, err := h.replier.SendMessage(bg, target.ChannelID, target.ThreadTS, HelpText); err != nil {
				logger.Warn().Err(err).Msg("slack: help reply failed")
			}
		}
	}

	images := h.downloadImages(ctx, evt.Files)
	if cmd.Action == CommandActionUnknown && len(images) == 0 {
		return nil
	}

	msg := domain.InboundMessage{
		ChannelID: evt.Channel,
		UserID:    evt.User,
		Text:      cmd.Text,
		Images:    images,
		ThreadTS:  evt.ThreadTS,
	}

	results := h.assistant.Submit(bg, msg)
	return func() {
		res := <-results
		switch {
		case errors.Is(res.Err, queue.ErrFull):
			logger.Warn().Msg("slack: channel backlog full")
			if _, err := h.replier.SendMessage(bg, target.ChannelID, target.ThreadTS, BusyMessage); err != nil {
				logger.Warn().Err(err).Msg("slack: busy reply failed")
			}
		case res.Err != nil:
			logger.Error().Err(res.Err).Msg("slack: message processing failed")
		}
	}
}

// downloadImages fetches supported image attachments. Failures and oversized
// files are skipped.
func (h *Handler) downloadImages(ctx context.Context, files []slackFile) []domain.Image {
	if h.files == nil || len(files) == 0 {
		return nil
	}

	var images []domain.Image
	for _, f := range files {
		if !supportedImageTypes[f.Mimetype] {
			continue
		}
		if f.Size > h.maxImageBytes {
			log.Debug().Str("file_id", f.ID).Int("size", f.Size).Msg("slack: image too large, skipped")
			continue
		}
		url := f.URLPrivateDownload
		if url == "" {
			url = f.URLPrivate
		}

		var buf bytes.Buffer
		if err := h.files.GetFileContext(ctx, url, &buf); err != nil {
			log.Warn().Err(err).Str("file_id", f.ID).Msg("slack: image download failed")
			continue
		}
		if buf.Len() > h.maxImageBytes {
			continue
		}
		images = append(images, domain.Image{MediaType: f.Mimetype, Data: buf.Bytes()})
	}
	return images
}

// verifySignature validates the Slack request signature using the signing secret.
func (h *Handler) verifySignature(header http.Header, body []byte) error {
	sv, err := slacklib.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("slack.Handler.verifySignature: create verifier: %w", err)
	}

	if _, writeErr := sv.Write(body); writeErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: write body: %w", writeErr)
	}

	if ensureErr := sv.Ensure(); ensureErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: ensure: %w", ensureErr)
	}

	return nil
}
