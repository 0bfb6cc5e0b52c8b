package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/internal/faq"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// Outcome names the branch HandleMessage took.
type Outcome string

const (
	OutcomeHumanOwned          Outcome = "human_owned"
	OutcomeAwaitingHuman       Outcome = "awaiting_human"
	OutcomeEscalationOffered   Outcome = "escalation_offered"
	OutcomeEscalationRequested Outcome = "escalation_requested"
	OutcomeFAQLowConfidence    Outcome = "faq_low_confidence"
	OutcomeCasualLowConfidence Outcome = "casual_low_confidence"
	OutcomeAnswered            Outcome = "answered"
	OutcomeBookingIncomplete   Outcome = "booking_incomplete"
	OutcomeCallBooked          Outcome = "call_booked"
)

// Replies the bot sends verbatim.
const (
	ReplyEscalationChoice = "Would you like to connect with an admin now, or schedule a follow-up call for later?"
	ReplyConnecting       = "Please wait a moment while I connect you with our admin."
	ReplyAskPhone         = "Can you provide your phone number so we can reach you?"
	ReplyAskTimeToo       = " Also, when would you like us to call you?"
	ReplyAskTime          = "When would you like us to schedule the call?"
	replyConfirmation     = "Thanks! Your call is scheduled for %s. An admin will reach you on %s at this time."
)

// Store is the slice of chat.Repository the orchestrator needs.
type Store interface {
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
	AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string) (*chat.Message, error)
	UpdateSession(ctx context.Context, id string, update chat.SessionUpdate) (*chat.Session, error)
}

// EscalationKind says why staff are being alerted.
type EscalationKind string

const (
	EscalationAdminRequested EscalationKind = "admin_requested"
	EscalationCallBooked     EscalationKind = "call_booked"
)

// Escalation is handed to the Notifier when a human is needed.
type Escalation struct {
	Kind    EscalationKind
	Session chat.Session
	Message string
}

// Notifier alerts staff. Failures never affect the conversation.
type Notifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation) error
}

// OutcomeObserver counts handled messages by outcome.
type OutcomeObserver interface {
	ObserveOutcome(outcome string)
}

var orchestratorTracer = otel.Tracer("havana.internal.conversation")

// Orchestrator decides how the bot reacts to one visitor message.
type Orchestrator struct {
	store      Store
	taxonomy   faq.Repository
	classifier *IntentClassifier
	extractor  *BookingExtractor
	answers    *AnswerGenerator

	notifier     Notifier
	observer     OutcomeObserver
	logger       *logging.Logger
	tracer       trace.Tracer
	now          func() time.Time
	loc          *time.Location
	historyLimit int
	notifyWait   time.Duration
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*orchestratorSettings)

type orchestratorSettings struct {
	notifier      Notifier
	observer      OutcomeObserver
	now           func() time.Time
	loc           *time.Location
	historyLimit  int
	assistantName string
}

func WithNotifier(n Notifier) OrchestratorOption {
	return func(s *orchestratorSettings) { s.notifier = n }
}

func WithOutcomeObserver(o OutcomeObserver) OrchestratorOption {
	return func(s *orchestratorSettings) { s.observer = o }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(s *orchestratorSettings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCallLocation sets the zone callback times are resolved and shown in.
func WithCallLocation(loc *time.Location) OrchestratorOption {
	return func(s *orchestratorSettings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithHistoryLimit(n int) OrchestratorOption {
	return func(s *orchestratorSettings) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func WithAssistantName(name string) OrchestratorOption {
	return func(s *orchestratorSettings) { s.assistantName = name }
}

// NewOrchestrator wires the orchestrator. llm serves all three model calls.
func NewOrchestrator(store Store, taxonomy faq.Repository, llm LLMClient, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if taxonomy == nil {
		panic("conversation: faq taxonomy cannot be nil")
	}
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	settings := orchestratorSettings{
		now:          func() time.Time { return time.Now().UTC() },
		loc:          CallLocation("SGT", 8),
		historyLimit: 5,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	return &Orchestrator{
		store:        store,
		taxonomy:     taxonomy,
		classifier:   NewIntentClassifier(llm),
		extractor:    NewBookingExtractor(llm, settings.loc),
		answers:      NewAnswerGenerator(llm, settings.assistantName),
		notifier:     settings.notifier,
		observer:     settings.observer,
		logger:       logger,
		tracer:       orchestratorTracer,
		now:          settings.now,
		loc:          settings.loc,
		historyLimit: settings.historyLimit,
		notifyWait:   10 * time.Second,
	}
}

// HandleMessage processes one visitor message end to end and appends at most
// one assistant reply. The message itself may or may not already be stored.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, content string) (Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "conversation.handle_message")
	defer span.End()
	span.SetAttributes(attribute.String("chat.session_id", sessionID))

	outcome, err := o.handle(ctx, sessionID, content)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("conversation.outcome", string(outcome)))
	if o.observer != nil {
		o.observer.ObserveOutcome(string(outcome))
	}
	return outcome, nil
}

func (o *Orchestrator) handle(ctx context.Context, sessionID, content string) (Outcome, error) {
	if strings.TrimSpace(content) == "" {
		return "", chat.ErrEmptyContent
	}
	logger := o.logger.ForSession(sessionID)

	recent, err := o.store.RecentMessages(ctx, sessionID, o.historyLimit)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			return "", err
		}
		return "", dependencyErr("load history", err)
	}
	history := buildHistory(recent, content)

	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if outcome, silenced := silencedOutcome(session); silenced {
		return outcome, nil
	}

	subcategories, err := o.taxonomy.Subcategories(ctx)
	if err != nil {
		return "", dependencyErr("load faq taxonomy", err)
	}

	classification, err := o.classifier.Classify(ctx, content, history, subcategories)
	if err != nil {
		logger.Warn("intent classification failed, offering escalation", "error", err)
		classification = Classification{Intent: IntentAdmin}
	}
	logger.Info("message classified", "intent", string(classification.Intent), "topics", classification.Topics)

	switch classification.Intent {
	case IntentBookCall:
		return o.handleBooking(ctx, sessionID, content)
	case IntentAdminNow:
		return o.handleAdminNow(ctx, sessionID, content)
	case IntentInfo:
		return o.handleInfo(ctx, sessionID, content, classification.Topics, history)
	default:
		return o.reply(ctx, sessionID, ReplyEscalationChoice, OutcomeEscalationOffered)
	}
}

func (o *Orchestrator) loadSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			return nil, err
		}
		return nil, dependencyErr("load session", err)
	}
	return session, nil
}

func silencedOutcome(s *chat.Session) (Outcome, bool) {
	if !s.HumanEngaged() {
		return "", false
	}
	if s.IsAdmin {
		return OutcomeHumanOwned, true
	}
	return OutcomeAwaitingHuman, true
}

// buildHistory maps stored turns onto model roles and appends the new message
// unless the newest stored turn already is that message.
func buildHistory(recent []chat.Message, content string) []ChatMessage {
	history := make([]ChatMessage, 0, len(recent)+1)
	for _, m := range recent {
		role := ChatRoleAssistant
		if m.Role == chat.RoleUser {
			role = ChatRoleUser
		}
		history = append(history, ChatMessage{Role: role, Content: m.Content})
	}
	if n := len(recent); n > 0 && recent[n-1].Role == chat.RoleUser && recent[n-1].Content == content {
		return history
	}
	return append(history, ChatMessage{Role: ChatRoleUser, Content: content})
}

// reply re-reads the session before writing so a claim that landed while the
// model was thinking still silences the bot.
func (o *Orchestrator) reply(ctx context.Context, sessionID, text string, outcome Outcome) (Outcome, error) {
	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if silenced, ok := silencedOutcome(session); ok {
		return silenced, nil
	}
	if _, err := o.store.AppendMessage(ctx, sessionID, chat.RoleAssistant, text); err != nil {
		return "", dependencyErr("append reply", err)
	}
	return outcome, nil
}

func (o *Orchestrator) handleAdminNow(ctx context.Context, sessionID, content string) (Outcome, error) {
	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if silenced, ok := silencedOutcome(session); ok {
		return silenced, nil
	}

	pending := true
	updated, err := o.store.UpdateSession(ctx, sessionID, chat.SessionUpdate{EscalationPending: &pending, BotOnly: true})
	if errors.Is(err, chat.ErrHumanOwned) {
		return o.ownedOutcome(ctx, sessionID)
	}
	if err != nil {
		return "", dependencyErr("mark escalation pending", err)
	}
	if _, err := o.store.AppendMessage(ctx, sessionID, chat.RoleAssistant, ReplyConnecting); err != nil {
		o.logger.ForSession(sessionID).Error("escalation flagged but reply not stored", "error", err)
		return "", dependencyErr("append reply", err)
	}
	o.notify(ctx, Escalation{Kind: EscalationAdminRequested, Session: *updated, Message: content})
	return OutcomeEscalationRequested, nil
}

// ownedOutcome reports which human state won a race with a bot write.
func (o *Orchestrator) ownedOutcome(ctx context.Context, sessionID string) (Outcome, error) {
	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if silenced, ok := silencedOutcome(session); ok {
		return silenced, nil
	}
	return OutcomeHumanOwned, nil
}

func (o *Orchestrator) handleInfo(ctx context.Context, sessionID, content string, topics []string, history []ChatMessage) (Outcome, error) {
	var (
		answer string
		err    error
		low    Outcome
	)
	if len(topics) > 0 {
		low = OutcomeFAQLowConfidence
		items, itemsErr := o.taxonomy.ItemsForTopics(ctx, topics)
		if itemsErr != nil {
			return "", dependencyErr("load faq items", itemsErr)
		}
		answer, err = o.answers.AnswerFromFAQ(ctx, content, items, history)
	} else {
		low = OutcomeCasualLowConfidence
		answer, err = o.answers.AnswerCasually(ctx, content, history)
	}
	if err != nil {
		return "", dependencyErr("generate answer", err)
	}

	if answer == "" || IsEscalation(answer) {
		return o.reply(ctx, sessionID, ReplyEscalationChoice, low)
	}
	return o.reply(ctx, sessionID, answer, OutcomeAnswered)
}

func (o *Orchestrator) handleBooking(ctx context.Context, sessionID, content string) (Outcome, error) {
	logger := o.logger.ForSession(sessionID)

	info, err := o.extractor.Extract(ctx, content, o.now())
	if err != nil {
		logger.Warn("booking extraction failed, treating as nothing extracted", "error", err)
		info = BookingInfo{}
	}
	if info.PhoneNumber == "" {
		info.PhoneNumber = FindPhoneNumber(content)
	}

	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if silenced, ok := silencedOutcome(session); ok {
		return silenced, nil
	}

	var (
		update  chat.SessionUpdate
		message string
	)

	phone := info.PhoneNumber
	if phone == "" && session.PhoneNumber != nil {
		phone = *session.PhoneNumber
	}
	if phone == "" {
		message = ReplyAskPhone
	} else {
		update.PhoneNumber = &phone
	}

	at := info.PreferredTime
	if at == nil {
		at = session.BookedCall
	}
	if at == nil {
		if message != "" {
			message += ReplyAskTimeToo
		} else {
			message = ReplyAskTime
		}
	} else {
		update.BookedCall = at
	}

	outcome := OutcomeBookingIncomplete
	if phone != "" && at != nil {
		status := chat.CallStatusPending
		update.CallStatus = &status
		message = formatConfirmation(FormatCallTime(*at, o.loc), phone)
		outcome = OutcomeCallBooked
	}

	if update.Empty() {
		return o.reply(ctx, sessionID, message, outcome)
	}
	update.BotOnly = true
	updated, err := o.store.UpdateSession(ctx, sessionID, update)
	if errors.Is(err, chat.ErrHumanOwned) {
		return o.ownedOutcome(ctx, sessionID)
	}
	if err != nil {
		return "", dependencyErr("persist booking", err)
	}
	if _, err := o.store.AppendMessage(ctx, sessionID, chat.RoleAssistant, message); err != nil {
		logger.Error("booking persisted but reply not stored", "error", err)
		return "", dependencyErr("append reply", err)
	}
	if outcome == OutcomeCallBooked {
		o.notify(ctx, Escalation{Kind: EscalationCallBooked, Session: *updated, Message: content})
	}
	return outcome, nil
}

func formatConfirmation(readable, phone string) string {
	return fmt.Sprintf(replyConfirmation, readable, phone)
}

// notify runs detached from the request so a slow mail provider never delays the reply.
func (o *Orchestrator) notify(ctx context.Context, esc Escalation) {
	if o.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, o.notifyWait)
		defer cancel()
		if err := o.notifier.NotifyEscalation(ctx, esc); err != nil {
			o.logger.ForSession(esc.Session.ID).Warn("escalation notification failed", "kind", string(esc.Kind), "error", err)
		}
	}()
}
