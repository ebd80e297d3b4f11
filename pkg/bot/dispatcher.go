package bot

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chitragupt/chitragupt/pkg/identity"
	"github.com/chitragupt/chitragupt/pkg/observability"
	"github.com/chitragupt/chitragupt/pkg/rbac"
	"github.com/chitragupt/chitragupt/pkg/telegram"
)

const deniedNotice = "You are not allowed to do that."

// menuCallbackPrefix marks inline-menu button presses; everything else
// on the callback channel belongs to the approval workflow.
const menuCallbackPrefix = "cmd:"

// Dispatcher routes inbound updates: callback presses go to the approval
// workflow, command messages go through identity resolution and the
// permission gate to their handler, everything else is dropped.
type Dispatcher struct {
	registry *Registry
	engine   *rbac.Engine
	workflow *Workflow
	api      ChatAPI
	logger   *observability.Logger
	metrics  *observability.Metrics

	// whether to answer unrecognized slash commands; off by default so
	// the bot stays invisible to strangers poking at it
	replyUnknown bool
	botUsername  string
}

func NewDispatcher(registry *Registry, engine *rbac.Engine, workflow *Workflow, api ChatAPI, logger *observability.Logger, metrics *observability.Metrics, replyUnknown bool, botUsername string) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		engine:       engine,
		workflow:     workflow,
		api:          api,
		logger:       logger,
		metrics:      metrics,
		replyUnknown: replyUnknown,
		botUsername:  botUsername,
	}
}

// ProcessUpdate handles one update end to end. It never returns an
// error: failures are logged and counted, and the next update must not
// be blocked by this one.
func (d *Dispatcher) ProcessUpdate(ctx context.Context, u telegram.Update) {
	start := time.Now()
	ctx = observability.WithUpdateID(ctx, u.UpdateID)
	logger := d.logger.WithFields(map[string]any{
		"update":      u.UpdateID,
		"correlation": uuid.NewString(),
	})
	ctx = observability.WithLogger(ctx, logger)

	kind, outcome := d.dispatch(ctx, u, logger)
	if d.metrics != nil {
		d.metrics.UpdatesTotal.WithLabelValues(kind, outcome).Inc()
		d.metrics.UpdateDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, u telegram.Update, logger *observability.Logger) (kind, outcome string) {
	if u.CallbackQuery != nil {
		if slug, isMenu := strings.CutPrefix(u.CallbackQuery.Data, menuCallbackPrefix); isMenu {
			return d.dispatchMenuPress(ctx, u, slug, logger)
		}
		if err := d.workflow.HandleCallback(ctx, u.CallbackQuery); err != nil {
			logger.WithError(err).Error("callback handling failed")
			return "callback", "error"
		}
		return "callback", "ok"
	}

	msg := u.EffectiveMessage()
	if msg == nil {
		d.drop("no_message")
		return "message", "dropped"
	}

	principal, ok := identity.FromUpdate(&u)
	if !ok {
		// nothing attributable to act on
		d.drop("no_identity")
		return "message", "dropped"
	}
	ctx = observability.WithPrincipalID(ctx, principal.ID)
	logger = logger.WithField("principal", principal.ID)

	// first contact registers the principal as a Guest and captures
	// whatever metadata the message carries; onboarding proper happens
	// in the /start handler
	if _, exists := d.engine.Store().GetPrincipal(principal.ID); !exists {
		if err := d.engine.Enrich(principalFromMessage(principal, msg)); err != nil {
			logger.WithError(err).Error("could not register principal")
			d.drop("store_error")
			return "message", "error"
		}
		logger.Info("new principal registered as Guest")
	}

	slug, args, ok := d.parseCommand(msg.Text)
	if !ok {
		d.drop("chatter")
		return "message", "dropped"
	}

	cmd, known := d.registry.Get(slug)
	if !known {
		logger.WithField("command", slug).Debug("unknown command")
		if d.replyUnknown {
			if _, err := d.api.SendMessage(ctx, msg.Chat.ID, "I do not know that command. Try /help.", nil); err != nil {
				logger.WithError(err).Warn("could not answer unknown command")
			}
		}
		d.observeCommand(slug, "unknown")
		return "command", "unknown"
	}

	if !d.engine.HasPermission(principal.ID, cmd.Action) {
		logger.WithFields(map[string]any{
			"command": cmd.Slug,
			"action":  cmd.Action,
		}).Warn("command denied")
		if _, err := d.api.SendMessage(ctx, msg.Chat.ID, deniedNotice, nil); err != nil {
			logger.WithError(err).Warn("could not deliver denial notice")
		}
		d.observeCommand(cmd.Slug, "denied")
		return "command", "denied"
	}

	req := &Request{
		Update:    u,
		Message:   msg,
		Principal: principal,
		Args:      args,
		registry:  d.registry,
	}
	if err := d.invoke(ctx, cmd, req, logger); err != nil {
		logger.WithError(err).WithField("command", cmd.Slug).Error("command failed")
		d.observeCommand(cmd.Slug, "error")
		return "command", "error"
	}
	d.observeCommand(cmd.Slug, "ok")
	return "command", "ok"
}

// dispatchMenuPress runs a command picked from the /help inline menu.
// The press is treated exactly like typing the command in the menu's
// chat: same permission gate, same handler.
func (d *Dispatcher) dispatchMenuPress(ctx context.Context, u telegram.Update, slug string, logger *observability.Logger) (kind, outcome string) {
	cq := u.CallbackQuery
	if cq.From == nil || cq.Message == nil {
		d.drop("no_identity")
		return "callback", "dropped"
	}
	principal := identity.Principal{ID: cq.From.ID}
	ctx = observability.WithPrincipalID(ctx, principal.ID)
	logger = logger.WithFields(map[string]any{
		"principal": principal.ID,
		"command":   slug,
	})

	cmd, known := d.registry.Get(slug)
	if !known {
		d.answerMenuPress(ctx, cq.ID, "That command is gone.", logger)
		d.observeCallback("menu", "unknown")
		return "callback", "unknown"
	}
	if !d.engine.HasPermission(principal.ID, cmd.Action) {
		logger.Warn("menu press denied")
		d.answerMenuPress(ctx, cq.ID, deniedNotice, logger)
		d.observeCallback("menu", "denied")
		return "callback", "denied"
	}

	// synthetic message standing in for the command being typed where
	// the menu lives
	msg := &telegram.Message{
		MessageID: cq.Message.MessageID,
		From:      cq.From,
		Chat:      cq.Message.Chat,
		Text:      "/" + slug,
	}
	req := &Request{
		Update:    u,
		Message:   msg,
		Principal: principal,
		registry:  d.registry,
	}
	if err := d.invoke(ctx, cmd, req, logger); err != nil {
		logger.WithError(err).Error("menu command failed")
		d.observeCallback("menu", "error")
		return "callback", "error"
	}
	d.answerMenuPress(ctx, cq.ID, "", logger)
	d.observeCallback("menu", "ok")
	return "callback", "ok"
}

func (d *Dispatcher) answerMenuPress(ctx context.Context, callbackID, text string, logger *observability.Logger) {
	if err := d.api.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		logger.WithError(err).Warn("could not answer menu press")
	}
}

func (d *Dispatcher) observeCallback(kind, outcome string) {
	if d.metrics != nil {
		d.metrics.CallbacksTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// invoke runs the handler with panic containment: a broken handler must
// not take down the dispatch loop.
func (d *Dispatcher) invoke(ctx context.Context, cmd Command, req *Request, logger *observability.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]any{
				"command": cmd.Slug,
				"panic":   r,
			}).Error("handler panicked")
			err = &panicError{value: r}
		}
	}()
	return cmd.Handler(ctx, req)
}

// parseCommand extracts a slash command and its arguments. A trailing
// @BotName on the slug, as sent in groups, is accepted when it names
// this bot and rejected when it names another.
func (d *Dispatcher) parseCommand(text string) (slug string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	slug = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(slug, '@'); at >= 0 {
		mention := slug[at+1:]
		slug = slug[:at]
		if d.botUsername != "" && !strings.EqualFold(mention, d.botUsername) {
			return "", nil, false
		}
	}
	if slug == "" {
		return "", nil, false
	}
	return strings.ToLower(slug), fields[1:], true
}

func (d *Dispatcher) drop(reason string) {
	if d.metrics != nil {
		d.metrics.UpdatesDropped.WithLabelValues(reason).Inc()
	}
}

func (d *Dispatcher) observeCommand(command, outcome string) {
	if d.metrics != nil {
		d.metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()
	}
}

func principalFromMessage(p identity.Principal, msg *telegram.Message) rbac.Principal {
	out := rbac.Principal{ID: p.ID, Special: p.Special}
	if p.Special && msg.SenderChat != nil {
		out.Name = msg.SenderChat.Title
		return out
	}
	if msg.From != nil {
		out.Name = presserName(msg.From)
		out.Username = msg.From.Username
		out.FirstName = msg.From.FirstName
		out.LastName = msg.From.LastName
		out.LanguageCode = msg.From.LanguageCode
		out.Premium = msg.From.IsPremium
	}
	return out
}

// panicError wraps a recovered panic as an error
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return "handler panic"
}
