package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chitragupt/chitragupt/pkg/observability"
	"github.com/chitragupt/chitragupt/pkg/rbac"
	"github.com/chitragupt/chitragupt/pkg/telegram"
)

// Callback verbs carried in inline button data as "<verb>:<requester_id>"
const (
	verbApprove = "approve"
	verbPromote = "promote"
	verbReject  = "reject"
)

// Workflow runs the onboarding approval state machine. A newcomer's
// /start opens one PENDING request and posts a decision prompt to every
// SuperAdmin; the first authorized button press resolves it, every later
// press on any prompt is told the request is already settled.
type Workflow struct {
	store   *rbac.Store
	engine  *rbac.Engine
	api     ChatAPI
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewWorkflow(store *rbac.Store, engine *rbac.Engine, api ChatAPI, logger *observability.Logger, metrics *observability.Metrics) *Workflow {
	return &Workflow{store: store, engine: engine, api: api, logger: logger, metrics: metrics}
}

// Open creates a pending request for the requester and prompts every
// SuperAdmin. A requester with a live request gets no second round of
// prompts. Returns how many prompts were delivered.
func (w *Workflow) Open(ctx context.Context, requesterID int64, displayName string) (int, error) {
	if existing, ok := w.store.GetRequest(requesterID); ok && !existing.Status.Terminal() {
		return 0, nil
	}

	admins := w.engine.SuperAdmins()
	if len(admins) == 0 {
		w.logger.WithField("requester", requesterID).Warn("no SuperAdmins to prompt, request stays unopened")
		return 0, nil
	}

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: "Approve as Member", CallbackData: callbackData(verbApprove, requesterID)},
				{Text: "Promote to Moderator", CallbackData: callbackData(verbPromote, requesterID)},
			},
			{
				{Text: "Reject", CallbackData: callbackData(verbReject, requesterID)},
			},
		},
	}
	text := fmt.Sprintf("%s (id %d) wants to join. What should happen?", displayName, requesterID)

	var prompts []rbac.Prompt
	for _, adminID := range admins {
		msg, err := w.api.SendMessage(ctx, adminID, text, markup)
		if err != nil {
			w.logger.WithError(err).WithField("admin", adminID).Warn("could not deliver approval prompt")
			continue
		}
		prompts = append(prompts, rbac.Prompt{ChatID: adminID, MessageID: msg.MessageID})
	}
	if len(prompts) == 0 {
		return 0, fmt.Errorf("no approval prompt could be delivered for requester %d", requesterID)
	}

	_, created, err := w.store.PutRequest(rbac.PendingRequest{
		RequesterID: requesterID,
		Status:      rbac.StatusPending,
		CreatedAt:   time.Now().UTC(),
		Prompts:     prompts,
	})
	if err != nil {
		return 0, err
	}
	if !created {
		// lost a race with a concurrent /start; the other request stands
		return 0, nil
	}
	w.logger.WithFields(map[string]any{
		"requester": requesterID,
		"prompts":   len(prompts),
	}).Info("approval request opened")
	return len(prompts), nil
}

// HandleCallback processes one inline button press on an approval prompt
func (w *Workflow) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	if cb.From == nil {
		return errors.New("callback without a presser")
	}
	presser := cb.From.ID

	verb, requesterID, err := parseCallbackData(cb.Data)
	if err != nil {
		w.observeCallback("malformed")
		return w.api.AnswerCallbackQuery(ctx, cb.ID, "This button is not understood.")
	}

	if !w.engine.HasPermission(presser, rbac.ActionManageUsers) {
		w.observeCallback("denied")
		w.logger.WithFields(map[string]any{
			"presser":   presser,
			"requester": requesterID,
		}).Warn("unauthorized approval press")
		return w.api.AnswerCallbackQuery(ctx, cb.ID, "You are not allowed to decide this.")
	}

	decision := rbac.StatusApproved
	grantLevel := rbac.LevelMember
	switch verb {
	case verbApprove:
	case verbPromote:
		grantLevel = rbac.LevelModerator
	case verbReject:
		decision = rbac.StatusRejected
	default:
		w.observeCallback("malformed")
		return w.api.AnswerCallbackQuery(ctx, cb.ID, "This button is not understood.")
	}

	resolved, err := w.store.ResolveRequest(requesterID, decision)
	switch {
	case errors.Is(err, rbac.ErrAlreadyResolved):
		w.observeCallback("stale")
		return w.api.AnswerCallbackQuery(ctx, cb.ID,
			fmt.Sprintf("Already settled: %s.", strings.ToLower(string(resolved.Status))))
	case errors.Is(err, rbac.ErrNoSuchRequest):
		w.observeCallback("stale")
		return w.api.AnswerCallbackQuery(ctx, cb.ID, "There is no pending request for this user.")
	case err != nil:
		w.observeCallback("error")
		return err
	}

	outcome := "rejected"
	if decision == rbac.StatusApproved {
		name := strconv.FormatInt(requesterID, 10)
		if p, ok := w.store.GetPrincipal(requesterID); ok {
			name = p.Name
		}
		if err := w.engine.SetUserLevel(requesterID, grantLevel, name); err != nil {
			return fmt.Errorf("granting level after approval: %w", err)
		}
		outcome = fmt.Sprintf("approved as %s", w.engine.RoleName(requesterID))
	}

	w.settlePrompts(ctx, resolved, fmt.Sprintf("Request from id %d: %s by %s.", requesterID, outcome, presserName(cb.From)))
	w.notifyRequester(ctx, requesterID, decision)

	if w.metrics != nil {
		w.metrics.ApprovalsTotal.WithLabelValues(strings.ToLower(string(decision))).Inc()
	}
	w.observeCallback("ok")
	w.logger.WithFields(map[string]any{
		"requester": requesterID,
		"presser":   presser,
		"decision":  string(decision),
	}).Info("approval request resolved")
	return w.api.AnswerCallbackQuery(ctx, cb.ID, "Done.")
}

// settlePrompts rewrites every prompt message so stale buttons disappear
func (w *Workflow) settlePrompts(ctx context.Context, req rbac.PendingRequest, text string) {
	for _, prompt := range req.Prompts {
		if err := w.api.EditMessageText(ctx, prompt.ChatID, prompt.MessageID, text, nil); err != nil {
			w.logger.WithError(err).WithFields(map[string]any{
				"chat":    prompt.ChatID,
				"message": prompt.MessageID,
			}).Warn("could not settle approval prompt")
		}
	}
}

func (w *Workflow) notifyRequester(ctx context.Context, requesterID int64, decision rbac.RequestStatus) {
	text := "Your request was rejected."
	if decision == rbac.StatusApproved {
		text = fmt.Sprintf("You are in. Your role is now %s; send /help to see what you can do.",
			w.engine.RoleName(requesterID))
	}
	if _, err := w.api.SendMessage(ctx, requesterID, text, nil); err != nil {
		w.logger.WithError(err).WithField("requester", requesterID).Warn("could not notify requester")
	}
}

func (w *Workflow) observeCallback(outcome string) {
	if w.metrics != nil {
		w.metrics.CallbacksTotal.WithLabelValues("approval", outcome).Inc()
	}
}

func callbackData(verb string, requesterID int64) string {
	return verb + ":" + strconv.FormatInt(requesterID, 10)
}

func parseCallbackData(data string) (string, int64, error) {
	verb, idPart, ok := strings.Cut(data, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	return verb, id, nil
}

func presserName(u *telegram.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return strconv.FormatInt(u.ID, 10)
}
