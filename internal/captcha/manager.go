package captcha

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/apperrors"
	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/ticketstore"
)

// Manager exposes the small API spec.md §4.3 assigns to the CAPTCHA Task
// Manager: create, assign, submit_solution, mark_unsolvable, list, expire,
// plus the session helpers a tier consults before escalating to HITL.
type Manager struct {
	store    TaskStore
	tickets  ticketstore.Store
	bus      eventbus.Bus
	channel  string
	taskTTL  time.Duration
}

// Config bundles the Manager's constructor parameters.
type Config struct {
	Store         TaskStore
	Tickets       ticketstore.Store
	Bus           eventbus.Bus
	EventsChannel string
	TaskTimeout   time.Duration
}

// NewManager wires a Manager from its collaborators.
func NewManager(cfg Config) *Manager {
	channel := cfg.EventsChannel
	if channel == "" {
		channel = eventbus.DefaultChannel
	}
	return &Manager{
		store:   cfg.Store,
		tickets: cfg.Tickets,
		bus:     cfg.Bus,
		channel: channel,
		taskTTL: cfg.TaskTimeout,
	}
}

// domainOf lower-cases the hostname portion of rawURL, mirroring the
// original's urlparse(url).netloc approach (SPEC_FULL.md "Domain
// extraction").
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}

// Create opens a new manual-solve task for url, per spec.md §4.3.
func (m *Manager) Create(ctx context.Context, url, proxyURL, userAgent string, challenge model.ChallengeType, priority int) (*model.CaptchaTask, error) {
	now := time.Now()
	task := &model.CaptchaTask{
		UUID:          uuid.NewString(),
		URL:           url,
		Domain:        domainOf(url),
		Status:        model.CaptchaPending,
		Priority:      priority,
		ChallengeType: challenge,
		ProxyURL:      proxyURL,
		UserAgent:     userAgent,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(m.taskTTL),
	}
	if err := m.store.Create(ctx, task); err != nil {
		return nil, apperrors.NewInternalError("create captcha task", err)
	}

	m.publish(ctx, model.EventTaskCreated, task.Domain, task.UUID, nil)
	logging.Action(logging.Captcha, "captcha task created", zap.String("uuid", task.UUID), zap.String("domain", task.Domain))
	return task, nil
}

// Assign claims task for operatorID, failing if another operator already
// holds it (spec.md §4.3 "Atomic: a concurrent second assign must fail").
func (m *Manager) Assign(ctx context.Context, taskUUID, operatorID string) (*model.CaptchaTask, error) {
	task, err := m.store.Assign(ctx, taskUUID, operatorID, time.Now())
	if err == ErrAlreadyAssigned {
		return nil, apperrors.NewConflictError(fmt.Sprintf("task %s is already assigned", taskUUID))
	}
	if err == ErrNotFound {
		return nil, apperrors.NewNotFoundError("captcha_task", taskUUID)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("assign captcha task", err)
	}

	m.publish(ctx, model.EventTaskAssigned, task.Domain, task.UUID, map[string]any{"operator_id": operatorID})
	return task, nil
}

// SubmitSolution records a solved task's solver result, stores the derived
// GoldenTicket, and publishes a `solved` event (spec.md §4.3).
func (m *Manager) SubmitSolution(ctx context.Context, taskUUID string, result model.SolverResult) (*model.CaptchaTask, error) {
	task, err := m.store.Get(ctx, taskUUID)
	if err == ErrNotFound {
		return nil, apperrors.NewNotFoundError("captcha_task", taskUUID)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("load captcha task", err)
	}
	if !task.IsSolvable(time.Now()) {
		return nil, apperrors.NewConflictError(fmt.Sprintf("task %s is not solvable in status %s", taskUUID, task.Status))
	}

	now := time.Now()
	task.Status = model.CaptchaSolved
	task.SolverResult = &result
	task.SolvedAt = &now
	task.UpdatedAt = now
	if err := m.store.Update(ctx, task); err != nil {
		return nil, apperrors.NewInternalError("persist captcha solution", err)
	}

	ticket := ticketFromSolution(*task, result)
	if err := m.tickets.Set(ctx, ticket); err != nil {
		logging.Warn(logging.Captcha, "failed to cache golden ticket", zap.String("domain", task.Domain), zap.Error(err))
	} else {
		m.publish(ctx, model.EventTicketStored, task.Domain, task.UUID, nil)
	}

	m.publish(ctx, model.EventSolved, task.Domain, task.UUID, map[string]any{"type": string(result.Type)})
	return task, nil
}

// ticketFromSolution derives a GoldenTicket from a solved CaptchaTask, the
// canonical representation decided in SPEC_FULL.md's Open Question #2.
func ticketFromSolution(task model.CaptchaTask, result model.SolverResult) model.GoldenTicket {
	ttl := result.ExpiresAt.Sub(time.Now())
	if ttl <= 0 {
		ttl = time.Hour
	}
	return model.GoldenTicket{
		Domain:        task.Domain,
		SourceURL:     task.URL,
		HarvestedAt:   time.Now(),
		TTLSeconds:    int(ttl.Seconds()),
		Cookies:       result.Cookies,
		UserAgent:     task.UserAgent,
		ProxyURL:      task.ProxyURL,
		ChallengeType: task.ChallengeType,
	}
}

// MarkUnsolvable terminates task with reason, per spec.md §4.3.
func (m *Manager) MarkUnsolvable(ctx context.Context, taskUUID, reason string) (*model.CaptchaTask, error) {
	task, err := m.store.Get(ctx, taskUUID)
	if err == ErrNotFound {
		return nil, apperrors.NewNotFoundError("captcha_task", taskUUID)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("load captcha task", err)
	}
	if task.Status.IsTerminal() {
		return nil, apperrors.NewConflictError(fmt.Sprintf("task %s already in terminal status %s", taskUUID, task.Status))
	}

	task.Status = model.CaptchaUnsolvable
	task.UpdatedAt = time.Now()
	task.WithExtra("unsolvable_reason", reason)
	if err := m.store.Update(ctx, task); err != nil {
		return nil, apperrors.NewInternalError("persist unsolvable task", err)
	}

	m.publish(ctx, model.EventUnsolvable, task.Domain, task.UUID, map[string]any{"reason": reason})
	return task, nil
}

// List returns a page of tasks matching filter, per spec.md §6.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]model.CaptchaTask, error) {
	tasks, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("list captcha tasks", err)
	}
	return tasks, nil
}

// Get returns one task by UUID.
func (m *Manager) Get(ctx context.Context, taskUUID string) (*model.CaptchaTask, error) {
	task, err := m.store.Get(ctx, taskUUID)
	if err == ErrNotFound {
		return nil, apperrors.NewNotFoundError("captcha_task", taskUUID)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("load captcha task", err)
	}
	return task, nil
}

// ExpireDue transitions every overdue, non-terminal task to expired and
// publishes one `expired` event per task. Intended to run on a ticker.
func (m *Manager) ExpireDue(ctx context.Context) (int, error) {
	now := time.Now()
	due, err := m.store.ListExpirable(ctx, now)
	if err != nil {
		return 0, apperrors.NewInternalError("list expirable captcha tasks", err)
	}

	for i := range due {
		due[i].Status = model.CaptchaExpired
		due[i].UpdatedAt = now
		if err := m.store.Update(ctx, &due[i]); err != nil {
			logging.Warn(logging.Captcha, "failed to expire captcha task", zap.String("uuid", due[i].UUID), zap.Error(err))
			continue
		}
		m.publish(ctx, model.EventExpired, due[i].Domain, due[i].UUID, nil)
	}
	return len(due), nil
}

// GetCachedSession reports whether domain already has a live GoldenTicket,
// the check a tier makes before escalating to HITL (spec.md §4.2, §6
// "GET /captcha/sessions/{domain}").
func (m *Manager) GetCachedSession(ctx context.Context, domain string) (*model.GoldenTicket, error) {
	ticket, err := m.tickets.Get(ctx, domain)
	if err != nil {
		return nil, apperrors.NewInternalError("load cached session", err)
	}
	return ticket, nil
}

// WaitForSolution blocks until domain's task reaches a terminal event
// (solved, failed, unsolvable, expired) or timeout elapses, used by an
// orchestration run that is parked waiting on a HITL/CAPTCHA task it
// created or discovered (spec.md §4.4 "await solve").
func (m *Manager) WaitForSolution(ctx context.Context, domain string, timeout time.Duration) (*model.Event, error) {
	terminal := []model.EventType{
		model.EventSolved, model.EventFailed, model.EventUnsolvable, model.EventExpired,
	}
	event, err := m.bus.WaitFor(ctx, m.channel, func(e model.Event) bool {
		return eventbus.MatchesFilter(e, domain, terminal)
	}, timeout)
	if err != nil {
		return nil, apperrors.NewInternalError("wait for captcha solution", err)
	}
	return event, nil
}

func (m *Manager) publish(ctx context.Context, t model.EventType, domain, taskUUID string, fields map[string]any) {
	event := model.NewEvent(t, domain, fields)
	event.TaskUUID = taskUUID
	if err := m.bus.Publish(ctx, m.channel, event); err != nil {
		logging.Warn(logging.Captcha, "failed to publish captcha event", zap.String("type", string(t)), zap.Error(err))
	}
}
