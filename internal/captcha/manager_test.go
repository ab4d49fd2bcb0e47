package captcha

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/ticketstore"
)

func newTestManager() *Manager {
	return NewManager(Config{
		Store:         NewMemoryStore(),
		Tickets:       ticketstore.NewMemoryStore(),
		Bus:           eventbus.NewMemoryBus(),
		EventsChannel: eventbus.DefaultChannel,
		TaskTimeout:   10 * time.Minute,
	})
}

func TestManager_CreateAssignSubmitSolution(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	task, err := mgr.Create(ctx, "https://example.com/login", "", "", model.ChallengeCloudflare, 5)
	require.NoError(t, err)
	assert.Equal(t, model.CaptchaPending, task.Status)
	assert.Equal(t, "example.com", task.Domain)

	assigned, err := mgr.Assign(ctx, task.UUID, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, model.CaptchaAssigned, assigned.Status)
	assert.Equal(t, "operator-1", assigned.AssignedTo)

	_, err = mgr.Assign(ctx, task.UUID, "operator-2")
	assert.Error(t, err, "a second assign on the same task must fail")

	solved, err := mgr.SubmitSolution(ctx, task.UUID, model.SolverResult{
		Type:      model.SolverResultCookie,
		Cookies:   []model.Cookie{{Name: "cf_clearance", Value: "abc123"}},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, model.CaptchaSolved, solved.Status)
	require.NotNil(t, solved.SolverResult)

	ticket, err := mgr.GetCachedSession(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.True(t, ticket.HasCloudflareClearance())
}

func TestManager_MarkUnsolvableIsTerminal(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	task, err := mgr.Create(ctx, "https://blocked.example/", "", "", model.ChallengeCaptcha, 1)
	require.NoError(t, err)

	done, err := mgr.MarkUnsolvable(ctx, task.UUID, "operator gave up")
	require.NoError(t, err)
	assert.Equal(t, model.CaptchaUnsolvable, done.Status)

	_, err = mgr.MarkUnsolvable(ctx, task.UUID, "again")
	assert.Error(t, err, "marking an already-terminal task must fail")
}

func TestManager_SubmitSolution_RequiresAssignment(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	task, err := mgr.Create(ctx, "https://example.org/", "", "", model.ChallengeTurnstile, 1)
	require.NoError(t, err)

	_, err = mgr.SubmitSolution(ctx, task.UUID, model.SolverResult{Type: model.SolverResultToken, Token: "tok"})
	assert.Error(t, err, "a pending task cannot receive a solution before assignment")
}

func TestManager_ExpireDue(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	task, err := mgr.Create(ctx, "https://stale.example/", "", "", model.ChallengeBotDetected, 1)
	require.NoError(t, err)

	stored, err := mgr.store.Get(ctx, task.UUID)
	require.NoError(t, err)
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, mgr.store.Update(ctx, stored))

	n, err := mgr.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, err := mgr.Get(ctx, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.CaptchaExpired, refreshed.Status)
}

func TestManager_WaitForSolution(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	task, err := mgr.Create(ctx, "https://wait.example/", "", "", model.ChallengeCaptcha, 1)
	require.NoError(t, err)
	_, err = mgr.Assign(ctx, task.UUID, "op")
	require.NoError(t, err)

	results := make(chan *model.Event, 1)
	go func() {
		event, _ := mgr.WaitForSolution(ctx, task.Domain, 2*time.Second)
		results <- event
	}()
	time.Sleep(50 * time.Millisecond) // let the waiter subscribe before publishing

	_, err = mgr.SubmitSolution(ctx, task.UUID, model.SolverResult{Type: model.SolverResultToken, Token: "tok"})
	require.NoError(t, err)

	event := <-results
	require.NotNil(t, event)
	assert.Equal(t, model.EventSolved, event.Type)
}

func TestManager_List_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	_, err := mgr.Create(ctx, "https://a.example/", "", "", model.ChallengeCaptcha, 1)
	require.NoError(t, err)
	_, err = mgr.Create(ctx, "https://a.example/", "", "", model.ChallengeCaptcha, 9)
	require.NoError(t, err)

	tasks, err := mgr.List(ctx, ListFilter{Domain: "a.example"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, 9, tasks[0].Priority, "higher priority task must sort first")
}
