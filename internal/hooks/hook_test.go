package hooks

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/payverify/internal/analyzer"
	"github.com/traylinx/payverify/internal/ledger"
)

const lowConfidenceHook = `
id: "low-confidence"
name: "Low confidence rejection"
event: "verification_rejected"
condition: "Data.confidence < 0.5 && Data.score < 0"
action: "test_action"
enabled: true
`

func newManager(t *testing.T, files map[string]string) (*HookManager, *EventBus) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	bus := NewEventBus()
	t.Cleanup(bus.Shutdown)

	manager, err := NewHookManager(dir, bus)
	require.NoError(t, err)
	require.NoError(t, manager.LoadHooks())
	manager.SubscribeToAllEvents()
	return manager, bus
}

func TestHookSystem_ConditionGatesAction(t *testing.T) {
	manager, bus := newManager(t, map[string]string{"low.yaml": lowConfidenceHook})

	called := make(chan string, 2)
	manager.RegisterAction("test_action", func(hook *Hook, ctx *EventContext) error {
		called <- ctx.VerificationID
		return nil
	})

	bus.Publish(&EventContext{
		Event:          EventVerificationRejected,
		Timestamp:      time.Now(),
		VerificationID: "VER-1-AAAAAA",
		Data:           map[string]any{"confidence": 0.3, "score": -3},
	})

	select {
	case id := <-called:
		assert.Equal(t, "VER-1-AAAAAA", id)
	case <-time.After(time.Second):
		t.Fatal("Action was not called")
	}

	// Same event with a positive score does not match.
	bus.Publish(&EventContext{
		Event:          EventVerificationRejected,
		VerificationID: "VER-2-BBBBBB",
		Data:           map[string]any{"confidence": 0.3, "score": 1},
	})
	// Approved events are not subscribed by this hook.
	bus.Publish(&EventContext{
		Event: EventVerificationApproved,
		Data:  map[string]any{"confidence": 0.3, "score": -3},
	})

	select {
	case id := <-called:
		t.Fatalf("Action should not be called, got %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoadHooks_SkipsDisabledAndInvalid(t *testing.T) {
	manager, _ := newManager(t, map[string]string{
		"enabled.yaml": lowConfidenceHook,
		"disabled.yml": "id: off\nname: Off\nevent: verification_approved\naction: log_warning\nenabled: false\n",
		"broken.yaml":  "id: [",
		"badexpr.yaml": "id: bad\nname: Bad\nevent: verification_approved\ncondition: \"Data.score >\"\naction: log_warning\nenabled: true\n",
		"notes.txt":    "not a hook",
	})

	hooks := manager.GetHooks()
	require.Len(t, hooks, 1)
	assert.Equal(t, "low-confidence", hooks[0].ID)
	assert.Equal(t, filepath.Join(manager.GetHooksDir(), "enabled.yaml"), hooks[0].FilePath)
}

func TestEvaluateCondition(t *testing.T) {
	manager, _ := newManager(t, nil)
	ctx := &EventContext{
		Event: EventVerificationApproved,
		Data:  map[string]any{"confidence": 0.95, "has_provider": true},
	}

	tests := []struct {
		condition string
		want      bool
		wantErr   bool
	}{
		{"", true, false},
		{"true", true, false},
		{"Data.confidence > 0.9", true, false},
		{"Data.has_provider && Event == 'verification_approved'", true, false},
		{"Data.confidence < 0.5", false, false},
		{"Data.confidence", false, true},
		{"Data.confidence >", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			got, err := manager.evaluateCondition(tt.condition, ctx)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerdictPublisher_FiresFromLedger(t *testing.T) {
	hook := `
id: "approved"
name: "Approved payment"
event: "verification_approved"
condition: "Data.has_correct_amount && Data.has_provider && Data.score >= 3"
action: "test_action"
enabled: true
`
	manager, bus := newManager(t, map[string]string{"approved.yaml": hook})

	called := make(chan *EventContext, 1)
	manager.RegisterAction("test_action", func(hook *Hook, ctx *EventContext) error {
		called <- ctx
		return nil
	})

	a, err := analyzer.New(analyzer.DefaultRules(), analyzer.NewRandom(11))
	require.NoError(t, err)
	l := ledger.New(a, ledger.WithLatency(0), ledger.WithObserver(NewVerdictPublisher(bus)))

	v, err := l.Verify(t.Context(), "支付宝 支付成功 金额: ¥9.9 商户: OpenClaw Guide")
	require.NoError(t, err)
	require.True(t, v.Approved)

	select {
	case ctx := <-called:
		assert.Equal(t, EventVerificationApproved, ctx.Event)
		assert.Equal(t, v.VerificationID, ctx.VerificationID)
		assert.Equal(t, v.Analysis.Score, ctx.Data["score"])
	case <-time.After(time.Second):
		t.Fatal("Hook was not triggered by the ledger")
	}
}

func TestVerdictEvent_Rejected(t *testing.T) {
	ctx := VerdictEvent(ledger.Verdict{VerificationID: "VER-3-CCCCCC", Confidence: 0.3})
	assert.Equal(t, EventVerificationRejected, ctx.Event)
	assert.Equal(t, false, ctx.Data["approved"])
	assert.Equal(t, "VER-3-CCCCCC", ctx.Data["verification_id"])
}

func TestEventBus_AsyncAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	received := make(chan struct{}, 2)
	sub := bus.Subscribe(EventVerificationApproved, func(ctx *EventContext) {
		received <- struct{}{}
	})

	bus.PublishAsync(&EventContext{Event: EventVerificationApproved})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("Async event not received")
	}

	sub.Unsubscribe()
	bus.Publish(&EventContext{Event: EventVerificationApproved})
	select {
	case <-received:
		t.Fatal("Unsubscribed callback should not run")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_PanicAndShutdown(t *testing.T) {
	bus := NewEventBus()

	ran := false
	bus.Subscribe(EventVerificationRejected, func(ctx *EventContext) { panic("boom") })
	bus.Subscribe(EventVerificationRejected, func(ctx *EventContext) { ran = true })
	bus.Publish(&EventContext{Event: EventVerificationRejected})
	assert.True(t, ran, "a panicking subscriber must not stop the others")

	bus.Shutdown()
	bus.Shutdown()
	bus.PublishAsync(&EventContext{Event: EventVerificationRejected})

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Panicked)
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestEventBus_ShutdownDrainsQueue(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	seen := 0
	bus.Subscribe(EventVerificationApproved, func(ctx *EventContext) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	for i := 0; i < 25; i++ {
		bus.PublishAsync(&EventContext{Event: EventVerificationApproved})
	}
	bus.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 25, seen)
}

func TestNewHookManager_RequiresBus(t *testing.T) {
	_, err := NewHookManager(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestHookManager_WaitForTriggeredActions(t *testing.T) {
	hook := "id: slow\nname: Slow\nevent: verification_approved\naction: test_action\nenabled: true\n"
	manager, bus := newManager(t, map[string]string{"slow.yaml": hook})

	var mu sync.Mutex
	finished := false
	manager.RegisterAction("test_action", func(hook *Hook, ctx *EventContext) error {
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
		return nil
	})

	bus.PublishAsync(&EventContext{Event: EventVerificationApproved, VerificationID: "VER-4-DDDDDD"})
	bus.Shutdown()
	manager.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished, "Wait returned before the action finished")
}
