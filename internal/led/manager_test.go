package led

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/events"
)

// Mock controller for testing
type mockController struct {
	setCalls []setCall
}

type setCall struct {
	ledType string
	enabled bool
	pattern string
}

func (m *mockController) Set(ledType string, enabled bool, pattern string) error {
	m.setCalls = append(m.setCalls, setCall{ledType, enabled, pattern})
	return nil
}

func (m *mockController) Available() []string {
	return []string{"system", "user"}
}

func (m *mockController) Patterns() []string {
	return []string{"solid", "blink", "heartbeat"}
}

func publishState(bus *events.Bus, id, status string) {
	bus.Publish(events.StreamStateEvent{
		StreamID:  id,
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func lastPattern(t *testing.T, ctrl *mockController) string {
	t.Helper()
	if len(ctrl.setCalls) == 0 {
		t.Fatal("No LED control calls made")
	}
	return ctrl.setCalls[len(ctrl.setCalls)-1].pattern
}

func TestManager_AllStreamsRunning(t *testing.T) {
	ctrl := &mockController{}
	eventBus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mgr := NewManager(ctrl, eventBus, logger)
	mgr.Start()
	defer mgr.Stop()

	publishState(eventBus, "english", "running")
	publishState(eventBus, "spanish", "running")

	time.Sleep(50 * time.Millisecond)

	if got := lastPattern(t, ctrl); got != "solid" {
		t.Errorf("Expected solid pattern when all running, got %q", got)
	}
}

func TestManager_SomeStreamsStopped(t *testing.T) {
	ctrl := &mockController{}
	eventBus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mgr := NewManager(ctrl, eventBus, logger)
	mgr.Start()
	defer mgr.Stop()

	publishState(eventBus, "english", "running")
	publishState(eventBus, "spanish", "running")
	publishState(eventBus, "spanish", "stopped")

	time.Sleep(50 * time.Millisecond)

	if got := lastPattern(t, ctrl); got != "heartbeat" {
		t.Errorf("Expected heartbeat pattern when some stopped, got %q", got)
	}
}

func TestManager_DeletedStreamLeavesAggregate(t *testing.T) {
	ctrl := &mockController{}
	eventBus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mgr := NewManager(ctrl, eventBus, logger)
	mgr.Start()
	defer mgr.Stop()

	publishState(eventBus, "english", "running")
	publishState(eventBus, "spanish", "error")
	eventBus.Publish(events.StreamDeletedEvent{
		StreamID:  "spanish",
		Timestamp: time.Now().Format(time.RFC3339),
	})

	time.Sleep(50 * time.Millisecond)

	if got := lastPattern(t, ctrl); got != "solid" {
		t.Errorf("Expected solid after failing stream deleted, got %q", got)
	}
}

func TestManager_GetController(t *testing.T) {
	ctrl := &mockController{}
	eventBus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mgr := NewManager(ctrl, eventBus, logger)

	if got := mgr.GetController(); got != ctrl {
		t.Error("GetController() did not return the original controller")
	}
}
