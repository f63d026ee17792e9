package platform

import (
	"os"
	"testing"
)

func TestIsAlive_Self(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Error("Expected own process to be alive")
	}
}

func TestIsAlive_NonExistent(t *testing.T) {
	// PIDs near the top of the default pid space are almost never live
	// in a test environment.
	if IsAlive(4194300) {
		t.Skip("improbable pid is in use on this machine")
	}
}

func TestFindByCommandLine_Self(t *testing.T) {
	// The test binary's own name appears in its command line.
	matches, err := FindByCommandLine("platform.test")
	if err != nil {
		t.Fatalf("FindByCommandLine failed: %v", err)
	}

	found := false
	for _, m := range matches {
		if m.PID == os.Getpid() {
			found = true
		}
	}
	if !found {
		t.Skip("test binary not named platform.test under this runner")
	}
}

func TestFindByCommandLine_NoMatch(t *testing.T) {
	matches, err := FindByCommandLine("definitely-not-a-real-process-name-xyzzy")
	if err != nil {
		t.Fatalf("FindByCommandLine failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Expected no matches, got %d", len(matches))
	}
}

func TestKillTree_AlreadyGone(t *testing.T) {
	if err := KillTree(4194300); err != nil {
		t.Errorf("KillTree on a dead pid should be a no-op, got %v", err)
	}
}
