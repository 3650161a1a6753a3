package systemd

import "testing"

func TestGetListeners_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated || listeners.HTTP != nil || listeners.Metrics != nil {
		t.Errorf("Expected no activated listeners, got %+v", listeners)
	}
}

func TestNotify_WithoutSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if IsSystemdService() {
		t.Error("Expected not to be a systemd service")
	}
	if err := NotifyReady(); err != nil {
		t.Errorf("NotifyReady should be a no-op, got %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Errorf("NotifyStopping should be a no-op, got %v", err)
	}
}
