package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	logx "pushbridge/pkg/logx"
)

func TestDisabledNotifierIsSilent(t *testing.T) {
	t.Parallel()
	n := NewNotifier(false, logx.Nop())
	if n.Ready() || n.Stopping() || n.Status("x") {
		t.Fatal("disabled notifier reported a send")
	}
	// Returns immediately.
	n.Watchdog(context.Background())

	var nilN *Notifier
	if nilN.Ready() {
		t.Fatal("nil notifier reported a send")
	}
}

func TestNotifySocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram unavailable: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)

	n := NewNotifier(true, logx.Nop())
	if !n.Ready() {
		t.Fatal("Ready not sent")
	}
	buf := make([]byte, 64)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	k, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:k]); got != "READY=1" {
		t.Fatalf("state = %q", got)
	}
}

func TestNoSocketMeansNotSent(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if NewNotifier(true, logx.Nop()).Ready() {
		t.Fatal("sent without a socket")
	}
}
