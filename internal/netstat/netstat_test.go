package netstat

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/August26/proxymon/internal/model"
)

const tcpTable = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 11111 1 0000000000000000 100 0 0 10 0
   1: 0100000A:1388 057100CB:2694 01 00000000:00000000 00:00000000 00000000     0        0 22222 1 0000000000000000 20 4 30 10 -1
   2: 0200000A:1389 057100CB:2694 06 00000000:00000000 00:00000000 00000000     0        0 0 1 0000000000000000 20 4 30 10 -1
`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func fakeProc(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "net", "tcp"), tcpTable)

	// pid 4242 owns inode 22222.
	writeFile(t, filepath.Join(root, "4242", "comm"), "haproxy\n")
	if err := os.MkdirAll(filepath.Join(root, "4242", "fd"), 0o755); err != nil {
		t.Fatalf("mkdir fd: %v", err)
	}
	if err := os.Symlink("socket:[22222]", filepath.Join(root, "4242", "fd", "3")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink("/dev/null", filepath.Join(root, "4242", "fd", "0")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	return root
}

func TestProcSourceListConnections(t *testing.T) {
	src := NewProcSource(fakeProc(t), true, quiet())

	conns, err := src.ListConnections(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("got %d connections want 2 (listen socket excluded)", len(conns))
	}

	est := conns[0]
	if est.Local != netip.MustParseAddrPort("10.0.0.1:5000") || est.State != model.ConnEstablished {
		t.Fatalf("bad first connection: %#v", est)
	}
	if est.PID == nil || *est.PID != 4242 {
		t.Fatalf("expected pid 4242, got %v", est.PID)
	}
	if est.ProcessName == nil || *est.ProcessName != "haproxy" {
		t.Fatalf("expected process haproxy, got %v", est.ProcessName)
	}

	tw := conns[1]
	if tw.State != model.ConnTimeWait || tw.PID != nil {
		t.Fatalf("bad time-wait connection: %#v", tw)
	}
}

func TestProcSourceWithoutProcessResolution(t *testing.T) {
	src := NewProcSource(fakeProc(t), false, quiet())
	conns, err := src.ListConnections(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, c := range conns {
		if c.PID != nil || c.ProcessName != nil {
			t.Fatalf("process info should not be resolved: %#v", c)
		}
	}
}

func TestProcSourceMissingTable(t *testing.T) {
	src := NewProcSource(t.TempDir(), false, quiet())
	if _, err := src.ListConnections(context.Background()); err == nil {
		t.Fatalf("expected error for missing tcp table")
	}
}

const tcp6Table = `  sl  local_address                         remote_address                        st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0000000000000000FFFF00000100000A:1390 0000000000000000FFFF0000057100CB:2694 01 00000000:00000000 00:00000000 00000000     0        0 33333 1 0000000000000000 20 4 30 10 -1
`

func TestProcSourceReadsTCP6(t *testing.T) {
	root := fakeProc(t)
	writeFile(t, filepath.Join(root, "net", "tcp6"), tcp6Table)

	conns, err := NewProcSource(root, false, quiet()).ListConnections(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(conns) != 3 {
		t.Fatalf("got %d connections want 3", len(conns))
	}
	v6 := conns[2]
	if v6.Local.Addr().Unmap() != netip.MustParseAddr("10.0.0.1") || v6.Local.Port() != 5008 {
		t.Fatalf("bad mapped local address: %s", v6.Local)
	}
	if v6.Remote.Addr().Unmap() != netip.MustParseAddr("203.0.113.5") || v6.State != model.ConnEstablished {
		t.Fatalf("bad tcp6 row: %#v", v6)
	}
}
