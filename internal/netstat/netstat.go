// Package netstat enumerates TCP connections from the Linux proc filesystem.
package netstat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/prometheus/procfs"

	"github.com/August26/proxymon/internal/model"
	"github.com/August26/proxymon/internal/parser"
)

const DefaultProcRoot = procfs.DefaultMountPoint

// ProcSource reads the tcp and tcp6 tables under a proc mount. Listening
// sockets are not connections and are left out.
type ProcSource struct {
	root             string
	resolveProcesses bool
	log              *slog.Logger
}

func NewProcSource(root string, resolveProcesses bool, log *slog.Logger) *ProcSource {
	if root == "" {
		root = DefaultProcRoot
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProcSource{root: root, resolveProcesses: resolveProcesses, log: log}
}

// ListConnections returns the current TCP connection table. A missing tcp6
// table is tolerated; a missing or unreadable tcp table is an error.
func (s *ProcSource) ListConnections(ctx context.Context) ([]model.RawConnection, error) {
	pfs, err := procfs.NewFS(s.root)
	if err != nil {
		return nil, fmt.Errorf("open proc fs %s: %w", s.root, err)
	}

	tcp, err := pfs.NetTCP()
	if err != nil {
		return nil, fmt.Errorf("read tcp table: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tcp6, err := pfs.NetTCP6()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read tcp6 table: %w", err)
	}
	rows := append(tcp, tcp6...)

	var owners map[uint64]owner
	if s.resolveProcesses {
		owners = s.socketOwners(pfs)
	}

	out := make([]model.RawConnection, 0, len(rows))
	var skipped int
	for _, r := range rows {
		if r.St == parser.StateListen {
			continue
		}
		local, ok := parser.AddrPort(r.LocalAddr, r.LocalPort)
		if !ok {
			skipped++
			continue
		}
		remote, ok := parser.AddrPort(r.RemAddr, r.RemPort)
		if !ok {
			skipped++
			continue
		}
		rc := model.RawConnection{
			Local:  local,
			Remote: remote,
			State:  parser.ConnState(r.St),
		}
		if o, ok := owners[r.Inode]; ok && r.Inode != 0 {
			pid, name := o.pid, o.name
			rc.PID = &pid
			if name != "" {
				rc.ProcessName = &name
			}
		}
		out = append(out, rc)
	}
	if skipped > 0 {
		s.log.Debug("skipped malformed connection rows", "root", s.root, "count", skipped)
	}
	return out, nil
}

type owner struct {
	pid  int
	name string
}

// socketOwners maps socket inodes to the process holding them. Processes
// that vanish or deny access are skipped.
func (s *ProcSource) socketOwners(pfs procfs.FS) map[uint64]owner {
	procs, err := pfs.AllProcs()
	if err != nil {
		s.log.Debug("cannot list processes", "root", s.root, "err", err)
		return nil
	}

	owners := make(map[uint64]owner)
	for _, p := range procs {
		targets, err := p.FileDescriptorTargets()
		if err != nil {
			continue
		}

		var name string
		var named bool
		for _, link := range targets {
			inode, ok := parser.SocketInode(link)
			if !ok {
				continue
			}
			if !named {
				name = processName(p)
				named = true
			}
			if _, seen := owners[inode]; !seen {
				owners[inode] = owner{pid: p.PID, name: name}
			}
		}
	}
	return owners
}

func processName(p procfs.Proc) string {
	comm, err := p.Comm()
	if err != nil {
		return "unknown"
	}
	return comm
}
