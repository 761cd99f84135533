package transport

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/creack/pty"
)

// ptySize is wide enough that the client does not wrap long list lines.
var ptySize = &pty.Winsize{Rows: 40, Cols: 512}

// spawnPTY starts cmd attached to a pseudo-terminal. The master side is
// both the input and the merged output stream.
func (p *Process) spawnPTY(cmd *exec.Cmd) (io.ReadCloser, error) {
	ptmx, err := pty.StartWithSize(cmd, ptySize)
	if err != nil {
		return nil, fmt.Errorf("spawning %s on pty: %w", p.cfg.Command, err)
	}

	p.mu.Lock()
	p.stdin = ptmx
	p.readers = []io.Closer{ptmx}
	p.mu.Unlock()
	return ptmx, nil
}
