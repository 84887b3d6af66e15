package main

import (
	"os/exec"

	"github.com/ehrlich-b/edad/internal/transport"
)

// stdioProcess closes a co-launched daemon's stdin (signalling EOF to its
// framer) and waits for it to exit.
type stdioProcess struct {
	cmd   *exec.Cmd
	stdin interface{ Close() error }
}

func (p *stdioProcess) Close() error {
	p.stdin.Close()
	return p.cmd.Wait()
}

// newStdioClient spawns "edad --stdio" and wires a transport.Client to its
// stdin/stdout, for --stdio mode where the editor launches its own private
// daemon instance rather than connecting to a resident one.
func newStdioClient() (*transport.Client, error) {
	cmd := exec.Command("edad", "--stdio")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	proc := &stdioProcess{cmd: cmd, stdin: stdin}
	return transport.NewStdioClient(stdout, stdin, proc), nil
}
