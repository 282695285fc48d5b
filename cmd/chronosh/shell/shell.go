// Package shell holds the REPL state and command dispatch.
package shell

import (
	"fmt"
	"sync"

	"github.com/kartikbazzad/chronodb/cmd/chronosh/commands"
	"github.com/kartikbazzad/chronodb/cmd/chronosh/parser"
	"github.com/kartikbazzad/chronodb/pkg/client"
)

type Shell struct {
	socketPath string
	client     *client.Client
	mu         sync.Mutex
	pretty     bool
}

func NewShell(socketPath string) *Shell {
	return &Shell{
		socketPath: socketPath,
		client:     client.New(socketPath),
		pretty:     true,
	}
}

func (s *Shell) Connect() error {
	return s.client.Connect()
}

func (s *Shell) Close() error {
	return s.client.Close()
}

func (s *Shell) Pretty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pretty
}

func (s *Shell) SetPretty(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pretty = on
}

func (s *Shell) Execute(cmd *parser.Command) commands.Result {
	switch cmd.Name {
	case ".help":
		return commands.Help()
	case ".exit", ".quit":
		return commands.Exit()
	case ".pretty":
		if len(cmd.Args) != 1 || (cmd.Args[0] != "on" && cmd.Args[0] != "off") {
			return commands.ErrorResult{Err: "usage: .pretty on|off"}
		}
		s.SetPretty(cmd.Args[0] == "on")
		return commands.OKResult{}
	case ".collections":
		return commands.Collections(s.client, s.Pretty())
	case ".create-collection":
		return commands.CreateCollection(s.client, cmd)
	case ".drop-collection":
		return commands.DropCollection(s.client, cmd)
	case ".insert":
		return commands.Insert(s.client, cmd, s.Pretty())
	case ".find":
		return commands.Find(s.client, cmd, s.Pretty())
	case ".count":
		return commands.Count(s.client, cmd)
	case ".update":
		return commands.Update(s.client, cmd, s.Pretty())
	case ".delete":
		return commands.Delete(s.client, cmd, s.Pretty())
	case ".index":
		return commands.Index(s.client, cmd)
	case ".stats":
		return commands.Stats(s.client, s.Pretty())
	default:
		return commands.ErrorResult{Err: fmt.Sprintf("unknown command: %s", cmd.Name)}
	}
}
