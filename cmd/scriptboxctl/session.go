package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	lua "github.com/yuin/gopher-lua"

	"scriptbox"
)

// session drives an interactive REPL over one live Sandbox.
type session struct {
	sb     *scriptbox.Sandbox
	rl     *readline.Instance
	pretty bool
}

func newSession(sb *scriptbox.Sandbox, prettyOutput bool) (*session, error) {
	rl, err := readline.New("scriptbox> ")
	if err != nil {
		return nil, fmt.Errorf("readline init: %w", err)
	}
	return &session{sb: sb, rl: rl, pretty: prettyOutput}, nil
}

func (s *session) Close() error {
	return s.rl.Close()
}

func (s *session) Run() {
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			fmt.Println("bye")
			return
		}
		if err != nil {
			fmt.Fprintf(s.rl.Stderr(), "read input failed: %v\n", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.handleCall(line); err != nil {
			fmt.Fprintf(s.rl.Stderr(), "error: %v\n", err)
		}
	}
}

func (s *session) handleSystemCommand(line string) bool {
	switch line {
	case "exit", "quit":
		fmt.Println("bye")
		s.rl.Close()
		return true
	case "help":
		s.printHelp()
		return true
	case "output":
		s.printOutput()
		return true
	case "stats":
		s.printStats()
		return true
	}
	if strings.HasPrefix(line, "patch ") {
		s.handlePatch(strings.TrimSpace(strings.TrimPrefix(line, "patch ")))
		return true
	}
	return false
}

// handlePatch lets an operator poke at the last captured output() JSON
// without re-running the guest script — useful when exploring what a
// downstream consumer would see after a small field tweak.
func (s *session) handlePatch(args string) {
	fields, err := shlex.Split(args)
	if err != nil || len(fields) != 2 {
		fmt.Fprintln(s.rl.Stderr(), "usage: patch <json.path> <value>")
		return
	}
	patched, err := sjson.SetBytes(s.sb.Output(), fields[0], fields[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stderr(), "patch failed: %v\n", err)
		return
	}
	if s.pretty {
		patched = pretty.Pretty(patched)
	}
	fmt.Println(string(patched))
}

func (s *session) printHelp() {
	fmt.Println("commands:")
	fmt.Println("  call <fn> [args...]   invoke a guest function, args are parsed as numbers, 'true'/'false', or strings")
	fmt.Println("  output                print everything output() has accumulated so far")
	fmt.Println("  patch <path> <value>  print the last output() JSON with one field overwritten")
	fmt.Println("  stats                 print quota usage (memory, instructions, output)")
	fmt.Println("  help                  show this message")
	fmt.Println("  exit | quit           leave the REPL")
}

func (s *session) printOutput() {
	buf := s.sb.Output()
	if s.pretty && len(buf) > 0 && (buf[0] == '{' || buf[0] == '[') {
		fmt.Println(string(pretty.Pretty(buf)))
		return
	}
	fmt.Println(string(buf))
}

func (s *session) printStats() {
	st := s.sb.Stats()
	fmt.Printf("memory:       current=%d maximum=%d limit=%d\n", st.MemoryCurrent, st.MemoryMaximum, st.MemoryLimit)
	fmt.Printf("instructions: current=%d maximum=%d limit=%d\n", st.InstructionsCurrent, st.InstructionsMaximum, st.InstructionsLimit)
	fmt.Printf("output:       current=%d maximum=%d limit=%d\n", st.OutputCurrent, st.OutputMaximum, st.OutputLimit)
}

func (s *session) handleCall(line string) error {
	fields, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(fields) == 0 || fields[0] != "call" {
		return fmt.Errorf("unknown command %q (try 'help')", line)
	}
	if len(fields) < 2 {
		return fmt.Errorf("usage: call <fn> [args...]")
	}

	fn := fields[1]
	args := make([]lua.LValue, 0, len(fields)-2)
	for _, raw := range fields[2:] {
		args = append(args, parseArg(raw))
	}

	results, err := s.sb.CallFunction(nil, fn, args...)
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Printf("[%d] %s\n", i+1, r.String())
	}
	return nil
}

func parseArg(raw string) lua.LValue {
	switch raw {
	case "true":
		return lua.LTrue
	case "false":
		return lua.LFalse
	case "nil":
		return lua.LNil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return lua.LNumber(n)
	}
	return lua.LString(raw)
}
