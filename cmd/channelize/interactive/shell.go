// Package interactive provides the interactive shell of the channelize
// client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/channelize/channelize-go/pkg/proxy"
)

// SubscribeTimeout bounds the wait for confirmations of one shell command.
// The request is abandoned when it expires.
const SubscribeTimeout = 30 * time.Second

// Shell reads commands and drives a proxy.Client.
type Shell struct {
	client *proxy.Client
	rl     *readline.Instance
	out    io.Writer

	mu      sync.Mutex
	watches map[string]func()
}

// New creates a shell on the terminal completing the given domain names.
// Attach a client before calling Run.
func New(domains []string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "channelize> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(domains),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(nil, rl.Stdout())
	s.rl = rl
	return s, nil
}

// Attach sets the client the shell drives.
func (s *Shell) Attach(client *proxy.Client) {
	s.client = client
}

func newShell(client *proxy.Client, out io.Writer) *Shell {
	return &Shell{
		client:  client,
		out:     out,
		watches: make(map[string]func()),
	}
}

func completer(domains []string) readline.AutoCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(domains))
	for _, d := range domains {
		items = append(items, readline.PcItem(d))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("subscribe", items...),
		readline.PcItem("unsubscribe", items...),
		readline.PcItem("watch", items...),
		readline.PcItem("unwatch", items...),
		readline.PcItem("contexts", items...),
		readline.PcItem("status"),
		readline.PcItem("domains"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that coordinates with the prompt. Route log output
// through it.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run reads commands until quit, EOF or ctx ends. cancel is called on exit.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	defer s.stopWatches()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if s.Execute(ctx, line) {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status", "st":
		s.cmdStatus()
	case "domains":
		fmt.Fprintln(s.out, strings.Join(s.client.Domains(), " "))
	case "subscribe", "sub":
		s.cmdSubscribe(ctx, args)
	case "unsubscribe", "unsub":
		s.cmdUnsubscribe(ctx, args)
	case "watch":
		s.cmdWatch(args)
	case "unwatch":
		s.cmdUnwatch(args)
	case "contexts", "ctx":
		s.cmdContexts(args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Channelize Commands:
  subscribe <domain> [ids...]  - Subscribe and wait for confirmations
  unsubscribe <domain>         - Unsubscribe this connection
  watch <domain>               - Print change notifications
  unwatch <domain>             - Stop printing notifications
  contexts <domain>            - List outstanding requests
  status                       - Show connection and domain status
  domains                      - List domains
  help                         - Show this help
  quit                         - Exit`)
}

func (s *Shell) handle(args []string, usage string) (proxy.Handle, bool) {
	if len(args) < 1 {
		fmt.Fprintf(s.out, "Usage: %s\n", usage)
		return nil, false
	}
	h, err := s.client.Handle(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "%v (domains: %s)\n", err, strings.Join(s.client.Domains(), ", "))
		return nil, false
	}
	return h, true
}

func (s *Shell) cmdStatus() {
	conn := s.client.Connection()
	id, _ := conn.ConnectionID()
	if id == "" {
		id = "-"
	}
	fmt.Fprintf(s.out, "Connection: %s (id %s, reconnects %d)\n", conn.State(), id, conn.Reconnects())
	fmt.Fprintf(s.out, "  %-16s %8s %8s %8s\n", "DOMAIN", "PENDING", "INVOKED", "MISSES")
	for _, name := range s.client.Domains() {
		h, _ := s.client.Handle(name)
		st := h.Stats()
		fmt.Fprintf(s.out, "  %-16s %8d %8d %8d\n", name, st.Pending, st.Invoked, st.CorrelationMisses)
	}
}

func (s *Shell) cmdSubscribe(ctx context.Context, args []string) {
	h, ok := s.handle(args, "subscribe <domain> [ids...]")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, SubscribeTimeout)
	defer cancel()

	keys, err := h.SubscribeKeys(ctx, args[1:])
	if err != nil {
		fmt.Fprintf(s.out, "%s: subscribe failed: %v\n", h.Name(), err)
		return
	}
	if len(keys) > 1 || (len(keys) == 1 && keys[0] != "") {
		fmt.Fprintf(s.out, "%s: confirmed %s\n", h.Name(), strings.Join(keys, ", "))
		return
	}
	fmt.Fprintf(s.out, "%s: confirmed\n", h.Name())
}

func (s *Shell) cmdUnsubscribe(ctx context.Context, args []string) {
	h, ok := s.handle(args, "unsubscribe <domain>")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, SubscribeTimeout)
	defer cancel()

	if err := h.UnsubscribeAll(ctx); err != nil {
		fmt.Fprintf(s.out, "%s: unsubscribe failed: %v\n", h.Name(), err)
		return
	}
	fmt.Fprintf(s.out, "%s: unsubscribed\n", h.Name())
}

func (s *Shell) cmdWatch(args []string) {
	h, ok := s.handle(args, "watch <domain>")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.watches[h.Name()]; dup {
		fmt.Fprintf(s.out, "%s: already watching\n", h.Name())
		return
	}

	w := h.Watch()
	s.watches[h.Name()] = w.Close
	go func() {
		for ch := range w.C() {
			fmt.Fprintf(s.out, "[%s] %s %s", h.Name(), ch.RequestFor, ch.EntityID)
			if ch.ChangeType != "" {
				fmt.Fprintf(s.out, " (%s)", ch.ChangeType)
			}
			fmt.Fprintln(s.out)
		}
	}()
	fmt.Fprintf(s.out, "%s: watching\n", h.Name())
}

func (s *Shell) cmdUnwatch(args []string) {
	h, ok := s.handle(args, "unwatch <domain>")
	if !ok {
		return
	}
	s.mu.Lock()
	stop, found := s.watches[h.Name()]
	delete(s.watches, h.Name())
	s.mu.Unlock()

	if !found {
		fmt.Fprintf(s.out, "%s: not watching\n", h.Name())
		return
	}
	stop()
	fmt.Fprintf(s.out, "%s: stopped watching\n", h.Name())
}

func (s *Shell) cmdContexts(args []string) {
	h, ok := s.handle(args, "contexts <domain>")
	if !ok {
		return
	}
	infos := h.Stats().Contexts
	if len(infos) == 0 {
		fmt.Fprintf(s.out, "%s: no outstanding requests\n", h.Name())
		return
	}
	for _, ci := range infos {
		fmt.Fprintf(s.out, "  %-6s %-12s %-8s %d/%d age %s\n",
			ci.ID, ci.Op, ci.State, ci.Received, len(ci.Keys), ci.Age.Round(time.Millisecond))
	}
}

func (s *Shell) stopWatches() {
	s.mu.Lock()
	watches := s.watches
	s.watches = make(map[string]func())
	s.mu.Unlock()
	for _, stop := range watches {
		stop()
	}
}
