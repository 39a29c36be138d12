package shell

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/term"
)

// ErrQuit ends the session when a handler returns it.
var ErrQuit = errors.New("quit")

// errUsage makes Dispatch print the command's usage line.
var errUsage = errors.New("usage")

// CommandContext is what a handler sees of the current line.
type CommandContext struct {
	Terminal *term.Terminal
	Args     []string
}

// Command is one slash command. MinArgs and MaxArgs bound the argument
// count; Dispatch prints Usage instead of running Run when it is off.
type Command struct {
	Usage   string // e.g. "/store <jid>"; defaults to the command name
	Help    string
	MinArgs int
	MaxArgs int
	Run     func(ctx CommandContext) error
}

// CommandRegistry maps slash commands to handlers. A handler error is
// printed as "Error: <err>" and the session continues.
type CommandRegistry struct {
	commands map[string]Command
	order    []string
	log      *slog.Logger
}

func NewCommandRegistry(log *slog.Logger) *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]Command),
		log:      log,
	}
}

// Register adds or replaces a command. Panics on a nil Run or a name
// without the leading slash.
func (r *CommandRegistry) Register(name string, cmd Command) {
	if cmd.Run == nil || !strings.HasPrefix(name, "/") {
		panic("shell: bad command registration " + name)
	}
	if cmd.Usage == "" {
		cmd.Usage = name
	}
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Names returns the commands in registration order.
func (r *CommandRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Dispatch runs one input line. It reports whether the session should end.
func (r *CommandRegistry) Dispatch(t *term.Terminal, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	name, args := parts[0], parts[1:]

	cmd, ok := r.commands[name]
	if !ok {
		_, _ = fmt.Fprintf(t, "Unknown command: %s (try /help)\n", name)
		return false
	}
	if len(args) < cmd.MinArgs || len(args) > cmd.MaxArgs {
		_, _ = fmt.Fprintf(t, "Usage: %s\n", cmd.Usage)
		return false
	}

	r.log.Debug("running command", "command", name, "args", len(args))
	err := cmd.Run(CommandContext{Terminal: t, Args: args})
	switch {
	case err == nil:
	case errors.Is(err, ErrQuit):
		return true
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprintf(t, "Usage: %s\n", cmd.Usage)
	default:
		r.log.Warn("command failed", "command", name, "err", err)
		_, _ = fmt.Fprintf(t, "Error: %v\n", err)
	}
	return false
}

// Complete is a term.Terminal AutoCompleteCallback: Tab on the first word
// completes a command name, or extends it to the longest shared prefix.
func (r *CommandRegistry) Complete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' {
		return "", 0, false
	}
	word := line[:pos]
	if !strings.HasPrefix(word, "/") || strings.ContainsRune(word, ' ') {
		return "", 0, false
	}

	var matches []string
	for name := range r.commands {
		if strings.HasPrefix(name, word) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return "", 0, false
	case 1:
		done := matches[0] + " "
		return done + strings.TrimLeft(line[pos:], " "), len(done), true
	}

	sort.Strings(matches)
	common := matches[0]
	for _, m := range matches[1:] {
		for !strings.HasPrefix(m, common) {
			common = common[:len(common)-1]
		}
	}
	if len(common) <= len(word) {
		return "", 0, false
	}
	return common + line[pos:], len(common), true
}

// HelpText lists the commands in registration order.
func (r *CommandRegistry) HelpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		cmd := r.commands[name]
		_, _ = fmt.Fprintf(&b, "  %-14s  %s\n", cmd.Usage, cmd.Help)
	}
	return b.String()
}
