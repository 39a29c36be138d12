// Package shell is the interactive front end over a storage backend: it keeps
// one messaging account (JID and password) in the configured store and mints
// new identifiers for the configured domains.
package shell

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	"stash/internal/config"
	"stash/internal/identity"
	"stash/internal/logging"
	"stash/internal/storage"
)

const prompt = "(stash) "

// Vault is the part of a storage backend the shell drives.
type Vault interface {
	Store(v any) error
	RetrieveInto(dst any) error
	Remove() error
	Path() string
	Kind() storage.Kind
}

// Shell reads slash commands from a terminal and runs them against a Vault.
type Shell struct {
	vault    Vault
	cfg      *config.Config
	commands *CommandRegistry
}

// New builds a shell with the built-in commands registered. A nil cfg means
// config.Defaults().
func New(v Vault, cfg *config.Config) *Shell {
	if cfg == nil {
		cfg = config.Defaults()
	}
	s := &Shell{
		vault:    v,
		cfg:      cfg,
		commands: NewCommandRegistry(logging.For("shell")),
	}
	s.registerBuiltins()
	return s
}

// Commands returns the registry so callers can add commands before Serve.
func (s *Shell) Commands() *CommandRegistry {
	return s.commands
}

// NewTerminal wraps rw in the line editor the shell expects. Writes to the
// returned terminal get CRLF line endings and redraw the prompt, so it is
// also the place to send log output while the shell owns the tty.
func NewTerminal(rw io.ReadWriter) *term.Terminal {
	return term.NewTerminal(rw, prompt)
}

// Run serves the shell on a new terminal over rw.
func (s *Shell) Run(rw io.ReadWriter) error {
	return s.Serve(NewTerminal(rw))
}

// Serve reads commands from t until /quit or end of input.
func (s *Shell) Serve(t *term.Terminal) error {
	t.AutoCompleteCallback = s.commands.Complete

	_, _ = fmt.Fprintf(t, "stash shell (%s store at %s)\n", s.vault.Kind(), s.vault.Path())
	_, _ = fmt.Fprintln(t, "Type /help for commands.")

	for {
		line, err := t.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			_, _ = fmt.Fprintln(t, "Commands start with / (try /help)")
			continue
		}
		if s.commands.Dispatch(t, line) {
			return nil
		}
	}
}

func (s *Shell) registerBuiltins() {
	r := s.commands

	r.Register("/store", Command{
		Usage:   "/store <jid>",
		Help:    "save an account, prompting for its password",
		MinArgs: 1,
		MaxArgs: 1,
		Run: func(ctx CommandContext) error {
			jid := ctx.Args[0]
			if !strings.Contains(jid, "@") {
				return errUsage
			}
			password, err := ctx.Terminal.ReadPassword("Password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			if err := s.vault.Store([]string{jid, password}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(ctx.Terminal, "Stored %s.\n", jid)
			return nil
		},
	})

	r.Register("/show", Command{
		Help: "show the stored account",
		Run: func(ctx CommandContext) error {
			var account [2]string
			err := s.vault.RetrieveInto(&account)
			if errors.Is(err, storage.ErrNotFound) {
				_, _ = fmt.Fprintln(ctx.Terminal, "Nothing stored yet.")
				return nil
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(ctx.Terminal, "JID:      %s\n", account[0])
			_, _ = fmt.Fprintf(ctx.Terminal, "Password: %s\n", strings.Repeat("*", len(account[1])))
			return nil
		},
	})

	r.Register("/path", Command{
		Help: "print where the account is stored",
		Run: func(ctx CommandContext) error {
			_, _ = fmt.Fprintf(ctx.Terminal, "%s (%s)\n", s.vault.Path(), s.vault.Kind())
			return nil
		},
	})

	r.Register("/forget", Command{
		Help: "delete the stored account",
		Run: func(ctx CommandContext) error {
			if err := s.vault.Remove(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(ctx.Terminal, "Forgotten.")
			return nil
		},
	})

	r.Register("/id", Command{
		Usage:   "/id [prefix]",
		Help:    "generate a new identifier for the default domain",
		MaxArgs: 1,
		Run: func(ctx CommandContext) error {
			domain, _, ok := s.cfg.Domain("")
			if !ok {
				return errors.New("no default domain configured (see /domains)")
			}
			opts := identity.Options{Domain: domain}
			if len(ctx.Args) == 1 {
				opts.Prefix = ctx.Args[0]
			}
			id, err := identity.New(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(ctx.Terminal, id)
			return nil
		},
	})

	r.Register("/domains", Command{
		Help: "list configured domains",
		Run: func(ctx CommandContext) error {
			names := s.cfg.DomainNames()
			if len(names) == 0 {
				_, _ = fmt.Fprintln(ctx.Terminal, "No domains configured.")
				return nil
			}
			def, _, _ := s.cfg.Domain("")
			for _, name := range names {
				d := s.cfg.Domains[name]
				mark := " "
				if name == def {
					mark = "*"
				}
				_, _ = fmt.Fprintf(ctx.Terminal, "%s %s  %s:%d\n", mark, name, d.Server, d.Port)
			}
			return nil
		},
	})

	r.Register("/quit", Command{
		Help: "leave the shell",
		Run: func(ctx CommandContext) error {
			_, _ = fmt.Fprintln(ctx.Terminal, "Goodbye.")
			return ErrQuit
		},
	})

	r.Register("/help", Command{
		Help: "show this help",
		Run: func(ctx CommandContext) error {
			_, _ = fmt.Fprint(ctx.Terminal, r.HelpText())
			return nil
		},
	})
}
