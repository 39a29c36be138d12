package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"stash/internal/config"
	"stash/internal/logging"
	"stash/internal/shell"
	"stash/internal/storage"
)

// console joins stdin and stdout for the shell's terminal.
type console struct {
	io.Reader
	io.Writer
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	kind := flag.String("kind", "", "storage kind: basic, advanced or embedded (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	logFormat := flag.String("log-format", "", "log format: text or json (overrides config)")
	check := flag.Bool("check", false, "validate config and storage setup, then exit")
	flag.Parse()

	// Load config (TOML file with defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// CLI flags override config file values
	if *kind != "" {
		cfg.Storage.Kind = *kind
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	restore := func() {}
	fatalf := func(format string, args ...any) {
		restore()
		log.Fatalf(format, args...)
	}
	var (
		terminal *term.Terminal
		logOut   io.Writer = os.Stderr
	)
	// The shell owns the tty from here on; log through its terminal so
	// records get CRLF endings in raw mode and do not clobber the prompt.
	if !*check {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			log.Fatalf("stdin is not a terminal (use -check to validate the setup)")
		}
		state, err := term.MakeRaw(fd)
		if err != nil {
			log.Fatalf("terminal: %v", err)
		}
		restore = func() { _ = term.Restore(fd, state) }
		defer restore()

		terminal = shell.NewTerminal(console{os.Stdin, os.Stdout})
		logOut = terminal
	}

	if err := logging.Init(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: logOut}); err != nil {
		fatalf("logging: %v", err)
	}
	logger := logging.For("main")

	factory, err := storage.NewFactory(
		storage.WithWorkDir(cfg.Storage.WorkDir),
		storage.WithHomeDir(cfg.Storage.HomeDir),
		storage.WithSeed(cfg.Storage.KeySeed),
		storage.WithEmbedded(),
	)
	if err != nil {
		fatalf("storage: %v", err)
	}
	backend, err := factory.Get(cfg.Storage.Kind)
	if err != nil {
		fatalf("storage: %v", err)
	}
	logger.Info("storage ready", "kind", backend.Kind(), "path", backend.Path())

	if *check {
		fmt.Printf("%s store at %s\n", backend.Kind(), backend.Path())
		return
	}

	if err := shell.New(backend, cfg).Serve(terminal); err != nil {
		fatalf("shell: %v", err)
	}
}
