// Command klondike creates, inspects and extracts klondike archives.
//
// Usage:
//
//	klondike create [-legacy] [-encrypt] [-spool dir] archive path...
//	klondike list [-dir prefix] archive
//	klondike info archive
//	klondike extract [-o dir] archive [name...]
//	klondike verify archive
//	klondike passwd [-clear] archive
//
// Passwords are read from KLONDIKE_PASSWORD. create encrypts only with
// -encrypt. passwd reads the new password from KLONDIKE_NEW_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/meigma/klondike"
)

const (
	envPassword    = "KLONDIKE_PASSWORD"
	envNewPassword = "KLONDIKE_NEW_PASSWORD"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

type env struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	getenv func(string) string
}

var commands = []command{
	{"create", "create [-legacy] [-encrypt] [-spool dir] archive path...", runCreate},
	{"list", "list [-dir prefix] archive", runList},
	{"info", "info archive", runInfo},
	{"extract", "extract [-o dir] archive [name...]", runExtract},
	{"verify", "verify archive", runVerify},
	{"passwd", "passwd [-clear] archive", runPasswd},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], &env{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, e *env) int {
	global := flag.NewFlagSet("klondike", flag.ContinueOnError)
	global.SetOutput(e.stderr)
	verbose := global.Bool("v", false, "verbose logging")
	global.Usage = func() { usage(e.stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	e.logger = slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: level}))

	rest := global.Args()
	if len(rest) == 0 {
		usage(e.stderr)
		return 2
	}
	for _, c := range commands {
		if c.name != rest[0] {
			continue
		}
		if err := c.run(ctx, e, rest[1:]); err != nil {
			fmt.Fprintf(e.stderr, "klondike %s: %v\n", c.name, err)
			if errors.Is(err, errUsage) {
				fmt.Fprintf(e.stderr, "usage: klondike %s\n", c.usage)
				return 2
			}
			return 1
		}
		return 0
	}
	fmt.Fprintf(e.stderr, "klondike: unknown command %q\n", rest[0])
	usage(e.stderr)
	return 2
}

var errUsage = errors.New("invalid arguments")

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: klondike [-v] <command> [arguments]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  klondike %s\n", c.usage)
	}
}

func (e *env) options() []klondike.Option {
	return []klondike.Option{klondike.WithLogger(e.logger)}
}

// openOptions adds the password used to read existing archives.
func (e *env) openOptions() []klondike.Option {
	opts := e.options()
	if pw := e.getenv(envPassword); pw != "" {
		opts = append(opts, klondike.WithPassword(pw))
	}
	return opts
}

func runCreate(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	legacy := fs.Bool("legacy", false, "write the untyped legacy layout")
	encrypt := fs.Bool("encrypt", false, "encrypt with "+envPassword)
	spool := fs.String("spool", "", "spool large entries under this directory")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < 2 {
		return errUsage
	}
	opts := e.options()
	opts = append(opts, klondike.WithLegacyFormat(*legacy))
	if *spool != "" {
		opts = append(opts, klondike.WithSpoolDir(*spool))
	}
	a := klondike.New(opts...)
	defer a.Close()

	if *encrypt {
		if err := a.SetPassword(e.getenv(envPassword)); err != nil {
			return fmt.Errorf("%s: %w", envPassword, err)
		}
	}
	for _, path := range fs.Args()[1:] {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, err := a.AddDir(ctx, path); err != nil {
				return err
			}
			continue
		}
		if _, err := a.AddFile("", path); err != nil {
			return err
		}
	}
	if err := a.Save(fs.Arg(0)); err != nil {
		return err
	}
	st := a.Stats()
	fmt.Fprintf(e.stdout, "%s: %d entries, %d -> %d bytes (%.1f%% saved)\n",
		fs.Arg(0), st.Entries, st.OriginalBytes, st.StoredBytes, st.Savings*100)
	return nil
}

func runList(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	dir := fs.String("dir", "", "list only the children of this directory")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	a, err := klondike.Open(fs.Arg(0), e.openOptions()...)
	if err != nil {
		return err
	}
	defer a.Close()

	if *dir != "" {
		for _, name := range a.List(*dir) {
			fmt.Fprintln(e.stdout, name)
		}
		return nil
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SIZE\tSTORED\tTECHNIQUE\tTYPE\tNAME\t")
	for _, en := range a.Entries() {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t\n", en.OriginalSize, en.CompressedSize, en.Technique, en.Type, en.Name)
	}
	return tw.Flush()
}

func runInfo(_ context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	a, err := klondike.Open(args[0], e.openOptions()...)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.Stats()
	fmt.Fprintf(e.stdout, "entries:   %d\n", st.Entries)
	fmt.Fprintf(e.stdout, "encrypted: %t\n", a.Encrypted())
	fmt.Fprintf(e.stdout, "original:  %d bytes\n", st.OriginalBytes)
	fmt.Fprintf(e.stdout, "stored:    %d bytes\n", st.StoredBytes)
	fmt.Fprintf(e.stdout, "saved:     %d bytes (%.1f%%)\n", st.SavedBytes, st.Savings*100)

	techniques := make([]string, 0, len(st.Techniques))
	counts := make(map[string]int, len(st.Techniques))
	for t, n := range st.Techniques {
		techniques = append(techniques, t.String())
		counts[t.String()] = n
	}
	sort.Strings(techniques)
	for _, t := range techniques {
		fmt.Fprintf(e.stdout, "  %-8s %d\n", t, counts[t])
	}
	return nil
}

func runExtract(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	out := fs.String("o", ".", "destination directory")
	if err := fs.Parse(args); err != nil || fs.NArg() < 1 {
		return errUsage
	}
	a, err := klondike.Open(fs.Arg(0), e.openOptions()...)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.ExtractTo(*out, fs.Args()[1:]...)
}

func runVerify(_ context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	a, err := klondike.Open(args[0], e.openOptions()...)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.Verify()
	for _, v := range ok {
		fmt.Fprintf(e.stdout, "%s  %s\n", v.Digest, v.Name)
	}
	return err
}

func runPasswd(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	clearPw := fs.Bool("clear", false, "remove encryption")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	a, err := klondike.Open(fs.Arg(0), e.openOptions()...)
	if err != nil {
		return err
	}
	defer a.Close()

	if *clearPw {
		a.ClearPassword()
	} else if err := a.SetPassword(e.getenv(envNewPassword)); err != nil {
		return fmt.Errorf("%s: %w", envNewPassword, err)
	}
	return a.Save(fs.Arg(0))
}
