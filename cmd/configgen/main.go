package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/hostbridge/internal/config"
	"github.com/danmuck/hostbridge/internal/logging"
	"github.com/danmuck/hostbridge/internal/logs"
)

const defaultPath = "cmd/hostbridgectl/config.toml"

var errUsage = errors.New("usage: configgen [write [-force] | check | print] [path]")

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logs.Errf("configgen: %v", err)
		os.Exit(1)
	}
}

// run dispatches one subcommand. write is the default.
func run(args []string, out io.Writer) error {
	cmd := "write"
	if len(args) > 0 && (args[0] == "write" || args[0] == "check" || args[0] == "print") {
		cmd, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("configgen "+cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return errUsage
	}
	path := defaultPath
	if fs.NArg() == 1 {
		path = fs.Arg(0)
	}

	switch cmd {
	case "print":
		body, err := config.Template("hostbridge")
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, body)
		return err
	case "check":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s ok relay=%s admin=%s\n", path, cfg.Relay.Address, cfg.Admin.Listen)
		for _, name := range cfg.WindowNames() {
			w := cfg.Windows[name]
			fmt.Fprintf(out, "  window %-14s mode=%-16s style=%s\n", name, w.InitialMode, w.Style)
		}
		return nil
	default:
		if err := config.WriteTemplate(path, "hostbridge", *force); err != nil {
			return err
		}
		logs.Infof("configgen wrote %s", path)
		return nil
	}
}
