package main

import (
	"errors"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

// Version of the binary, assigned during build.
var Version = "dev"

// Options contains the global flag options. Without a command they
// configure `serve`, which is the default.
type Options struct {
	Config   string `short:"c" long:"config" env:"RELAY_CONFIG" description:"Path to YAML config file; defaults apply when empty."`
	EnvFile  string `long:"env-file" default:".env" description:"Load environment variables from this file if it exists."`
	Address  string `long:"address" description:"Address to bind to (default: 127.0.0.1)."`
	Port     int    `long:"port" description:"Port to listen on (default: 8080)."`
	CORS     bool   `long:"cors" description:"Enable permissive CORS headers."`
	UIDir    string `long:"ui-dir" description:"Serve the static frontend from this directory."`
	LogLevel string `long:"log-level" description:"Override log.level (debug, info, warn, error)."`
	Version  bool   `long:"version" description:"Print version and exit."`
}

func main() {
	var options Options
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.AddCommand("serve",
		"Run the relay (default)",
		"Serve WebSocket rooms, the HTTP API and metrics until interrupted.",
		&serveCommand{opts: &options},
	); err != nil {
		fail(1, "register serve: %v\n", err)
	}
	if _, err := parser.AddCommand("stats",
		"Print counters of a running relay",
		"Fetch /metrics from a running relay and print a summary.",
		&statsCommand{opts: &options},
	); err != nil {
		fail(1, "register stats: %v\n", err)
	}

	if _, err := parser.Parse(); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			return
		}
		// go-flags has already printed the error.
		os.Exit(1)
	}

	// A command, if given, has already run inside Parse.
	if parser.Active != nil {
		return
	}
	if options.Version {
		fmt.Println(Version)
		return
	}
	if err := (&serveCommand{opts: &options}).Execute(nil); err != nil {
		fail(1, "%v\n", err)
	}
}

func fail(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}
