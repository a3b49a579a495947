package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/drafftink/relay/server/internal/metrics"
)

type statsCommand struct {
	URL     string        `long:"url" description:"Metrics URL of the relay; derived from --address/--port or the config when empty."`
	Timeout time.Duration `long:"timeout" default:"5s" description:"Request timeout."`

	opts *Options
}

// Execute fetches /metrics from a running relay and prints a summary.
func (c *statsCommand) Execute([]string) error {
	if err := loadEnv(c.opts.EnvFile); err != nil {
		return err
	}
	cfg, err := loadConfig(c.opts)
	if err != nil {
		return err
	}

	url := c.URL
	if url == "" {
		url = fmt.Sprintf("http://%s/metrics", cfg.Server.Addr())
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	var header, key string
	if cfg.Auth.EffectiveMode() == "apikey" {
		header, key = cfg.Auth.EffectiveHeader(), cfg.Auth.Key()
	}
	st, err := metrics.Fetch(ctx, &http.Client{Timeout: c.Timeout}, url, header, key)
	if err != nil {
		return err
	}
	return printStats(os.Stdout, url, st)
}

func printStats(w io.Writer, url string, st *metrics.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "relay\t%s\n", url)
	fmt.Fprintf(tw, "rooms\t%.0f\n", st.Rooms)
	fmt.Fprintf(tw, "sessions\t%.0f\n", st.Sessions)
	fmt.Fprintf(tw, "sessions opened\t%.0f\n", st.SessionsOpened)
	fmt.Fprintf(tw, "sessions closed\t%.0f\n", st.SessionsClosed)
	fmt.Fprintf(tw, "messages received\t%.0f\n", st.MessagesReceived)
	fmt.Fprintf(tw, "messages delivered\t%.0f\n", st.MessagesDelivered)
	fmt.Fprintf(tw, "bytes received\t%.0f\n", st.BytesReceived)
	fmt.Fprintf(tw, "slow consumer evictions\t%.0f\n", st.SlowEvictions)
	fmt.Fprintf(tw, "bus published\t%.0f\n", st.BusPublished)
	fmt.Fprintf(tw, "bus received\t%.0f\n", st.BusReceived)
	return tw.Flush()
}
