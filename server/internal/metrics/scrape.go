package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Stats is a summary of one relay's /metrics output.
type Stats struct {
	Rooms             float64
	Sessions          float64
	SessionsOpened    float64
	SessionsClosed    float64
	MessagesReceived  float64
	MessagesDelivered float64
	BytesReceived     float64
	SlowEvictions     float64
	BusPublished      float64
	BusReceived       float64
}

// Fetch performs an HTTP GET to url and returns the summarised metrics.
// header, when non-empty, is sent as the API key header with key.
func Fetch(ctx context.Context, client *http.Client, url, header, key string) (*Stats, error) {
	mfs, err := fetchMetrics(ctx, client, url, header, key)
	if err != nil {
		return nil, fmt.Errorf("metrics: fetch %s: %w", url, err)
	}
	return Summarize(mfs), nil
}

// Summarize extracts the relay families from a parsed exposition. Absent
// families read as zero.
func Summarize(mfs map[string]*dto.MetricFamily) *Stats {
	return &Stats{
		Rooms:             sumFamily(mfs["relay_rooms"]),
		Sessions:          sumFamily(mfs["relay_sessions"]),
		SessionsOpened:    sumFamily(mfs["relay_sessions_opened_total"]),
		SessionsClosed:    sumFamily(mfs["relay_sessions_closed_total"]),
		MessagesReceived:  sumFamily(mfs["relay_messages_received_total"]),
		MessagesDelivered: sumFamily(mfs["relay_messages_delivered_total"]),
		BytesReceived:     sumFamily(mfs["relay_bytes_received_total"]),
		SlowEvictions:     sumFamily(mfs["relay_slow_consumer_evictions_total"]),
		BusPublished:      sumFamily(mfs["relay_bus_published_total"]),
		BusReceived:       sumFamily(mfs["relay_bus_received_total"]),
	}
}

func fetchMetrics(ctx context.Context, client *http.Client, url, header, key string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if header != "" && key != "" {
		req.Header.Set(header, key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
