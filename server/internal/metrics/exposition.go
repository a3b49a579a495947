package metrics

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Gauges supplies the point-in-time values exported as gauges.
// *relay.Registry satisfies it.
type Gauges interface {
	RoomCount() int
	SessionCount() int
}

// Gather returns the current metric families in a stable order.
func (c *Collector) Gather(g Gauges) []*dto.MetricFamily {
	return []*dto.MetricFamily{
		gauge("relay_rooms", "Rooms with at least one member.", float64(g.RoomCount())),
		gauge("relay_sessions", "Connected sessions across all rooms.", float64(g.SessionCount())),
		counter("relay_sessions_opened_total", "Sessions that joined a room.", c.sessionsOpened.Load()),
		labelledCounter("relay_sessions_closed_total", "Sessions that ended, by cause.", "cause", []labelled{
			{CauseError, c.closedError.Load()},
			{CausePeer, c.closedPeer.Load()},
			{CauseShutdown, c.closedShutdown.Load()},
			{CauseSlowConsumer, c.closedSlow.Load()},
		}),
		counter("relay_rooms_created_total", "Rooms created on first join.", c.roomsCreated.Load()),
		counter("relay_rooms_destroyed_total", "Rooms removed after the last member left.", c.roomsDestroyed.Load()),
		counter("relay_messages_received_total", "Messages broadcast into a room.", c.messagesReceived.Load()),
		counter("relay_messages_delivered_total", "Per-recipient message enqueues.", c.messagesDelivered.Load()),
		counter("relay_bytes_received_total", "Payload bytes of broadcast messages.", c.bytesReceived.Load()),
		counter("relay_slow_consumer_evictions_total", "Sessions disconnected because their queue overflowed.", c.slowEvictions.Load()),
		counter("relay_bus_published_total", "Messages published to the cluster bus.", c.busPublished.Load()),
		counter("relay_bus_received_total", "Messages received from the cluster bus.", c.busReceived.Load()),
		counter("relay_bus_errors_total", "Failed bus publishes and undecodable bus payloads.", c.busErrors.Load()),
	}
}

// Handler serves the Prometheus text exposition at GET /metrics.
func Handler(c *Collector, g Gauges) http.Handler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range c.Gather(g) {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}

type labelled struct {
	value string
	n     uint64
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Gauge: &dto.Gauge{Value: proto.Float64(v)},
		}},
	}
}

func counter(name, help string, n uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: proto.Float64(float64(n))},
		}},
	}
}

func labelledCounter(name, help, label string, values []labelled) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, v := range values {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(v.value)}},
			Counter: &dto.Counter{Value: proto.Float64(float64(v.n))},
		})
	}
	return mf
}
