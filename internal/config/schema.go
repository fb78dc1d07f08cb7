package config

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config is the daemon's persisted identity and tuning: who it is and
// how hard it's allowed to push, never what it has discovered. It is
// written to disk as JSON (see paths.go), matching the wire format the
// server already speaks for every other daemon-facing document.
type Config struct {
	NetworkID         uuid.UUID    `json:"network_id"`
	APIKey            string       `json:"api_key"`
	Name              string       `json:"name"`
	Mode              Mode         `json:"mode"`
	BindAddress       string       `json:"bind_address,omitempty"`
	Port              int          `json:"port,omitempty"`
	HeartbeatInterval Duration     `json:"heartbeat_interval"`
	Arp               ArpTuning    `json:"arp"`
	Scan              ScanTuning   `json:"scan"`
	Docker            *DockerProxy `json:"docker,omitempty"`
}

// ArpTuning holds the ARP scanner's operator-adjustable knobs. They are
// loaded and saved with the config file; the Resource Budgeter computes
// no ARP values, and the session runner takes ARP retries and rate from
// session.Request, which these fields do not feed.
type ArpTuning struct {
	Retries      *int  `json:"retries,omitempty"`
	RatePPS      *int  `json:"rate_pps,omitempty"`
	UseRawSocket *bool `json:"use_raw_socket,omitempty"`
}

// ScanTuning holds the port/endpoint scanner's operator-adjustable knobs.
type ScanTuning struct {
	RatePPS         *int      `json:"rate_pps,omitempty"`
	PortBatchSize   *int      `json:"port_batch_size,omitempty"`
	ProbeTimeout    *Duration `json:"probe_timeout,omitempty"`
	ConcurrentHosts *int      `json:"concurrent_hosts,omitempty"`
}

// DockerProxy enables reporting containers behind a local Docker socket
// as a Docker-kind discovery session rather than raw subnet scanning.
type DockerProxy struct {
	Enabled    bool   `json:"enabled"`
	SocketPath string `json:"socket_path,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as "30s"/"5m"
// instead of an opaque integer of nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
