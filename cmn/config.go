package cmn

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Config is the environment/config surface named in §6: cluster UUID,
// node-id, incarnation, ping period/timeout, multicast address/port,
// plus operational timeouts. Of those timeouts only CplaneOperation is
// read by the engine (it scales the check-up interval); RetransmitTTL
// and BackoffMax are carried in the document, but msg.Substrate uses its
// own fixed constants for the coalesce window and the backoff ceiling.
type Config struct {
	ClusterUUID string `json:"cluster_uuid"`
	NodeID      uint32 `json:"node_id"`
	NodeName    string `json:"node_name"`

	// Incarnation is nonzero (§6, §9 "incarnations replace reliable
	// identity"). It is taken from the configuration document as is:
	// nothing here increments or persists it across restarts, and
	// msg.Substrate stamps a fixed incarnation of 1 on its envelopes.
	Incarnation uint16 `json:"incarnation"`

	Membership MembershipConfig `json:"membership"`
	Multicast  MulticastConfig  `json:"multicast"`
	Timeout    TimeoutConfig    `json:"timeout"`

	ConfigDir string `json:"-"`
}

type MembershipConfig struct {
	PingPeriod  Duration `json:"ping_period"`  // default 1s
	PingTimeout Duration `json:"ping_timeout"` // default 5s, must be > PingPeriod
}

type MulticastConfig struct {
	GroupAddr string `json:"group_addr"`
	Port      int    `json:"port"`
}

type TimeoutConfig struct {
	CplaneOperation Duration `json:"cplane_operation"`
	RetransmitTTL   Duration `json:"retransmit_ttl"` // retransmit-request coalescing window (nominal 400ms)
	BackoffMax      Duration `json:"backoff_max"`    // adaptive send backoff ceiling (nominal 80ms)
}

// Duration wraps time.Duration for human-readable JSON ("1s", "5s").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Membership: MembershipConfig{
			PingPeriod:  Duration(time.Second),
			PingTimeout: Duration(5 * time.Second),
		},
		Multicast: MulticastConfig{
			GroupAddr: "239.0.0.1",
			Port:      5862,
		},
		Timeout: TimeoutConfig{
			CplaneOperation: Duration(2 * time.Second),
			RetransmitTTL:   Duration(400 * time.Millisecond),
			BackoffMax:      Duration(80 * time.Millisecond),
		},
	}
}

func (c *Config) Validate() error {
	if c.Membership.PingTimeout.D() <= c.Membership.PingPeriod.D() {
		return fmt.Errorf("ping timeout (%s) must exceed ping period (%s)",
			c.Membership.PingTimeout.D(), c.Membership.PingPeriod.D())
	}
	if c.Incarnation == 0 {
		return fmt.Errorf("incarnation must be nonzero")
	}
	return nil
}

// ConfigToUpdate is a sparse set of dotted key=value overrides, the
// same "-config_custom" idiom aistore's daemon.go applies at
// startup (cmn.ConfigToUpdate.FillFromKVS).
type ConfigToUpdate struct {
	kvs map[string]string
}

func (c *ConfigToUpdate) FillFromKVS(kvs []string) error {
	c.kvs = make(map[string]string, len(kvs))
	for _, kv := range kvs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid key=value override: %q", kv)
		}
		c.kvs[parts[0]] = parts[1]
	}
	return nil
}

// Apply mutates a subset of well-known fields; unknown keys are
// rejected rather than silently ignored.
func (c *ConfigToUpdate) Apply(cfg *Config) error {
	for k, v := range c.kvs {
		switch k {
		case "membership.ping_period":
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			cfg.Membership.PingPeriod = Duration(d)
		case "membership.ping_timeout":
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			cfg.Membership.PingTimeout = Duration(d)
		case "multicast.group_addr":
			cfg.Multicast.GroupAddr = v
		case "multicast.port":
			p, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			cfg.Multicast.Port = p
		default:
			return fmt.Errorf("unknown config key %q", k)
		}
	}
	return nil
}

// GlobalConfigOwner is aistore's GCO idiom (cmn.GCO in
// aistore/cmn/config.go): a process-wide atomic pointer so every
// goroutine reads a consistent, immutable snapshot without locking.
type GlobalConfigOwner struct {
	ptr   atomic.Value
	mu    sync.Mutex
	chans []chan struct{}
}

var GCO = &GlobalConfigOwner{}

func (o *GlobalConfigOwner) Get() *Config {
	v := o.ptr.Load()
	if v == nil {
		return DefaultConfig()
	}
	return v.(*Config)
}

func (o *GlobalConfigOwner) Put(c *Config) {
	o.ptr.Store(c)
	o.mu.Lock()
	for _, ch := range o.chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	o.mu.Unlock()
}

func (o *GlobalConfigOwner) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	o.mu.Lock()
	o.chans = append(o.chans, ch)
	o.mu.Unlock()
	return ch
}

// LoadConfig reads a JSON config document from disk, applies defaults
// for anything unset, and validates it (aistore's cmn.LoadConfig).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	cfg.ConfigDir = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
