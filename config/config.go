// Package config loads the TOML configuration that tunes the object store,
// pack generator, merge engine, ref resolver, and wire protocol limits.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML decoding of strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// ObjectStore tunes storage/loose and storage's object cache.
type ObjectStore struct {
	CacheCapacity      int64 `toml:"cache_capacity,omitempty"`
	MaxDeltaChainDepth int   `toml:"max_delta_chain_depth,omitempty"`
}

// PackGenerator tunes storage/pack's writer.
type PackGenerator struct {
	WindowSize       int  `toml:"window_size,omitempty"`
	MinDeltaSize     int  `toml:"min_delta_size,omitempty"`
	UseRefDelta      bool `toml:"use_ref_delta,omitempty"`
	CompressionLevel int  `toml:"compression_level,omitempty"`
}

// Merge tunes merge.Config defaults.
type Merge struct {
	AllowFastForward bool   `toml:"allow_fast_forward"`
	FastForwardOnly  bool   `toml:"fast_forward_only,omitempty"`
	ConflictStrategy string `toml:"conflict_strategy,omitempty"` // ours | theirs | manual
	AutoResolve      bool   `toml:"auto_resolve,omitempty"`
}

// RefResolver tunes symbolic reference resolution depth.
type RefResolver struct {
	MaxDepth int `toml:"max_depth,omitempty"`
}

// Wire tunes the transport package's negotiation limits.
type Wire struct {
	MaxRounds         int      `toml:"max_rounds,omitempty"`
	MaxWants          int      `toml:"max_wants,omitempty"`
	MaxHaves          int      `toml:"max_haves,omitempty"`
	MaxCapabilities   int      `toml:"max_capabilities,omitempty"`
	MaxRefNameLength  int      `toml:"max_ref_name_length,omitempty"`
	Timeout           Duration `toml:"timeout,omitempty"`
}

// Server is the listen address and JWT signing material for cmd/gitcored's
// smart-HTTP endpoint.
type Server struct {
	Listen       string   `toml:"listen"`
	JWTSecret    string   `toml:"jwt_secret,omitempty"`
	ReadTimeout  Duration `toml:"read_timeout,omitempty"`
	WriteTimeout Duration `toml:"write_timeout,omitempty"`
}

type Config struct {
	ObjectStore   ObjectStore   `toml:"object_store"`
	PackGenerator PackGenerator `toml:"pack_generator"`
	Merge         Merge         `toml:"merge"`
	RefResolver   RefResolver   `toml:"ref_resolver"`
	Wire          Wire          `toml:"wire"`
	Server        Server        `toml:"server"`
}

// Default returns sensible defaults: a 50-deep delta chain, a window size
// of 10, compression level 6, fast-forward-preferring merges, and a
// 100-hop symbolic ref limit.
func Default() *Config {
	return &Config{
		ObjectStore: ObjectStore{
			MaxDeltaChainDepth: 50,
		},
		PackGenerator: PackGenerator{
			WindowSize:       10,
			CompressionLevel: 6,
		},
		Merge: Merge{
			AllowFastForward: true,
			ConflictStrategy: "manual",
		},
		RefResolver: RefResolver{
			MaxDepth: 100,
		},
		Wire: Wire{
			MaxRounds:        64,
			MaxWants:         256,
			MaxHaves:         256,
			MaxCapabilities:  64,
			MaxRefNameLength: 1024,
			Timeout:          Duration{Duration: 2 * time.Minute},
		},
		Server: Server{
			Listen:       "127.0.0.1:9418",
			ReadTimeout:  Duration{Duration: 2 * time.Hour},
			WriteTimeout: Duration{Duration: 2 * time.Hour},
		},
	}
}

// Load reads file as TOML into Default(), optionally expanding ${VAR}
// references against the process environment before decoding.
func Load(file string, expandEnv bool) (*Config, error) {
	r, err := newExpandReader(file, expandEnv)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newExpandReader(file string, expandEnv bool) (io.ReadCloser, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	if !expandEnv {
		return fd, nil
	}
	defer fd.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(fd); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(os.ExpandEnv(buf.String()))), nil
}
