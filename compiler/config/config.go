package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"tlog.app/go/errors"
)

type (
	Config struct {
		Target string `toml:"target"`
		Entry  string `toml:"entry"`
		Output string `toml:"output"`

		// MaxSteps bounds TAC evaluation in mjc run, 0 means no limit.
		MaxSteps int `toml:"max_steps"`

		Dump Dump `toml:"dump"`
		Log  Log  `toml:"log"`
	}

	Dump struct {
		AST bool `toml:"ast"`
		TAC bool `toml:"tac"`
	}

	Log struct {
		Verbosity string `toml:"verbosity"`
	}
)

const FileName = "mjc.toml"

var Targets = []string{"nasm", "llvm"}

var ErrConfig = errors.New("bad config")

func Default() *Config {
	return &Config{
		Target: "nasm",
		Entry:  "main",
	}
}

// Load reads path over the defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	err = c.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "%v", path)
	}

	return c, nil
}

// Decode overrides fields present in data.
func (c *Config) Decode(data []byte) error {
	err := toml.Unmarshal(data, c)
	if err != nil {
		return errors.Wrap(err, "decode toml")
	}

	return c.Validate()
}

func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode toml")
	}

	return data, nil
}

func (c *Config) Validate() error {
	ok := false

	for _, t := range Targets {
		ok = ok || t == c.Target
	}

	if !ok {
		return errors.Wrap(ErrConfig, "unknown target %q (want one of %v)", c.Target, Targets)
	}

	if c.Entry == "" {
		return errors.Wrap(ErrConfig, "empty entry name")
	}

	if c.MaxSteps < 0 {
		return errors.Wrap(ErrConfig, "negative max_steps %d", c.MaxSteps)
	}

	return nil
}
