// Package config resolves CLI settings from flags and environment via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings holds the resolved configuration for a run.
type Settings struct {
	ServerURL    string
	PrivateToken string
	Delay        time.Duration
	Timeout      time.Duration
	NoSSLVerify  bool
	LogFile      string
	NoColor      bool
	ReportFile   string
}

// Bind wires persistent flags into viper with GITLAB_* environment
// fallbacks, so e.g. GITLAB_PRIVATE_TOKEN works without the flag.
func Bind(flags *pflag.FlagSet) error {
	viper.SetEnvPrefix("gitlab")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{"server-url", "private-token", "delay", "timeout", "no-ssl-verify", "logfile", "no-color", "report"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the bound values into a Settings and validates them.
func Load() (*Settings, error) {
	s := &Settings{
		ServerURL:    strings.TrimSuffix(viper.GetString("server-url"), "/"),
		PrivateToken: viper.GetString("private-token"),
		Delay:        time.Duration(viper.GetFloat64("delay") * float64(time.Second)),
		Timeout:      time.Duration(viper.GetFloat64("timeout") * float64(time.Second)),
		NoSSLVerify:  viper.GetBool("no-ssl-verify"),
		LogFile:      viper.GetString("logfile"),
		NoColor:      viper.GetBool("no-color"),
		ReportFile:   viper.GetString("report"),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks required fields and value ranges.
func (s *Settings) Validate() error {
	if s.ServerURL == "" {
		return errors.New("server URL is required (--server-url or GITLAB_SERVER_URL)")
	}
	if s.PrivateToken == "" {
		return errors.New("private token is required (--private-token or GITLAB_PRIVATE_TOKEN)")
	}
	// Status polling must not hammer the instance.
	if s.Delay < time.Second {
		return fmt.Errorf("delay must be at least 1 second, got %s", s.Delay)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", s.Timeout)
	}
	return nil
}
