package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/tabstack/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int                `mapstructure:"config_version" yaml:"config_version"`
	HTTP          HTTPConfig         `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig          `mapstructure:"ssh" yaml:"ssh"`
	Bridge        BridgeConfig       `mapstructure:"bridge" yaml:"bridge"`
	Presentation  PresentationConfig `mapstructure:"presentation" yaml:"presentation"`
	Logging       LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	BasePath   string `mapstructure:"base_path" yaml:"base_path"`
	HubHistory int    `mapstructure:"hub_history" yaml:"hub_history"`
}

// SSHConfig configures the operator console.
type SSHConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
}

// BridgeConfig configures the browser bridge endpoint.
type BridgeConfig struct {
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	AllowedOrigins        []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// RequestTimeout returns the per-call bridge timeout. Zero selects the bridge default.
func (b BridgeConfig) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutSeconds) * time.Second
}

// PresentationConfig controls notices and window title prefixes.
type PresentationConfig struct {
	NoticeTitle   string `mapstructure:"notice_title" yaml:"notice_title"`
	HostTitleTag  string `mapstructure:"host_title_tag" yaml:"host_title_tag"`
	GuestTitleTag string `mapstructure:"guest_title_tag" yaml:"guest_title_tag"`
	Notices       bool   `mapstructure:"notices" yaml:"notices"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// ControllerConfig converts the presentation section for the stack controller.
func (p PresentationConfig) ControllerConfig() schema.ControllerConfig {
	return schema.NormalizeControllerConfig(schema.ControllerConfig{
		NoticeTitle:    p.NoticeTitle,
		HostTitleTag:   p.HostTitleTag,
		GuestTitleTag:  p.GuestTitleTag,
		DisableNotices: !p.Notices,
	})
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		HTTP: HTTPConfig{
			Addr:       "127.0.0.1:27490",
			BasePath:   "",
			HubHistory: 512,
		},
		SSH: SSHConfig{
			Enabled:            false,
			Addr:               "127.0.0.1:27422",
			HostKeyPath:        filepath.Join(home, ".tabstack", "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".ssh", "authorized_keys"),
		},
		Bridge: BridgeConfig{
			RequestTimeoutSeconds: 5,
			AllowedOrigins:        []string{},
		},
		Presentation: PresentationConfig{
			NoticeTitle:   schema.DefaultNoticeTitle,
			HostTitleTag:  schema.DefaultHostTitleTag,
			GuestTitleTag: schema.DefaultGuestTitleTag,
			Notices:       true,
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabstack", "config.yaml"), nil
}
