package schema

import "strings"

// ControllerConfig defines presentation defaults for the stack controller.
type ControllerConfig struct {
	NoticeTitle   string
	HostTitleTag  string
	GuestTitleTag string
	// DisableNotices suppresses transient notices. Errors are still returned.
	DisableNotices bool
}

const (
	// DefaultNoticeTitle is the title used for notices.
	DefaultNoticeTitle = "tabstack"
	// DefaultHostTitleTag prefixes window titles whose active tab hosts a stack.
	DefaultHostTitleTag = "Stack Top  :: "
	// DefaultGuestTitleTag prefixes window titles whose active tab is a guest.
	DefaultGuestTitleTag = "Stack Sub :: "
)

// NormalizeControllerConfig applies defaults.
func NormalizeControllerConfig(cfg ControllerConfig) ControllerConfig {
	if strings.TrimSpace(cfg.NoticeTitle) == "" {
		cfg.NoticeTitle = DefaultNoticeTitle
	}
	if cfg.HostTitleTag == "" {
		cfg.HostTitleTag = DefaultHostTitleTag
	}
	if cfg.GuestTitleTag == "" {
		cfg.GuestTitleTag = DefaultGuestTitleTag
	}
	return cfg
}

// Preface renders the title prefix for tag.
func (cfg ControllerConfig) Preface(tag TitleTag) string {
	switch tag {
	case TitleTagHost:
		return cfg.HostTitleTag
	case TitleTagGuest:
		return cfg.GuestTitleTag
	default:
		return ""
	}
}
