package appconfig

import (
	"testing"

	"pkt.systems/tabstack/schema"
)

func TestDefaultConfigPresentation(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	ctrl := cfg.Presentation.ControllerConfig()
	if ctrl.DisableNotices {
		t.Fatalf("expected notices enabled by default")
	}
	if ctrl.HostTitleTag != schema.DefaultHostTitleTag || ctrl.GuestTitleTag != schema.DefaultGuestTitleTag {
		t.Fatalf("unexpected title tags %+v", ctrl)
	}
	if cfg.SSH.Enabled {
		t.Fatalf("expected ssh console disabled by default")
	}
}

func TestControllerConfigFillsBlankTags(t *testing.T) {
	ctrl := PresentationConfig{Notices: false}.ControllerConfig()
	if !ctrl.DisableNotices {
		t.Fatalf("expected notices disabled")
	}
	if ctrl.NoticeTitle != schema.DefaultNoticeTitle {
		t.Fatalf("expected default notice title, got %q", ctrl.NoticeTitle)
	}
}
