package tabstack

import (
	"pkt.systems/tabstack/core"
	"pkt.systems/tabstack/schema"
)

type presenterFanout struct {
	sinks []core.Presenter
}

func (f presenterFanout) OnIndicator(event schema.IndicatorEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnIndicator(event)
	}
}

func (f presenterFanout) OnWindowTitle(event schema.TitleEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnWindowTitle(event)
	}
}

func (f presenterFanout) OnNotice(event schema.NoticeEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnNotice(event)
	}
}

func (f presenterFanout) OnMembership(event schema.MembershipEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnMembership(event)
	}
}
