package core

import "pkt.systems/tabstack/schema"

// Presenter renders the intents emitted by the stack controller.
type Presenter interface {
	OnIndicator(event schema.IndicatorEvent)
	OnWindowTitle(event schema.TitleEvent)
	OnNotice(event schema.NoticeEvent)
	OnMembership(event schema.MembershipEvent)
}

type nopPresenter struct{}

func (nopPresenter) OnIndicator(schema.IndicatorEvent)   {}
func (nopPresenter) OnWindowTitle(schema.TitleEvent)     {}
func (nopPresenter) OnNotice(schema.NoticeEvent)         {}
func (nopPresenter) OnMembership(schema.MembershipEvent) {}
