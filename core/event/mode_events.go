package event

import "squid-go/core/state"

// MicroscopeModeChanged is published once a channel configuration has been
// fully applied to camera, illumination and filter.
type MicroscopeModeChanged struct {
	Meta
	Channel string
}

func NewMicroscopeModeChanged(channel string) MicroscopeModeChanged {
	return MicroscopeModeChanged{Meta: Stamp(), Channel: channel}
}

func (MicroscopeModeChanged) EventName() string { return "MicroscopeModeChanged" }

// ChannelConfigurationsChanged is published when the channel set is replaced.
type ChannelConfigurationsChanged struct {
	Meta
	Names []string
}

func NewChannelConfigurationsChanged(names []string) ChannelConfigurationsChanged {
	return ChannelConfigurationsChanged{Meta: Stamp(), Names: append([]string(nil), names...)}
}

func (ChannelConfigurationsChanged) EventName() string { return "ChannelConfigurationsChanged" }

// GlobalModeChanged is published on every operating mode transition.
type GlobalModeChanged struct {
	Meta
	OldMode state.GlobalMode
	NewMode state.GlobalMode
	Reason  string
}

func NewGlobalModeChanged(oldMode, newMode state.GlobalMode, reason string) GlobalModeChanged {
	return GlobalModeChanged{Meta: Stamp(), OldMode: oldMode, NewMode: newMode, Reason: reason}
}

func (GlobalModeChanged) EventName() string { return "GlobalModeChanged" }

// LiveStateChanged is published when live preview starts or stops.
type LiveStateChanged struct {
	Meta
	Live    bool
	Channel string
}

func NewLiveStateChanged(live bool, channel string) LiveStateChanged {
	return LiveStateChanged{Meta: Stamp(), Live: live, Channel: channel}
}

func (LiveStateChanged) EventName() string { return "LiveStateChanged" }

// ObjectiveChanged is published when a new objective is selected.
type ObjectiveChanged struct {
	Meta
	Name          string
	Magnification float64
}

func NewObjectiveChanged(name string, magnification float64) ObjectiveChanged {
	return ObjectiveChanged{Meta: Stamp(), Name: name, Magnification: magnification}
}

func (ObjectiveChanged) EventName() string { return "ObjectiveChanged" }

// PixelSizeChanged is published when the effective sample-plane pixel size changes.
type PixelSizeChanged struct {
	Meta
	PixelSizeUm float64
}

func NewPixelSizeChanged(um float64) PixelSizeChanged {
	return PixelSizeChanged{Meta: Stamp(), PixelSizeUm: um}
}

func (PixelSizeChanged) EventName() string { return "PixelSizeChanged" }

// FilterAutoSwitchChanged is published when automatic filter selection is toggled.
type FilterAutoSwitchChanged struct {
	Meta
	Enabled bool
}

func NewFilterAutoSwitchChanged(enabled bool) FilterAutoSwitchChanged {
	return FilterAutoSwitchChanged{Meta: Stamp(), Enabled: enabled}
}

func (FilterAutoSwitchChanged) EventName() string { return "FilterAutoSwitchChanged" }
