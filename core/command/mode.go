package command

import "squid-go/domain/channel"

// SetMicroscopeMode activates a named channel configuration.
type SetMicroscopeMode struct {
	hwCommand
	Channel string
}

func NewSetMicroscopeMode(name string) SetMicroscopeMode {
	return SetMicroscopeMode{hwCommand: stampedHW(), Channel: name}
}

func (SetMicroscopeMode) EventName() string { return "SetMicroscopeMode" }

// UpdateChannelConfigs replaces the available channel configurations.
type UpdateChannelConfigs struct {
	base
	Configs []channel.Config
}

func NewUpdateChannelConfigs(configs []channel.Config) UpdateChannelConfigs {
	return UpdateChannelConfigs{base: stamped(), Configs: append([]channel.Config(nil), configs...)}
}

func (UpdateChannelConfigs) EventName() string { return "UpdateChannelConfigs" }

// SetObjective selects the active objective by name.
type SetObjective struct {
	base
	Name string
}

func NewSetObjective(name string) SetObjective {
	return SetObjective{base: stamped(), Name: name}
}

func (SetObjective) EventName() string { return "SetObjective" }

// SetFilterAutoSwitch toggles automatic filter selection on mode changes.
type SetFilterAutoSwitch struct {
	base
	Enabled bool
}

func NewSetFilterAutoSwitch(enabled bool) SetFilterAutoSwitch {
	return SetFilterAutoSwitch{base: stamped(), Enabled: enabled}
}

func (SetFilterAutoSwitch) EventName() string { return "SetFilterAutoSwitch" }

// StartLive starts live preview, optionally switching to a channel first.
type StartLive struct {
	base
	Channel string
}

func NewStartLive(channel string) StartLive {
	return StartLive{base: stamped(), Channel: channel}
}

func (StartLive) EventName() string { return "StartLive" }

// StopLive stops live preview.
type StopLive struct {
	base
}

func NewStopLive() StopLive { return StopLive{base: stamped()} }

func (StopLive) EventName() string { return "StopLive" }
