// Package resources embeds the default channel configurations and
// acquisition templates shipped with squid.
package resources

import "embed"

// ChannelsFile is the path of the channel definitions inside Files.
const ChannelsFile = "channels.yaml"

// PlansDir is the directory of acquisition templates inside Files.
const PlansDir = "plans"

//go:embed channels.yaml plans/*.yaml
var Files embed.FS
