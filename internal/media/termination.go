// Package media implements the media-plane composition graph: the
// termination/context/topology model of §4.7 and the media engine
// composite task of §4.10 that ticks it at frame cadence.
package media

import "firestige.xyz/mrcpd/internal/audio"

// Termination is one endpoint a context can hold: a named slot backed
// by a negotiated audio stream (an RTP leg, a file player, a
// resource-engine source or sink).
type Termination struct {
	Name   string
	Stream *audio.Stream
}
