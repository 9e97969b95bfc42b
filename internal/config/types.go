// =================================================================================
//
//			split51 - rear-channel loopback router
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package config holds the persisted and runtime shape of split51's
// settings, and the TOML load/save machinery for config.toml.
package config

// ChannelSource selects which input channel (or synthesized signal)
// feeds one side of the stereo output.
type ChannelSource string

const (
	SourceFL      ChannelSource = "FL"
	SourceFR      ChannelSource = "FR"
	SourceFC      ChannelSource = "FC"
	SourceLFE     ChannelSource = "LFE"
	SourceRL      ChannelSource = "RL"
	SourceRR      ChannelSource = "RR"
	SourceSL      ChannelSource = "SL"
	SourceSR      ChannelSource = "SR"
	SourceMix     ChannelSource = "MIX"     // Mix(FL+FR)
	SourceSilence ChannelSource = "SILENCE"
)

// channelIndex4 is the 4-channel frame layout: FL,FR,RL,RR.
var channelIndex4 = map[ChannelSource]int{
	SourceFL: 0,
	SourceFR: 1,
	SourceRL: 2,
	SourceRR: 3,
}

// channelIndex6 is the 5.1 frame layout: FL,FR,FC,LFE,RL,RR.
var channelIndex6 = map[ChannelSource]int{
	SourceFL:  0,
	SourceFR:  1,
	SourceFC:  2,
	SourceLFE: 3,
	SourceRL:  4,
	SourceRR:  5,
}

// channelIndex8 is the 7.1 frame layout: FL,FR,FC,LFE,RL,RR,SL,SR.
var channelIndex8 = map[ChannelSource]int{
	SourceFL:  0,
	SourceFR:  1,
	SourceFC:  2,
	SourceLFE: 3,
	SourceRL:  4,
	SourceRR:  5,
	SourceSL:  6,
	SourceSR:  7,
}

// Index returns the frame position for a fixed-index source within a
// frame of the given channel count, and true, or (0, false) for
// Mix/Silence (which have no fixed position) or a source the layout
// doesn't carry (e.g. SL/SR below 7.1).
func (s ChannelSource) Index(channels int) (int, bool) {
	var table map[ChannelSource]int
	switch {
	case channels >= 8:
		table = channelIndex8
	case channels >= 6:
		table = channelIndex6
	default:
		table = channelIndex4
	}
	idx, ok := table[s]
	return idx, ok
}

// Valid reports whether s is one of the closed set of known sources.
func (s ChannelSource) Valid() bool {
	switch s {
	case SourceFL, SourceFR, SourceFC, SourceLFE, SourceRL, SourceRR, SourceSL, SourceSR, SourceMix, SourceSilence:
		return true
	default:
		return false
	}
}

// EQConfig is the per-channel 3-band equalizer: low shelf, mid peak,
// high shelf. Frequencies and the mid band's Q carry documented
// defaults and are not persisted in config.toml; only gains are.
type EQConfig struct {
	LowFreq    float64
	LowGainDB  float64
	MidFreq    float64
	MidGainDB  float64
	MidQ       float64
	HighFreq   float64
	HighGainDB float64
}

// DefaultEQConfig returns a flat EQ at the documented band centers.
func DefaultEQConfig() EQConfig {
	return EQConfig{
		LowFreq:    200.0,
		LowGainDB:  0.0,
		MidFreq:    1000.0,
		MidGainDB:  0.0,
		MidQ:       1.0,
		HighFreq:   6000.0,
		HighGainDB: 0.0,
	}
}

// ChannelConfig is the per-output-side (left or right) configuration.
type ChannelConfig struct {
	Source  ChannelSource
	Volume  float64 // [0.0, 2.0]
	Muted   bool
	DelayMs float64 // [0, 200]
	EQ      EQConfig
}

// DefaultLeftChannel matches the documented default: left drawn from RL.
func DefaultLeftChannel() ChannelConfig {
	return ChannelConfig{Source: SourceRL, Volume: 1.0, EQ: DefaultEQConfig()}
}

// DefaultRightChannel matches the documented default: right drawn from RR.
func DefaultRightChannel() ChannelConfig {
	return ChannelConfig{Source: SourceRR, Volume: 1.0, EQ: DefaultEQConfig()}
}

// GlobalConfig is the master routing configuration.
type GlobalConfig struct {
	SourceDevice string
	TargetDevice string
	Volume       float64 // [0.0, 2.0]
	Balance      float64 // [-1.0, 1.0]
	SwapChannels bool
	Enabled      bool
	UpmixAmount  float64 // [0.0, 1.0]

	Left  ChannelConfig
	Right ChannelConfig
}

// Default returns the documented defaults for a fresh install.
func Default() GlobalConfig {
	return GlobalConfig{
		Volume:       1.0,
		Balance:      0.0,
		SwapChannels: false,
		Enabled:      false,
		UpmixAmount:  0.0,
		Left:         DefaultLeftChannel(),
		Right:        DefaultRightChannel(),
	}
}

// Clamp enforces the ranges documented in spec.md §3 in place, used both
// after loading from disk and before accepting a control-thread update.
func (g *GlobalConfig) Clamp() {
	g.Volume = clamp(g.Volume, 0.0, 2.0)
	g.Balance = clamp(g.Balance, -1.0, 1.0)
	g.UpmixAmount = clamp(g.UpmixAmount, 0.0, 1.0)
	g.Left.clamp()
	g.Right.clamp()
}

func (c *ChannelConfig) clamp() {
	c.Volume = clamp(c.Volume, 0.0, 2.0)
	c.DelayMs = clamp(c.DelayMs, 0.0, 200.0)
	c.EQ.LowGainDB = clamp(c.EQ.LowGainDB, -12.0, 12.0)
	c.EQ.MidGainDB = clamp(c.EQ.MidGainDB, -12.0, 12.0)
	c.EQ.HighGainDB = clamp(c.EQ.HighGainDB, -12.0, 12.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
