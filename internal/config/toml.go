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
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// fileChannel is the on-disk shape of [left_channel] / [right_channel].
type fileChannel struct {
	Source  string   `toml:"source"`
	Volume  float64  `toml:"volume"`
	Muted   bool     `toml:"muted"`
	DelayMs *float64 `toml:"delay_ms,omitempty"`
	EQ      *fileEQ  `toml:"eq,omitempty"`
}

type fileEQ struct {
	LowGain  *float64 `toml:"low_gain,omitempty"`
	MidGain  *float64 `toml:"mid_gain,omitempty"`
	HighGain *float64 `toml:"high_gain,omitempty"`
}

// fileConfig is the on-disk shape of config.toml, per spec.md §6.
type fileConfig struct {
	SourceDevice string      `toml:"source_device"`
	TargetDevice string      `toml:"target_device"`
	Volume       float64     `toml:"volume"`
	Balance      float64     `toml:"balance"`
	Enabled      bool        `toml:"enabled"`
	SwapChannels bool        `toml:"swap_channels"`
	UpmixAmount  *float64    `toml:"upmix_amount,omitempty"`
	LeftChannel  fileChannel `toml:"left_channel"`
	RightChannel fileChannel `toml:"right_channel"`
}

func toFileChannel(c ChannelConfig) fileChannel {
	delay := c.DelayMs
	return fileChannel{
		Source:  string(c.Source),
		Volume:  c.Volume,
		Muted:   c.Muted,
		DelayMs: &delay,
		EQ: &fileEQ{
			LowGain:  &c.EQ.LowGainDB,
			MidGain:  &c.EQ.MidGainDB,
			HighGain: &c.EQ.HighGainDB,
		},
	}
}

func fromFileChannel(f fileChannel, fallback ChannelConfig) ChannelConfig {
	c := fallback
	if f.Source != "" {
		src := ChannelSource(f.Source)
		if src.Valid() {
			c.Source = src
		} else {
			slog.Warn("config: unknown channel source, keeping default", "source", f.Source)
		}
	}
	if f.Volume != 0 {
		c.Volume = f.Volume
	}
	c.Muted = f.Muted
	if f.DelayMs != nil {
		c.DelayMs = *f.DelayMs
	}
	if f.EQ != nil {
		if f.EQ.LowGain != nil {
			c.EQ.LowGainDB = *f.EQ.LowGain
		}
		if f.EQ.MidGain != nil {
			c.EQ.MidGainDB = *f.EQ.MidGain
		}
		if f.EQ.HighGain != nil {
			c.EQ.HighGainDB = *f.EQ.HighGain
		}
	}
	return c
}

// toFile converts the runtime config into its TOML-serializable shape.
func (g GlobalConfig) toFile() fileConfig {
	upmix := g.UpmixAmount
	return fileConfig{
		SourceDevice: g.SourceDevice,
		TargetDevice: g.TargetDevice,
		Volume:       g.Volume,
		Balance:      g.Balance,
		Enabled:      g.Enabled,
		SwapChannels: g.SwapChannels,
		UpmixAmount:  &upmix,
		LeftChannel:  toFileChannel(g.Left),
		RightChannel: toFileChannel(g.Right),
	}
}

func fromFile(f fileConfig) GlobalConfig {
	g := Default()
	g.SourceDevice = f.SourceDevice
	g.TargetDevice = f.TargetDevice
	if f.Volume != 0 {
		g.Volume = f.Volume
	}
	g.Balance = f.Balance
	g.Enabled = f.Enabled
	g.SwapChannels = f.SwapChannels
	if f.UpmixAmount != nil {
		g.UpmixAmount = *f.UpmixAmount
	}
	g.Left = fromFileChannel(f.LeftChannel, DefaultLeftChannel())
	g.Right = fromFileChannel(f.RightChannel, DefaultRightChannel())
	g.Clamp()
	return g
}

// knownTopLevelKeys is used to warn on unrecognized top-level keys in
// config.toml, per spec.md §6 ("Unknown keys ignored with a warning").
var knownTopLevelKeys = map[string]bool{
	"source_device": true, "target_device": true, "volume": true,
	"balance": true, "enabled": true, "swap_channels": true,
	"upmix_amount": true,
	"left_channel": true, "right_channel": true,
}

func warnUnknownKeys(raw []byte) {
	var generic map[string]any
	if err := toml.Unmarshal(raw, &generic); err != nil {
		return
	}
	for key := range generic {
		if !knownTopLevelKeys[key] {
			slog.Warn("config: unknown key ignored", "key", key)
		}
	}
}

// Load reads and parses path, returning Default() if the file does not
// exist. Parse errors are returned to the caller (ConfigParseError in
// spec.md §7 terms); the caller decides whether to fall back or abort.
func Load(path string) (GlobalConfig, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	warnUnknownKeys(raw)

	var f fileConfig
	if err := toml.Unmarshal(raw, &f); err != nil {
		return GlobalConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return fromFile(f), nil
}

// Save writes g to path atomically: write to path+".tmp", fsync, rename
// over the original, per spec.md §6.
func Save(path string, g GlobalConfig) error {
	raw, err := toml.Marshal(g.toFile())
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsyncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// DefaultPath returns config.toml next to the running executable, per
// spec.md §6. Adapted from the teacher's util.ReadYamlFile lookup, which
// also checked the working directory and ~/.config; spec.md calls for
// only the beside-the-executable rule, so that wider search is dropped.
func DefaultPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "config.toml"), nil
}
