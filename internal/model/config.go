package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ProviderConfig selects one provider and model for a single pipeline stage
// (STT, LLM or TTS).
type ProviderConfig struct {
	Provider string            `json:"provider" yaml:"provider"`
	Model    string            `json:"model" yaml:"model"`
	Options  map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

func (p ProviderConfig) String() string {
	if p.Model == "" {
		return p.Provider
	}
	return p.Provider + "/" + p.Model
}

// canonical returns a stable textual form used for configuration hashing.
// Option keys are sorted so that map iteration order never changes the hash.
func (p ProviderConfig) canonical() string {
	var b strings.Builder
	b.WriteString(p.Provider)
	b.WriteByte('|')
	b.WriteString(p.Model)
	keys := make([]string, 0, len(p.Options))
	for k := range p.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Options[k])
	}
	return b.String()
}

// NetworkProfile describes the simulated network conditions a test
// configuration runs under.
type NetworkProfile struct {
	Name           string  `json:"name" yaml:"name"`
	BandwidthKbps  int     `json:"bandwidthKbps" yaml:"bandwidth_kbps"`
	AddedLatencyMs float64 `json:"addedLatencyMs" yaml:"added_latency_ms"`
	PacketLossPct  float64 `json:"packetLossPct" yaml:"packet_loss_pct"`
}

// Common network profiles used by the built-in suites.
var (
	NetworkUnconstrained = NetworkProfile{Name: "unconstrained"}
	NetworkWiFi          = NetworkProfile{Name: "wifi", BandwidthKbps: 50000, AddedLatencyMs: 10}
	NetworkLTE           = NetworkProfile{Name: "lte", BandwidthKbps: 12000, AddedLatencyMs: 50, PacketLossPct: 0.5}
	Network3G            = NetworkProfile{Name: "3g", BandwidthKbps: 1500, AddedLatencyMs: 150, PacketLossPct: 2}
)

// TestConfiguration is an immutable selection of one provider/model per
// pipeline stage plus a network profile. Its identity is a structural hash of
// its fields, used as the grouping key for aggregation and baselines.
type TestConfiguration struct {
	STT     ProviderConfig `json:"stt"`
	LLM     ProviderConfig `json:"llm"`
	TTS     ProviderConfig `json:"tts"`
	Network NetworkProfile `json:"network"`
}

// ID returns the structural hash identifying this configuration. Two
// configurations with identical fields always produce the same ID.
func (c TestConfiguration) ID() string {
	canonical := fmt.Sprintf("stt:%s;llm:%s;tts:%s;net:%s/%d/%g/%g",
		c.STT.canonical(), c.LLM.canonical(), c.TTS.canonical(),
		c.Network.Name, c.Network.BandwidthKbps, c.Network.AddedLatencyMs, c.Network.PacketLossPct)
	sum := sha256.Sum256([]byte(canonical))
	return "cfg-" + hex.EncodeToString(sum[:6])
}

// Label returns a short human-readable description for logs and reports.
func (c TestConfiguration) Label() string {
	return fmt.Sprintf("%s + %s + %s (%s)", c.STT, c.LLM, c.TTS, c.Network.Name)
}
