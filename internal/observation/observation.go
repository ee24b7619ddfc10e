// Package observation flattens decoded frames into one record per packet.
package observation

import (
	"fmt"
	"time"

	"firestige.xyz/dissect/internal/core"
)

// Protocol names used in observations.
const (
	ProtocolTCP  = "TCP"
	ProtocolUDP  = "UDP"
	ProtocolICMP = "ICMP"
)

// Observation is the flat view of one IPv4 TCP/UDP/ICMP frame.
// Ports are nil for ICMP.
type Observation struct {
	Timestamp time.Time `mapstructure:"timestamp" json:"timestamp" yaml:"timestamp"`
	SrcIP     string    `mapstructure:"src_ip" json:"src_ip" yaml:"src_ip"`
	DstIP     string    `mapstructure:"dst_ip" json:"dst_ip" yaml:"dst_ip"`
	Protocol  string    `mapstructure:"protocol" json:"protocol" yaml:"protocol"`
	SrcPort   *uint16   `mapstructure:"src_port,omitempty" json:"src_port" yaml:"src_port"`
	DstPort   *uint16   `mapstructure:"dst_port,omitempty" json:"dst_port" yaml:"dst_port"`
	Flags     string    `mapstructure:"flags" json:"flags" yaml:"flags"`
	Length    int       `mapstructure:"length" json:"length" yaml:"length"`
}

// FromFrame builds an Observation. It reports false for frames that are not
// IPv4 or whose transport is not TCP, UDP or ICMP.
func FromFrame(frame core.DecodedFrame, ts time.Time) (Observation, bool) {
	if frame.IPv4 == nil || frame.Transport == nil {
		return Observation{}, false
	}

	obs := Observation{
		Timestamp: ts,
		SrcIP:     frame.IPv4.SrcIP.String(),
		DstIP:     frame.IPv4.DstIP.String(),
		Length:    frame.Length,
	}

	switch t := frame.Transport.(type) {
	case *core.TCPSegment:
		obs.Protocol = ProtocolTCP
		obs.SrcPort, obs.DstPort = port(t.SrcPort), port(t.DstPort)
		obs.Flags = t.Flags().String()
	case *core.UDPDatagram:
		obs.Protocol = ProtocolUDP
		obs.SrcPort, obs.DstPort = port(t.SrcPort), port(t.DstPort)
	case *core.ICMPMessage:
		obs.Protocol = ProtocolICMP
		obs.Flags = fmt.Sprintf("TYPE_%d", t.Type)
	default:
		return Observation{}, false
	}
	return obs, true
}

func port(p uint16) *uint16 {
	return &p
}
