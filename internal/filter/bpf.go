// Package filter selects frames with a classic BPF program executed in userspace.
package filter

import (
	"fmt"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/dissect/internal/core"
)

// Config describes which frames to keep. The zero value keeps everything.
type Config struct {
	Protocol string // "", "tcp", "udp" or "icmp"
	Port     uint16 // 0 = any; matches source or destination port
}

// Filter matches raw Ethernet frames.
type Filter struct {
	prog []bpf.Instruction
	vm   *bpf.VM
}

const (
	acceptLen = 0xFFFF

	// Offsets into an untagged Ethernet II frame
	offEtherType  = 12
	offIPv4       = 14
	offIPProtocol = offIPv4 + 9
	offIPFlags    = offIPv4 + 6
)

type label int

const (
	labelNext label = iota
	labelAccept
	labelDrop
)

// assembler resolves forward jumps to the shared accept/drop returns.
type assembler struct {
	prog  []bpf.Instruction
	jumps []pendingJump
}

type pendingJump struct {
	index           int
	onTrue, onFalse label
}

func (a *assembler) emit(ins ...bpf.Instruction) {
	a.prog = append(a.prog, ins...)
}

func (a *assembler) jump(cond bpf.JumpTest, val uint32, onTrue, onFalse label) {
	a.jumps = append(a.jumps, pendingJump{index: len(a.prog), onTrue: onTrue, onFalse: onFalse})
	a.emit(bpf.JumpIf{Cond: cond, Val: val})
}

func (a *assembler) finish() ([]bpf.Instruction, error) {
	accept := len(a.prog)
	drop := accept + 1
	a.emit(bpf.RetConstant{Val: acceptLen}, bpf.RetConstant{Val: 0})

	resolve := func(from int, l label) (uint8, error) {
		target := from + 1
		switch l {
		case labelAccept:
			target = accept
		case labelDrop:
			target = drop
		}
		skip := target - (from + 1)
		if skip < 0 || skip > 0xFF {
			return 0, fmt.Errorf("jump out of range: %d", skip)
		}
		return uint8(skip), nil
	}

	for _, j := range a.jumps {
		ins := a.prog[j.index].(bpf.JumpIf)
		var err error
		if ins.SkipTrue, err = resolve(j.index, j.onTrue); err != nil {
			return nil, err
		}
		if ins.SkipFalse, err = resolve(j.index, j.onFalse); err != nil {
			return nil, err
		}
		a.prog[j.index] = ins
	}
	return a.prog, nil
}

func protocolNumber(name string) (uint8, error) {
	switch strings.ToLower(name) {
	case "":
		return 0, nil
	case "icmp":
		return core.ProtocolICMP, nil
	case "tcp":
		return core.ProtocolTCP, nil
	case "udp":
		return core.ProtocolUDP, nil
	default:
		return 0, fmt.Errorf("%w: unsupported filter protocol %q", core.ErrConfigInvalid, name)
	}
}

// Compile builds the BPF program for cfg.
func Compile(cfg Config) ([]bpf.Instruction, error) {
	proto, err := protocolNumber(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	if cfg.Port != 0 && proto == core.ProtocolICMP {
		return nil, fmt.Errorf("%w: icmp has no ports", core.ErrConfigInvalid)
	}

	a := &assembler{}

	// IPv4 only
	a.emit(bpf.LoadAbsolute{Off: offEtherType, Size: 2})
	a.jump(bpf.JumpEqual, uint32(core.EtherTypeIPv4), labelNext, labelDrop)

	switch {
	case proto != 0:
		a.emit(bpf.LoadAbsolute{Off: offIPProtocol, Size: 1})
		a.jump(bpf.JumpEqual, uint32(proto), labelNext, labelDrop)
	case cfg.Port != 0:
		// Any protocol that carries ports
		a.emit(bpf.LoadAbsolute{Off: offIPProtocol, Size: 1})
		a.emit(bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(core.ProtocolTCP), SkipTrue: 1})
		a.jump(bpf.JumpEqual, uint32(core.ProtocolUDP), labelNext, labelDrop)
	}

	if cfg.Port == 0 {
		return a.finish()
	}

	// Non-first fragments carry no transport header
	a.emit(bpf.LoadAbsolute{Off: offIPFlags, Size: 2})
	a.jump(bpf.JumpBitsSet, 0x1FFF, labelDrop, labelNext)

	// X = IHL*4
	a.emit(bpf.LoadMemShift{Off: offIPv4})
	a.emit(bpf.LoadIndirect{Off: offIPv4, Size: 2})
	a.jump(bpf.JumpEqual, uint32(cfg.Port), labelAccept, labelNext)
	a.emit(bpf.LoadIndirect{Off: offIPv4 + 2, Size: 2})
	a.jump(bpf.JumpEqual, uint32(cfg.Port), labelAccept, labelDrop)

	return a.finish()
}

// New compiles cfg into a Filter. A zero Config yields a filter that keeps every frame.
func New(cfg Config) (*Filter, error) {
	if cfg.Protocol == "" && cfg.Port == 0 {
		return &Filter{}, nil
	}

	prog, err := Compile(cfg)
	if err != nil {
		return nil, err
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("%w: bpf program rejected: %w", core.ErrConfigInvalid, err)
	}
	return &Filter{prog: prog, vm: vm}, nil
}

// Match reports whether frame passes the filter. Frames too short for a
// load are dropped by the VM.
func (f *Filter) Match(frame []byte) bool {
	if f.vm == nil {
		return true
	}
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}

// Program returns the compiled instructions, nil for a pass-all filter.
func (f *Filter) Program() []bpf.Instruction {
	return f.prog
}
