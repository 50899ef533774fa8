// SPDX-FileCopyrightText: 2025 The Pmugov Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const defaultUserAccessPath = "/proc/sys/kernel/perf_user_access"

// perfBank implements CounterBank on top of perf_event(2). The cycle counter
// is the group leader; each programmable slot is a raw-config event opened
// into the same group, pinned to the owning CPU. Counter fds are per-CPU, so
// unlike real coprocessor registers they may be read from any core.
type perfBank struct {
	logger *slog.Logger
	cpu    int

	userAccessPath string

	leader  int // cycle counter fd
	slots   map[Slot]int
	configs map[Slot]Event
	running bool
}

var _ CounterBank = (*perfBank)(nil)

// PerfOptFn is a functional option for configuring a perf-backed bank
type PerfOptFn func(*perfBank)

// WithPerfLogger sets the logger of the bank
func WithPerfLogger(l *slog.Logger) PerfOptFn {
	return func(b *perfBank) {
		b.logger = l.With("bank", b.Name(), "cpu", b.cpu)
	}
}

// WithUserAccessPath overrides the sysctl file consulted for user-mode
// counter access (for tests)
func WithUserAccessPath(path string) PerfOptFn {
	return func(b *perfBank) {
		b.userAccessPath = path
	}
}

// NewSystemBank opens a perf-event counter group on the given CPU.
func NewSystemBank(cpu int, opts ...PerfOptFn) (CounterBank, error) {
	bank := &perfBank{
		logger:         slog.Default().With("bank", "perf-bank", "cpu", cpu),
		cpu:            cpu,
		userAccessPath: defaultUserAccessPath,
		leader:         -1,
		slots:          map[Slot]int{},
		configs:        map[Slot]Event{},
	}
	for _, opt := range opts {
		opt(bank)
	}

	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Config: unix.PERF_COUNT_HW_CPU_CYCLES,
		Size:   attrSize,
		Bits:   unix.PerfBitDisabled,
	}
	fd, err := unix.PerfEventOpen(&attr, -1, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to open cycle counter on cpu %d: %w", cpu, err)
	}
	bank.leader = fd

	return bank, nil
}

// NewSystemBanks opens one perf-event bank per CPU.
func NewSystemBanks(cpus int, opts ...PerfOptFn) (BankProvider, error) {
	banks := make(Banks, cpus)
	for cpu := range banks {
		bank, err := NewSystemBank(cpu, opts...)
		if err != nil {
			return nil, err
		}
		banks[cpu] = bank
	}
	return banks, nil
}

func (b *perfBank) Name() string {
	return "perf-bank"
}

func (b *perfBank) Enable() {
	if err := unix.IoctlSetInt(b.leader, unix.PERF_EVENT_IOC_ENABLE, unix.PERF_IOC_FLAG_GROUP); err != nil {
		b.logger.Warn("failed to enable counter group", "error", err)
		return
	}
	b.running = true
}

func (b *perfBank) Disable() {
	if err := unix.IoctlSetInt(b.leader, unix.PERF_EVENT_IOC_DISABLE, unix.PERF_IOC_FLAG_GROUP); err != nil {
		b.logger.Warn("failed to disable counter group", "error", err)
		return
	}
	b.running = false
}

func (b *perfBank) Program(slot Slot, event Event) {
	slot &= slotMask
	if fd, ok := b.slots[slot]; ok {
		_ = unix.Close(fd)
		delete(b.slots, slot)
	}

	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_RAW,
		Config: uint64(event),
		Size:   attrSize,
	}
	fd, err := unix.PerfEventOpen(&attr, -1, b.cpu, b.leader, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		// A slot that failed to program reads as zero; the model term
		// contributes nothing rather than aborting the sampling path.
		b.logger.Warn("failed to program slot", "slot", slot, "event", event.String(), "error", err)
		return
	}
	b.slots[slot] = fd
	b.configs[slot] = event
}

func (b *perfBank) Read(slot Slot) uint32 {
	fd, ok := b.slots[slot&slotMask]
	if !ok {
		return 0
	}
	return saturate32(readCount(fd))
}

func (b *perfBank) ReadCycleCounter() uint32 {
	return saturate32(readCount(b.leader))
}

func (b *perfBank) Reset() {
	for _, fd := range b.slots {
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0)
	}
}

func (b *perfBank) ResetCycleCounter() {
	_ = unix.IoctlSetInt(b.leader, unix.PERF_EVENT_IOC_RESET, 0)
}

func (b *perfBank) IsRunning() bool {
	return b.running
}

func (b *perfBank) IsUserAccessEnabled() bool {
	data, err := os.ReadFile(b.userAccessPath)
	if err != nil {
		// No sysctl means the kernel never grants user-mode access.
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] != '0'
}

// Close releases every counter fd.
func (b *perfBank) Close() error {
	for _, fd := range b.slots {
		_ = unix.Close(fd)
	}
	b.slots = map[Slot]int{}
	if b.leader >= 0 {
		err := unix.Close(b.leader)
		b.leader = -1
		return err
	}
	return nil
}

func readCount(fd int) uint64 {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil || n != len(buf) {
		return 0
	}
	return binary.NativeEndian.Uint64(buf[:])
}

// saturate32 maps the kernel's 64-bit count onto the 32-bit saturating
// counter contract.
func saturate32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// attrSize is the size the kernel expects in PerfEventAttr.Size.
var attrSize = uint32(unsafe.Sizeof(unix.PerfEventAttr{}))
