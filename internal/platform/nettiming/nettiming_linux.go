//go:build linux

package nettiming

import (
	"time"

	"golang.org/x/sys/unix"
)

type linuxSampler struct{}

// NewSampler returns the platform Sampler: on Linux this reads TCP_INFO via
// getsockopt, on other platforms it's a no-op
func NewSampler() Sampler { return linuxSampler{} }

func (linuxSampler) Sample(fd uintptr) (Snapshot, bool) {
	info, err := unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return Snapshot{}, false
	}
	return Snapshot{
		RTT:    time.Duration(info.Rtt) * time.Microsecond,
		RTTVar: time.Duration(info.Rttvar) * time.Microsecond,
	}, true
}
