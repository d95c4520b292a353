// Unique task identifiers.
//
// A TaskID is a process-local-unique, monotonically ordered tag: a
// fetch-and-add counter, the creating process id, a whole-second creation
// timestamp and a short host-interface fingerprint. It is a tie-break
// identity and a removal handle, not a security token.

package wdinternal

import (
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// ErrNoHostInterface is returned when no non-loopback IPv4 interface address
// could be found on the host.
var ErrNoHostInterface = errors.New("no non-loopback IPv4 interface found")

const hostIfaceLen = 14

// TaskID is field-wise comparable; the zero value is the designated "null"
// ID meaning "no ID / creation failed".
type TaskID struct {
	Seq       uint64
	PID       int
	Created   time.Time
	HostIface [hostIfaceLen]byte
}

// NullTaskID is the zero TaskID, returned (with an error) whenever
// NewTaskID fails.
var NullTaskID = TaskID{}

var taskIDSeq atomic.Uint64

// NewTaskID produces a fresh TaskID, or NullTaskID with a non-nil error if
// the host-interface lookup fails. The counter increment is atomic so
// concurrent creators never collide.
func NewTaskID(pid int) (TaskID, error) {
	iface, err := firstNonLoopbackIPv4()
	if err != nil {
		return NullTaskID, err
	}
	seq := taskIDSeq.Add(1)
	id := TaskID{
		Seq:     seq,
		PID:     pid,
		Created: time.Now().Truncate(time.Second),
	}
	copy(id.HostIface[:], iface)
	return id, nil
}

// Equal reports field-wise equality between two TaskIDs.
func (id TaskID) Equal(other TaskID) bool {
	return id == other
}

// IsNull reports whether id is the designated null value.
func (id TaskID) IsNull() bool {
	return id == NullTaskID
}

// firstNonLoopbackIPv4 walks the host's interface addresses and returns the
// first non-loopback IPv4 address, padded/truncated to hostIfaceLen bytes.
func firstNonLoopbackIPv4() ([]byte, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		buf := make([]byte, hostIfaceLen)
		copy(buf, ip4.String())
		return buf, nil
	}
	return nil, ErrNoHostInterface
}
