// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package pipe derives a Logger's ESB pipe number from a host-unique
// identifier, the host-side analogue of the firmware's
// "fold the nRF52840 FICR device ID into 1..7" scheme (spec.md §4.2, §9).
package pipe

import "hash/fnv"

// Broadcast is the reserved pipe address used for Coordinator broadcasts.
const Broadcast = 0

// Min and Max bound the unicast Logger pipe range.
const (
	Min = 1
	Max = 7
)

// FromDeviceID folds an arbitrary-length host identifier (e.g. the contents
// of /etc/machine-id, or a radio/network MAC address -- there is no FICR
// register on a host CPU) into a pipe number in [Min, Max].
//
// Collisions between two Loggers sharing a pipe are possible and accepted,
// exactly as spec.md §4.2 and §9 Open Question (b) describe: the design
// assumes they are rare in small fleets and manifest as an occasionally
// dropped STOP_REQ, reissued the next time the affected Logger's button is
// pressed. No collision detection or pipe renegotiation is implemented.
func FromDeviceID(id []byte) byte {
	h := fnv.New64a()
	h.Write(id)
	return byte(h.Sum64()%uint64(Max)) + Min
}
