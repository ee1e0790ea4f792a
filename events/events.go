package events

import "net/netip"

type EventType string

const (
	ConfigUpdated         EventType = "ConfigUpdated"
	InterfaceStateChanged EventType = "InterfaceStateChanged"
	NeighborStateChanged  EventType = "NeighborStateChanged"
	LSAInstalled          EventType = "LSAInstalled"
)

type Event struct {
	Type EventType
	Data any
}

type InterfaceStateChange struct {
	Interface string
	Area      string
	Old       string
	New       string
}

type NeighborStateChange struct {
	Interface string
	Neighbor  string
	Address   netip.Addr
	Old       string
	New       string
}

type LSAInstall struct {
	Area string
	LSA  string
}
