package ospf

import "fmt"

type InterfaceType int

const (
	InterfaceUnknownType InterfaceType = iota
	InterfacePointToPoint
	InterfaceBroadcast
	InterfaceNBMA
	InterfacePointToMultipoint
	InterfaceVirtualLink
)

func (t InterfaceType) String() string {
	switch t {
	case InterfacePointToPoint:
		return "PointToPoint"
	case InterfaceBroadcast:
		return "Broadcast"
	case InterfaceNBMA:
		return "NBMA"
	case InterfacePointToMultipoint:
		return "PointToMultiPoint"
	case InterfaceVirtualLink:
		return "Virtual"
	default:
		return "Unknown"
	}
}

type InterfaceState int

const (
	StateDown InterfaceState = iota
	StateLoopback
	StateWaiting
	StatePointToPoint
	StateNotDesignatedRouter
	StateBackup
	StateDesignatedRouter
)

func (s InterfaceState) String() string {
	switch s {
	case StateDown:
		return "Down"
	case StateLoopback:
		return "Loopback"
	case StateWaiting:
		return "Waiting"
	case StatePointToPoint:
		return "PointToPoint"
	case StateNotDesignatedRouter:
		return "NotDesignatedRouter"
	case StateBackup:
		return "Backup"
	case StateDesignatedRouter:
		return "DesignatedRouter"
	default:
		return "Unknown"
	}
}

type InterfaceEvent int

const (
	InterfaceUp InterfaceEvent = iota
	InterfaceDown
	WaitTimer
	BackupSeen
	NeighborChange
	LoopIndication
	UnloopIndication
	HelloTimer
	AcknowledgementTimer
)

func (e InterfaceEvent) String() string {
	switch e {
	case InterfaceUp:
		return "InterfaceUp"
	case InterfaceDown:
		return "InterfaceDown"
	case WaitTimer:
		return "WaitTimer"
	case BackupSeen:
		return "BackupSeen"
	case NeighborChange:
		return "NeighborChange"
	case LoopIndication:
		return "LoopIndication"
	case UnloopIndication:
		return "UnloopIndication"
	case HelloTimer:
		return "HelloTimer"
	case AcknowledgementTimer:
		return "AcknowledgementTimer"
	default:
		return "Unknown"
	}
}

type InterfaceMode int

const (
	ModeActive InterfaceMode = iota
	ModePassive
	ModeNoOSPF
)

func (m InterfaceMode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModePassive:
		return "passive"
	case ModeNoOSPF:
		return "no-ospf"
	default:
		return "unknown"
	}
}

// ifaceAction is a side effect of an interface state transition. Actions
// are executed in order by Interface.ProcessEvent.
type ifaceAction int

const (
	actionReset ifaceAction = iota
	actionStartHelloTimer
	actionStartWaitTimer
	actionStartAckTimer
	actionStartNeighbors
	actionSendHello
	actionElect
	actionSendDelayedAcks
)

func (a ifaceAction) String() string {
	switch a {
	case actionReset:
		return "Reset"
	case actionStartHelloTimer:
		return "StartHelloTimer"
	case actionStartWaitTimer:
		return "StartWaitTimer"
	case actionStartAckTimer:
		return "StartAckTimer"
	case actionStartNeighbors:
		return "StartNeighbors"
	case actionSendHello:
		return "SendHello"
	case actionElect:
		return "Elect"
	case actionSendDelayedAcks:
		return "SendDelayedAcks"
	default:
		return fmt.Sprintf("ifaceAction(%d)", int(a))
	}
}

// fsmInput is the part of the interface's configuration that the transition
// function depends on.
type fsmInput struct {
	Type     InterfaceType
	Priority uint8
}

type fsmResult struct {
	Next    InterfaceState
	Actions []ifaceAction
}

// transition is the interface state machine (RFC 2328 9.3). It has no side
// effects. When Actions contains actionElect, the next state is decided by
// the election and Next is the current state.
func transition(state InterfaceState, event InterfaceEvent, in fsmInput) fsmResult {
	stay := fsmResult{Next: state}

	switch event {
	case InterfaceDown:
		if state == StateDown {
			return stay
		}
		return fsmResult{Next: StateDown, Actions: []ifaceAction{actionReset}}
	case LoopIndication:
		if state == StateLoopback {
			return stay
		}
		return fsmResult{Next: StateLoopback, Actions: []ifaceAction{actionReset}}
	}

	switch state {
	case StateDown:
		if event != InterfaceUp {
			return stay
		}

		actions := []ifaceAction{actionStartHelloTimer, actionStartAckTimer}
		switch {
		case in.Type == InterfacePointToPoint || in.Type == InterfacePointToMultipoint || in.Type == InterfaceVirtualLink:
			return fsmResult{Next: StatePointToPoint, Actions: actions}
		case in.Priority == 0:
			return fsmResult{Next: StateNotDesignatedRouter, Actions: actions}
		default:
			actions = append(actions, actionStartWaitTimer)
			if in.Type == InterfaceNBMA {
				actions = append(actions, actionStartNeighbors)
			}
			return fsmResult{Next: StateWaiting, Actions: actions}
		}
	case StateLoopback:
		if event == UnloopIndication {
			return fsmResult{Next: StateDown}
		}
		return stay
	case StateWaiting:
		switch event {
		case HelloTimer:
			return fsmResult{Next: state, Actions: []ifaceAction{actionSendHello}}
		case AcknowledgementTimer:
			return fsmResult{Next: state, Actions: []ifaceAction{actionSendDelayedAcks}}
		case BackupSeen, WaitTimer:
			return fsmResult{Next: state, Actions: []ifaceAction{actionElect}}
		}
		return stay
	case StatePointToPoint:
		switch event {
		case HelloTimer:
			return fsmResult{Next: state, Actions: []ifaceAction{actionSendHello}}
		case AcknowledgementTimer:
			return fsmResult{Next: state, Actions: []ifaceAction{actionSendDelayedAcks}}
		}
		return stay
	case StateNotDesignatedRouter, StateBackup, StateDesignatedRouter:
		switch event {
		case HelloTimer:
			return fsmResult{Next: state, Actions: []ifaceAction{actionSendHello}}
		case AcknowledgementTimer:
			return fsmResult{Next: state, Actions: []ifaceAction{actionSendDelayedAcks}}
		case NeighborChange:
			return fsmResult{Next: state, Actions: []ifaceAction{actionElect}}
		}
		return stay
	default:
		panic(fmt.Sprintf("ospf: invalid interface state %d", int(state)))
	}
}
