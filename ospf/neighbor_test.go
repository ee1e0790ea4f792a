package ospf

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetransmissionListReplacesSameLSA(t *testing.T) {
	i, _ := newTestInterface(t, InterfaceBroadcast, 1)
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)

	old := testLSA(LSTypeRouter, "3.3.3.3", "3.3.3.3", InitialSequenceNumber)
	newer := testLSA(LSTypeRouter, "3.3.3.3", "3.3.3.3", InitialSequenceNumber+1)
	other := testLSA(LSTypeNetwork, "10.0.0.3", "3.3.3.3", InitialSequenceNumber)

	n.AddToRetransmissionList(old)
	n.AddToRetransmissionList(other)
	n.AddToRetransmissionList(newer)

	require.Equal(t, 2, n.RetransmissionListLen())
	require.Equal(t, newer, n.findOnRetransmissionList(old.Key()))

	n.RemoveFromRetransmissionList(old.Key())
	require.False(t, n.IsOnRetransmissionList(old.Key()))
	require.True(t, n.IsOnRetransmissionList(other.Key()))
}

func TestTransmittedListAging(t *testing.T) {
	i, _ := newTestInterface(t, InterfaceBroadcast, 1)
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)
	key := testLSA(LSTypeRouter, "3.3.3.3", "3.3.3.3", InitialSequenceNumber).Key()

	n.AddToTransmittedLSAList(key)
	require.True(t, n.IsOnTransmittedLSAList(key))

	i.AgeTransmittedLSALists()
	require.True(t, n.IsOnTransmittedLSAList(key))

	i.AgeTransmittedLSALists()
	require.False(t, n.IsOnTransmittedLSAList(key))
}

func TestRequestListEmptyingFinishesLoading(t *testing.T) {
	i, area := newTestInterface(t, InterfaceBroadcast, 1)
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborLoading)

	a := testLSA(LSTypeRouter, "3.3.3.3", "3.3.3.3", InitialSequenceNumber)
	b := testLSA(LSTypeRouter, "4.4.4.4", "4.4.4.4", InitialSequenceNumber)
	n.AddToRequestList(a.LSAHeader)
	n.AddToRequestList(b.LSAHeader)

	n.RemoveFromRequestList(a.Key())
	require.Equal(t, NeighborLoading, n.State())

	n.RemoveFromRequestList(b.Key())
	require.Equal(t, NeighborFull, n.State())

	last := area.neighborChanges[len(area.neighborChanges)-1]
	require.Equal(t, NeighborLoading, last.old)
}

func TestUpdateRetransmissionTimer(t *testing.T) {
	i, area := newTestInterface(t, InterfaceBroadcast, 1)
	h := area.handler
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)

	n.StartUpdateRetransmissionTimer()
	n.updateRetransmissionTimer.Fire()
	require.False(t, n.IsUpdateRetransmissionTimerActive(), "nothing to retransmit")
	require.Empty(t, h.sent)

	a := testLSA(LSTypeRouter, "3.3.3.3", "3.3.3.3", InitialSequenceNumber)
	b := testLSA(LSTypeRouter, "4.4.4.4", "4.4.4.4", InitialSequenceNumber)
	n.AddToRetransmissionList(a)
	n.AddToRetransmissionList(b)

	n.StartUpdateRetransmissionTimer()
	n.updateRetransmissionTimer.Fire()

	require.True(t, n.IsUpdateRetransmissionTimerActive())
	require.Len(t, h.sent, 1)
	require.Equal(t, n.Address(), h.sent[0].dst)

	update := h.sent[0].packet.(*LinkStateUpdate)
	require.Len(t, update.LSAs, 2)
	require.Equal(t, uint16(1), update.LSAs[0].Age)
}

func TestRetransmitUpdatePacketRespectsMTU(t *testing.T) {
	i, area := newTestInterface(t, InterfaceBroadcast, 1)
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)

	a := testLSA(LSTypeRouter, "3.3.3.3", "3.3.3.3", InitialSequenceNumber)
	b := testLSA(LSTypeRouter, "4.4.4.4", "4.4.4.4", InitialSequenceNumber)
	n.AddToRetransmissionList(a)
	n.AddToRetransmissionList(b)

	// Room for the headers and exactly one 36 byte LSA.
	i.MTU = ipv4MaxHeaderLen + headerLen + 4 + 36

	n.RetransmitUpdatePacket()

	update := area.handler.sent[0].packet.(*LinkStateUpdate)
	require.Len(t, update.LSAs, 1)
	require.Equal(t, a.Key(), update.LSAs[0].Key())
}

func TestInactivityTimerRaisesNeighborChange(t *testing.T) {
	i, _ := newTestInterface(t, InterfaceBroadcast, 1)
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)
	i.state = StateNotDesignatedRouter
	i.designatedRouter = DesignatedRouterID{n.ID(), n.Address()}

	n.inactivityTimer.Fire()

	require.Equal(t, NeighborDown, n.State())
	require.Equal(t, StateDesignatedRouter, i.State(), "lost the DR, so we take over")
}

func TestKillDoesNotRaiseNeighborChange(t *testing.T) {
	i, _ := newTestInterface(t, InterfaceBroadcast, 1)
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)
	i.state = StateNotDesignatedRouter
	i.designatedRouter = DesignatedRouterID{n.ID(), n.Address()}

	n.ProcessEvent(NbrKill)

	require.Equal(t, NeighborDown, n.State())
	require.Equal(t, StateNotDesignatedRouter, i.State())
}

func TestNeighborAdjacency(t *testing.T) {
	tests := []struct {
		name string
		typ  InterfaceType
		dr   bool
		want NeighborState
	}{
		{"point-to-point", InterfacePointToPoint, false, NeighborExStart},
		{"broadcast, neither is DR", InterfaceBroadcast, false, NeighborTwoWay},
		{"broadcast, neighbor is DR", InterfaceBroadcast, true, NeighborExStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, _ := newTestInterface(t, tt.typ, 1)
			n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborInit)
			if tt.dr {
				i.designatedRouter = DesignatedRouterID{n.ID(), n.Address()}
			}

			n.ProcessEvent(NbrTwoWayReceived)
			require.Equal(t, tt.want, n.State())
		})
	}
}

func TestNeighborDatabaseExchangeStates(t *testing.T) {
	i, _ := newTestInterface(t, InterfacePointToPoint, 1)
	n := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborExStart)

	n.ProcessEvent(NbrNegotiationDone)
	require.Equal(t, NeighborExchange, n.State())

	n.AddToRequestList(testLSA(LSTypeRouter, "3.3.3.3", "3.3.3.3", InitialSequenceNumber).LSAHeader)
	n.ProcessEvent(NbrExchangeDone)
	require.Equal(t, NeighborLoading, n.State())

	n.ProcessEvent(NbrBadLSReq)
	require.Equal(t, NeighborExStart, n.State())
	require.Equal(t, 0, n.RequestListLen())

	n.ProcessEvent(NbrNegotiationDone)
	n.ProcessEvent(NbrExchangeDone)
	require.Equal(t, NeighborFull, n.State())
}

func TestConfiguredNeighborsWithoutRouterIDs(t *testing.T) {
	i, _ := newTestInterface(t, InterfaceNBMA, 1)
	a := NewNeighbor(0, netip.MustParseAddr("10.0.0.2"), 1)
	b := NewNeighbor(0, netip.MustParseAddr("10.0.0.3"), 1)
	i.AddNeighbor(a)
	i.AddNeighbor(b)

	require.Nil(t, i.NeighborByID(0))
	require.Equal(t, a, i.NeighborByAddress(a.Address()))
	require.Equal(t, b, i.NeighborByAddress(b.Address()))

	i.reindexNeighbor(a, mustRouterID("2.2.2.2"), a.Address())
	require.Equal(t, a, i.NeighborByID(mustRouterID("2.2.2.2")))
	require.Nil(t, i.NeighborByID(0))
	require.Equal(t, b, i.NeighborByAddress(b.Address()))
	require.Equal(t, 2, i.NeighborCount())
}
