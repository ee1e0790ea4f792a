package ospf

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDelayedAckBroadcastDestination(t *testing.T) {
	i, _ := newTestInterface(t, InterfaceBroadcast, 1)
	dr := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)
	i.state = StateNotDesignatedRouter

	lsa := testLSA(LSTypeRouter, "2.2.2.2", "2.2.2.2", InitialSequenceNumber)
	i.AddDelayedAcknowledgement(lsa.LSAHeader)
	require.Len(t, i.DelayedAcknowledgements(AllSPFRouters), 1, "no DR yet")

	i.designatedRouter = DesignatedRouterID{dr.ID(), dr.Address()}
	i.AddDelayedAcknowledgement(lsa.LSAHeader)
	require.Len(t, i.DelayedAcknowledgements(AllDRouters), 1)

	i.state = StateBackup
	i.AddDelayedAcknowledgement(lsa.LSAHeader)
	require.Len(t, i.DelayedAcknowledgements(AllSPFRouters), 2)
}

func TestDelayedAckNBMAPerNeighbor(t *testing.T) {
	i, area := newTestInterface(t, InterfaceNBMA, 1)
	n1 := addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)
	n2 := addNeighbor(i, "3.3.3.3", "10.0.0.3", 1, NeighborExchange)
	n3 := addNeighbor(i, "4.4.4.4", "10.0.0.4", 1, NeighborTwoWay)
	i.state = StateDesignatedRouter

	lsa := testLSA(LSTypeRouter, "2.2.2.2", "2.2.2.2", InitialSequenceNumber)
	i.AddDelayedAcknowledgement(lsa.LSAHeader)

	require.Len(t, i.DelayedAcknowledgements(n1.Address()), 1)
	require.Len(t, i.DelayedAcknowledgements(n2.Address()), 1)
	require.Empty(t, i.DelayedAcknowledgements(n3.Address()))

	i.SendDelayedAcknowledgements()

	h := area.handler
	require.Len(t, h.sent, 2)
	require.Equal(t, n1.Address(), h.sent[0].dst, "queues drain in insertion order")
	require.Equal(t, n2.Address(), h.sent[1].dst)
	require.Empty(t, i.DelayedAcknowledgements(n1.Address()))
}

func TestDelayedAckBatching(t *testing.T) {
	i, area := newTestInterface(t, InterfaceBroadcast, 1)
	i.state = StateDesignatedRouter

	// 60 + 24 + 3*20 = 144, so three headers fit in each packet.
	i.MTU = 144

	for n := 0; n < 7; n++ {
		lsa := testLSA(LSTypeRouter, "2.2.2.2", "2.2.2.2", InitialSequenceNumber+int32(n))
		i.AddDelayedAcknowledgement(lsa.LSAHeader)
	}

	i.SendDelayedAcknowledgements()

	h := area.handler
	require.Len(t, h.sent, 3)

	var counts []int
	var seqs []int32
	for _, s := range h.sent {
		ack := s.packet.(*LinkStateAcknowledgement)
		counts = append(counts, len(ack.LSAHeaders))
		for _, hdr := range ack.LSAHeaders {
			seqs = append(seqs, hdr.SequenceNumber-InitialSequenceNumber)
		}
		require.Equal(t, AllSPFRouters, s.dst)
	}

	require.Equal(t, []int{3, 3, 1}, counts)
	require.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6}, seqs)
}

func TestDelayedAckTinyMTUUsesDatagramLength(t *testing.T) {
	i, _ := newTestInterface(t, InterfaceBroadcast, 1)
	i.MTU = 100

	require.Equal(t, ipv4DatagramLen, i.maxPacketSize())
}

func TestSendDelayedAcksWithNothingQueued(t *testing.T) {
	i, area := newTestInterface(t, InterfaceBroadcast, 1)
	i.state = StateDesignatedRouter

	i.SendDelayedAcknowledgements()

	require.Empty(t, area.handler.sent)
	d, ok := area.handler.running(i.ackTimer)
	require.True(t, ok)
	require.Equal(t, seconds(i.AcknowledgementDelay), d)
}

func TestDelayedAckPointToPoint(t *testing.T) {
	i, area := newTestInterface(t, InterfacePointToPoint, 1)
	addNeighbor(i, "2.2.2.2", "10.0.0.2", 1, NeighborFull)
	i.state = StatePointToPoint

	lsa := testLSA(LSTypeRouter, "2.2.2.2", "2.2.2.2", InitialSequenceNumber)
	i.AddDelayedAcknowledgement(lsa.LSAHeader)
	i.ProcessEvent(AcknowledgementTimer)

	require.Len(t, area.handler.sent, 1)
	require.Equal(t, AllSPFRouters, area.handler.sent[0].dst)
}

func TestSendLSAcknowledgement(t *testing.T) {
	i, area := newTestInterface(t, InterfaceBroadcast, 1)
	lsa := testLSA(LSTypeRouter, "2.2.2.2", "2.2.2.2", InitialSequenceNumber)
	dst := netip.MustParseAddr("10.0.0.2")

	i.SendLSAcknowledgement(lsa.LSAHeader, dst)

	require.Len(t, area.handler.sent, 1)
	ack := area.handler.sent[0].packet.(*LinkStateAcknowledgement)
	require.Equal(t, []LSAHeader{lsa.LSAHeader}, ack.LSAHeaders)
	require.Equal(t, dst, area.handler.sent[0].dst)
}

func TestHandleLSAcknowledgement(t *testing.T) {
	i, _, n1, _ := newDRInterface(t)
	lsa := testLSA(LSTypeRouter, "1.1.1.1", "1.1.1.1", InitialSequenceNumber+1)
	i.FloodLSA(lsa, nil, nil)
	require.True(t, n1.IsOnRetransmissionList(lsa.Key()))

	stale := lsa.LSAHeader
	stale.SequenceNumber--
	i.HandleLSAcknowledgement(&LinkStateAcknowledgement{
		Header:     Header{RouterID: n1.ID()},
		LSAHeaders: []LSAHeader{stale},
	}, n1.Address())
	require.True(t, n1.IsOnRetransmissionList(lsa.Key()), "acks for other instances are ignored")

	acked := lsa.LSAHeader
	acked.Age += 1
	i.HandleLSAcknowledgement(&LinkStateAcknowledgement{
		Header:     Header{RouterID: n1.ID()},
		LSAHeaders: []LSAHeader{acked},
	}, n1.Address())
	require.False(t, n1.IsOnRetransmissionList(lsa.Key()))
}
