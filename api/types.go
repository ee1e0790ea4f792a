package api

import (
	"github.com/davidbalbert/ospfd/ospf"
)

type NeighborInfo struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	State    string `json:"state"`
	Priority int    `json:"priority"`
}

type InterfaceInfo struct {
	Name      string         `json:"name"`
	Area      string         `json:"area"`
	Type      string         `json:"type"`
	Mode      string         `json:"mode"`
	State     string         `json:"state"`
	Address   string         `json:"address"`
	Cost      int            `json:"cost"`
	DR        string         `json:"dr"`
	BDR       string         `json:"bdr"`
	Neighbors []NeighborInfo `json:"neighbors"`
}

type EventInfo struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func interfaceInfo(s ospf.InterfaceStatus) InterfaceInfo {
	info := InterfaceInfo{
		Name:      s.Name,
		Area:      s.Area.String(),
		Type:      s.Type.String(),
		Mode:      s.Mode.String(),
		State:     s.State.String(),
		Address:   s.Address.String(),
		Cost:      int(s.Cost),
		DR:        s.DesignatedRouter.String(),
		BDR:       s.BackupDesignatedRouter.String(),
		Neighbors: []NeighborInfo{},
	}

	for _, n := range s.Neighbors {
		info.Neighbors = append(info.Neighbors, NeighborInfo{
			ID:       n.ID.String(),
			Address:  n.Address.String(),
			State:    n.State.String(),
			Priority: int(n.Priority),
		})
	}

	return info
}
