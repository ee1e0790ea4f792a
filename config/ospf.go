package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/davidbalbert/ospfd/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/constraints"
)

type NetworkType string

const (
	NetworkAuto              NetworkType = ""
	NetworkBroadcast         NetworkType = "broadcast"
	NetworkPointToPoint      NetworkType = "point-to-point"
	NetworkNBMA              NetworkType = "nbma"
	NetworkPointToMultipoint NetworkType = "point-to-multipoint"
	NetworkVirtual           NetworkType = "virtual"
)

type InterfaceMode string

const (
	ModeActive  InterfaceMode = "active"
	ModePassive InterfaceMode = "passive"
	ModeNoOSPF  InterfaceMode = "no-ospf"
)

func parseNetworkType(s string) (NetworkType, bool) {
	switch t := NetworkType(s); t {
	case NetworkBroadcast, NetworkPointToPoint, NetworkNBMA, NetworkPointToMultipoint, NetworkVirtual:
		return t, true
	default:
		return NetworkAuto, false
	}
}

// InterfaceParams are the per-interface settings that can be given at the
// router, area or interface level. Zero means inherit from the level above.
type InterfaceParams struct {
	Cost               uint16
	HelloInterval      uint16
	RouterDeadInterval uint32
	RetransmitInterval uint16
	TransmitDelay      uint16
	AckDelay           uint16
	PollInterval       uint16
	Priority           uint8

	// priority 0 is meaningful, so we track whether it was set
	prioritySet bool
}

func parseUint[T constraints.Unsigned](where, key string, v any, min int) (T, error) {
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be an integer", where, key)
	}

	if n < min {
		return 0, fmt.Errorf("%s: %s too small: %d", where, key, n)
	} else if uint64(n) > uint64(^T(0)) {
		return 0, fmt.Errorf("%s: %s too big: %d", where, key, n)
	}

	return T(n), nil
}

// parseKey parses k if it is one of the shared interface settings. It
// returns false for any other key.
func (p *InterfaceParams) parseKey(where, k string, v any) (bool, error) {
	var err error

	switch k {
	case "cost":
		p.Cost, err = parseUint[uint16](where, k, v, 1)
	case "hello-interval":
		p.HelloInterval, err = parseUint[uint16](where, k, v, 1)
	case "dead-interval":
		p.RouterDeadInterval, err = parseUint[uint32](where, k, v, 1)
	case "retransmit-interval":
		p.RetransmitInterval, err = parseUint[uint16](where, k, v, 1)
	case "transmit-delay":
		p.TransmitDelay, err = parseUint[uint16](where, k, v, 1)
	case "ack-delay":
		p.AckDelay, err = parseUint[uint16](where, k, v, 1)
	case "poll-interval":
		p.PollInterval, err = parseUint[uint16](where, k, v, 1)
	case "priority":
		p.Priority, err = parseUint[uint8](where, k, v, 0)
		p.prioritySet = true
	default:
		return false, nil
	}

	return true, err
}

func (p *InterfaceParams) setDefaults(parent InterfaceParams) {
	if p.Cost == 0 {
		p.Cost = parent.Cost
	}

	if p.HelloInterval == 0 {
		p.HelloInterval = parent.HelloInterval
	}

	if p.RouterDeadInterval == 0 {
		p.RouterDeadInterval = parent.RouterDeadInterval
	}

	if p.RetransmitInterval == 0 {
		p.RetransmitInterval = parent.RetransmitInterval
	}

	if p.TransmitDelay == 0 {
		p.TransmitDelay = parent.TransmitDelay
	}

	if p.AckDelay == 0 {
		p.AckDelay = parent.AckDelay
	}

	if p.PollInterval == 0 {
		p.PollInterval = parent.PollInterval
	}

	if !p.prioritySet {
		p.Priority = parent.Priority
		p.prioritySet = parent.prioritySet
	}
}

type OSPFConfig struct {
	RouterID  common.RouterID
	LogLevel  string
	LogFormat string

	InterfaceParams
	Areas map[common.AreaID]OSPFAreaConfig
}

func (c *OSPFConfig) shouldRun() bool {
	for _, area := range c.Areas {
		if len(area.Interfaces) > 0 {
			return true
		}
	}

	return false
}

func (c *OSPFConfig) dependencies() []ServiceID {
	return []ServiceID{ServiceInterfaceMonitor}
}

func (c *OSPFConfig) copy() protocolConfig {
	newConfig := *c
	newConfig.Areas = make(map[common.AreaID]OSPFAreaConfig)

	for k, v := range c.Areas {
		newConfig.Areas[k] = v.copy()
	}

	return &newConfig
}

// InterfaceConfigs returns every configured interface, keyed by name.
func (c *OSPFConfig) InterfaceConfigs() map[string]OSPFInterfaceConfig {
	configs := make(map[string]OSPFInterfaceConfig)

	for _, area := range c.Areas {
		for name, conf := range area.Interfaces {
			configs[name] = conf
		}
	}

	return configs
}

type OSPFAreaConfig struct {
	Stub bool

	InterfaceParams
	Interfaces map[string]OSPFInterfaceConfig
}

func (c *OSPFAreaConfig) copy() OSPFAreaConfig {
	newConfig := *c
	newConfig.Interfaces = make(map[string]OSPFInterfaceConfig)

	for k, v := range c.Interfaces {
		v.Neighbors = append([]netip.Addr(nil), v.Neighbors...)
		newConfig.Interfaces[k] = v
	}

	return newConfig
}

type OSPFInterfaceConfig struct {
	AreaID common.AreaID

	InterfaceParams
	NetworkType NetworkType
	MTU         int
	AuthType    string
	AuthKey     string
	Neighbors   []netip.Addr
	Mode        InterfaceMode
}

func parseID(where, key string, v any) (uint32, error) {
	switch v := v.(type) {
	case string:
		id, err := common.ParseID(v)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid %s: %s", where, key, err)
		}
		return id, nil
	case int:
		id, err := parseUint[uint32](where, key, v, 0)
		if err != nil {
			return 0, err
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%s: %s must be an IPv4 address or an unsigned 32 bit integer", where, key)
	}
}

func parseOSPFConfig(data map[string]interface{}) (*OSPFConfig, error) {
	c := &OSPFConfig{
		RouterID: 0,
		InterfaceParams: InterfaceParams{
			Cost:               1,
			HelloInterval:      10,
			RouterDeadInterval: 40,
			RetransmitInterval: 5,
			TransmitDelay:      1,
			AckDelay:           1,
			PollInterval:       120,
			Priority:           1,
			prioritySet:        true,
		},
		Areas: make(map[common.AreaID]OSPFAreaConfig),
	}

	for k, v := range data {
		ok, err := c.parseKey("ospf", k, v)
		if err != nil {
			return nil, err
		} else if ok {
			continue
		}

		if k == "router-id" {
			id, err := parseID("ospf", k, v)
			if err != nil {
				return nil, err
			}

			c.RouterID = common.RouterID(id)
		} else if k == "log-level" {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("ospf: log-level must be a string")
			}

			if _, err := logrus.ParseLevel(s); err != nil {
				return nil, fmt.Errorf("ospf: %w", err)
			}

			c.LogLevel = s
		} else if k == "log-format" {
			s, ok := v.(string)
			if !ok || (s != "text" && s != "json") {
				return nil, fmt.Errorf("ospf: log-format must be text or json")
			}

			c.LogFormat = s
		} else if strings.HasPrefix(k, "area ") {
			name := strings.TrimPrefix(k, "area ")

			id, err := common.ParseID(name)
			if err != nil {
				return nil, fmt.Errorf("ospf: invalid area id: %s", err)
			}

			area, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("ospf: area must be a map")
			}

			ac, err := parseAreaConfig(common.AreaID(id), area)
			if err != nil {
				return nil, err
			}

			c.Areas[common.AreaID(id)] = *ac
		} else {
			return nil, fmt.Errorf("ospf: unknown key: %s", k)
		}
	}

	if c.RouterID == 0 {
		return nil, fmt.Errorf("ospf: router-id must be configured")
	}

	_, ok := c.Areas[common.BackboneAreaID]
	if !ok {
		return nil, fmt.Errorf("ospf: backbone area must be configured")
	}

	seen := make(map[string]common.AreaID)
	for id, ac := range c.Areas {
		for name := range ac.Interfaces {
			if other, ok := seen[name]; ok {
				return nil, fmt.Errorf("ospf: interface %s configured in areas %s and %s", name, other, id)
			}
			seen[name] = id
		}
	}

	for k, ac := range c.Areas {
		ac.setDefaults(c)
		c.Areas[k] = ac
	}

	return c, nil
}

func (ac *OSPFAreaConfig) setDefaults(c *OSPFConfig) {
	ac.InterfaceParams.setDefaults(c.InterfaceParams)

	for k, ic := range ac.Interfaces {
		ic.InterfaceParams.setDefaults(ac.InterfaceParams)
		ac.Interfaces[k] = ic
	}
}

func parseAreaConfig(areaID common.AreaID, data map[string]interface{}) (*OSPFAreaConfig, error) {
	where := fmt.Sprintf("ospf area %s", areaID)

	ac := OSPFAreaConfig{
		Interfaces: make(map[string]OSPFInterfaceConfig),
	}

	for k, v := range data {
		ok, err := ac.parseKey(where, k, v)
		if err != nil {
			return nil, err
		} else if ok {
			continue
		}

		if k == "stub" {
			stub, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%s: stub must be a boolean", where)
			}

			if stub && areaID.IsBackbone() {
				return nil, fmt.Errorf("%s: the backbone can't be a stub area", where)
			}

			ac.Stub = stub
		} else if strings.HasPrefix(k, "interface ") {
			interfaceName := strings.TrimPrefix(k, "interface ")

			var i map[string]interface{}
			if v != nil {
				var ok bool
				i, ok = v.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("%s: interface %s must be a map", where, interfaceName)
				}
			}

			ic, err := parseInterfaceConfig(areaID, interfaceName, i)
			if err != nil {
				return nil, err
			}

			ac.Interfaces[interfaceName] = *ic
		} else {
			return nil, fmt.Errorf("%s: unknown key: %s", where, k)
		}
	}

	return &ac, nil
}

func parseInterfaceConfig(areaID common.AreaID, name string, data map[string]interface{}) (*OSPFInterfaceConfig, error) {
	where := fmt.Sprintf("ospf area %s interface %s", areaID, name)

	ic := OSPFInterfaceConfig{
		AreaID:   areaID,
		AuthType: "none",
	}

	var mode InterfaceMode
	var passive bool

	for k, v := range data {
		ok, err := ic.parseKey(where, k, v)
		if err != nil {
			return nil, err
		} else if ok {
			continue
		}

		switch k {
		case "network-type":
			s, _ := v.(string)
			t, ok := parseNetworkType(s)
			if !ok {
				return nil, fmt.Errorf("%s: unknown network-type: %v", where, v)
			}

			ic.NetworkType = t
		case "mtu":
			mtu, err := parseUint[uint16](where, k, v, 68)
			if err != nil {
				return nil, err
			}

			ic.MTU = int(mtu)
		case "auth-type":
			s, ok := v.(string)
			if !ok || (s != "none" && s != "simple") {
				return nil, fmt.Errorf("%s: auth-type must be none or simple", where)
			}

			ic.AuthType = s
		case "auth-key":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s: auth-key must be a string", where)
			}

			if len(s) > 8 {
				return nil, fmt.Errorf("%s: auth-key too long: %d bytes", where, len(s))
			}

			ic.AuthKey = s
		case "neighbors":
			list, ok := v.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%s: neighbors must be a list", where)
			}

			for _, item := range list {
				s, _ := item.(string)
				addr, err := netip.ParseAddr(s)
				if err != nil || !addr.Is4() {
					return nil, fmt.Errorf("%s: invalid neighbor: %v", where, item)
				}

				ic.Neighbors = append(ic.Neighbors, addr)
			}
		case "mode":
			s, _ := v.(string)
			switch m := InterfaceMode(s); m {
			case ModeActive, ModePassive, ModeNoOSPF:
				mode = m
			default:
				return nil, fmt.Errorf("%s: mode must be active, passive or no-ospf", where)
			}
		case "passive":
			p, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%s: passive must be a boolean", where)
			}

			passive = p
		default:
			return nil, fmt.Errorf("%s: unknown key: %s", where, k)
		}
	}

	// passive: true is shorthand for mode: passive
	switch {
	case passive && mode != "" && mode != ModePassive:
		return nil, fmt.Errorf("%s: passive conflicts with mode %s", where, mode)
	case passive:
		ic.Mode = ModePassive
	case mode != "":
		ic.Mode = mode
	default:
		ic.Mode = ModeActive
	}

	if ic.AuthType == "simple" && ic.AuthKey == "" {
		return nil, fmt.Errorf("%s: auth-key is required for simple authentication", where)
	}

	switch ic.NetworkType {
	case NetworkNBMA, NetworkPointToMultipoint:
	case NetworkVirtual:
		if !areaID.IsBackbone() {
			return nil, fmt.Errorf("%s: virtual links belong to the backbone", where)
		}

		if len(ic.Neighbors) != 1 {
			return nil, fmt.Errorf("%s: a virtual link needs exactly one neighbor", where)
		}
	default:
		if len(ic.Neighbors) > 0 {
			return nil, fmt.Errorf("%s: neighbors can only be configured on nbma, point-to-multipoint and virtual networks", where)
		}
	}

	return &ic, nil
}
