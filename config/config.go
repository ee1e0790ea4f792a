package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServiceType int

const (
	ServiceTypeAPIServer ServiceType = iota
	ServiceTypeInterfaceMonitor
	ServiceTypeOSPF
)

func (t ServiceType) String() string {
	switch t {
	case ServiceTypeAPIServer:
		return "APIServer"
	case ServiceTypeInterfaceMonitor:
		return "InterfaceMonitor"
	case ServiceTypeOSPF:
		return "OSPF"
	default:
		return fmt.Sprintf("unknown service type: %d", t)
	}
}

type ServiceID struct {
	Type ServiceType
	Name string
}

var (
	ServiceAPIServer        = ServiceID{Type: ServiceTypeAPIServer, Name: "APIServer"}
	ServiceInterfaceMonitor = ServiceID{Type: ServiceTypeInterfaceMonitor, Name: "InterfaceMonitor"}
	ServiceOSPF             = ServiceID{Type: ServiceTypeOSPF, Name: "OSPF"}
)

type protocolConfig interface {
	shouldRun() bool
	dependencies() []ServiceID
	copy() protocolConfig
}

type Config struct {
	protocols map[ServiceID]protocolConfig
}

// A Bootstrap is everything needed to start a service.
type Bootstrap struct {
	ID     ServiceID
	Config any
}

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	s, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config, err := Parse(string(s))
	if err != nil {
		return nil, err
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func Parse(s string) (*Config, error) {
	var data map[string]interface{}

	if err := yaml.Unmarshal([]byte(s), &data); err != nil {
		return nil, err
	}

	c := Config{
		protocols: make(map[ServiceID]protocolConfig),
	}

	for k, v := range data {
		switch k {
		case "ospf":
			v, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("ospf must be a map")
			}

			ospfConfig, err := parseOSPFConfig(v)
			if err != nil {
				return nil, err
			}

			c.protocols[ServiceOSPF] = ospfConfig
		default:
			return nil, fmt.Errorf("unknown top level key: %s", k)
		}
	}

	return &c, nil
}

// OSPF returns a copy of the OSPF config, or nil if there isn't one.
func (c *Config) OSPF() *OSPFConfig {
	p, ok := c.protocols[ServiceOSPF]
	if !ok {
		return nil
	}

	return p.copy().(*OSPFConfig)
}

// Bootstraps returns the services that should be running, dependencies
// first.
func (c *Config) Bootstraps() []Bootstrap {
	g := newGraph[ServiceID]()

	g.addNode(ServiceAPIServer)

	for s, p := range c.protocols {
		if p.shouldRun() {
			g.addNode(s, p.dependencies()...)
		}
	}

	sorted, err := g.topologicalSort()
	if err != nil {
		// Dependencies are fixed per service type.
		panic(err)
	}

	var bootstraps []Bootstrap
	for _, id := range sorted {
		b := Bootstrap{ID: id}
		if p, ok := c.protocols[id]; ok {
			b.Config = p.copy()
		}

		bootstraps = append(bootstraps, b)
	}

	return bootstraps
}

func (c *Config) copy() *Config {
	newConfig := Config{
		protocols: make(map[ServiceID]protocolConfig),
	}

	for k, v := range c.protocols {
		newConfig.protocols[k] = v.copy()
	}

	return &newConfig
}

func (c *Config) validate() error {
	if _, ok := c.protocols[ServiceOSPF]; !ok {
		return fmt.Errorf("no ospf config provided")
	}

	return nil
}
