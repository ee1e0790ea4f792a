package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/davidbalbert/ospfd/api"
	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/system"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show daemon state, configuration and system information",
}

var showInterfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "OSPF interfaces in the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			interfaces, err := c.GetInterfaces(ctx)
			if err != nil {
				return err
			}

			table, err := statusTable(interfaces)
			if err != nil {
				return err
			}

			return page(os.Stdin, cmd.OutOrStdout(), table)
		})
	},
}

var showNeighborsCmd = &cobra.Command{
	Use:   "neighbors",
	Short: "OSPF neighbors in the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			interfaces, err := c.GetInterfaces(ctx)
			if err != nil {
				return err
			}

			table, err := neighborTable(interfaces)
			if err != nil {
				return err
			}

			return page(os.Stdin, cmd.OutOrStdout(), table)
		})
	},
}

var showServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Services running in the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			names, err := c.GetServices(ctx)
			if err != nil {
				return err
			}

			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		})
	},
}

var showVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version of the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			v, err := c.GetVersion(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		})
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configured OSPF interfaces and their system state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load(configPath)
		if err != nil {
			return err
		}

		netifs, err := system.List()
		if err != nil {
			return err
		}

		table, err := configTable(conf.OSPF(), netifs)
		if err != nil {
			return err
		}

		return page(os.Stdin, cmd.OutOrStdout(), table)
	},
}

func init() {
	showCmd.AddCommand(showInterfacesCmd)
	showCmd.AddCommand(showNeighborsCmd)
	showCmd.AddCommand(showServicesCmd)
	showCmd.AddCommand(showVersionCmd)
	showCmd.AddCommand(showConfigCmd)
}

func statusTable(interfaces []api.InterfaceInfo) ([]string, error) {
	headers := []string{"Name", "Area", "Type", "State", "Address", "Cost", "DR", "BDR", "Nbrs"}

	return tabulate(interfaces, headers, func(i api.InterfaceInfo) []string {
		state := i.State
		if i.Mode != "active" {
			state += ", " + i.Mode
		}

		return []string{
			i.Name,
			i.Area,
			i.Type,
			state,
			i.Address,
			fmt.Sprintf("%d", i.Cost),
			i.DR,
			i.BDR,
			fmt.Sprintf("%d", len(i.Neighbors)),
		}
	})
}

type neighborRow struct {
	iface string
	api.NeighborInfo
}

func neighborTable(interfaces []api.InterfaceInfo) ([]string, error) {
	var rows []neighborRow
	for _, i := range interfaces {
		for _, n := range i.Neighbors {
			rows = append(rows, neighborRow{iface: i.Name, NeighborInfo: n})
		}
	}

	headers := []string{"Neighbor ID", "Pri", "State", "Address", "Interface"}

	return tabulate(rows, headers, func(r neighborRow) []string {
		return []string{
			r.ID,
			fmt.Sprintf("%d", r.Priority),
			r.State,
			r.Address,
			r.iface,
		}
	})
}

type interfaceRow struct {
	name  string
	conf  config.OSPFInterfaceConfig
	netif *system.Interface
}

func configTable(conf *config.OSPFConfig, netifs []system.Interface) ([]string, error) {
	byName := make(map[string]system.Interface)
	for _, netif := range netifs {
		byName[netif.Name] = netif
	}

	var rows []interfaceRow
	for name, c := range conf.InterfaceConfigs() {
		row := interfaceRow{name: name, conf: c}
		if netif, ok := byName[name]; ok {
			row.netif = &netif
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].name < rows[j].name
	})

	headers := []string{"Name", "Area", "Type", "Cost", "Hello/Dead", "Pri", "State", "Addresses"}

	return tabulate(rows, headers, func(r interfaceRow) []string {
		return []string{
			r.name,
			r.conf.AreaID.String(),
			networkTypeName(r.conf, r.netif),
			fmt.Sprintf("%d", r.conf.Cost),
			fmt.Sprintf("%d/%d", r.conf.HelloInterval, r.conf.RouterDeadInterval),
			fmt.Sprintf("%d", r.conf.Priority),
			linkState(r.conf, r.netif),
			addresses(r.netif),
		}
	})
}

func networkTypeName(c config.OSPFInterfaceConfig, netif *system.Interface) string {
	if c.NetworkType != config.NetworkAuto {
		return string(c.NetworkType)
	}

	if netif != nil && netif.IsPointToPoint() {
		return string(config.NetworkPointToPoint) + " (auto)"
	}

	return string(config.NetworkBroadcast) + " (auto)"
}

func linkState(c config.OSPFInterfaceConfig, netif *system.Interface) string {
	var state string
	switch {
	case netif == nil:
		state = "missing"
	case netif.IsLoopback():
		state = "loopback"
	case netif.IsUp():
		state = "up"
	default:
		state = "down"
	}

	if c.Mode != config.ModeActive {
		state += ", " + string(c.Mode)
	}

	return state
}

func addresses(netif *system.Interface) string {
	if netif == nil || len(netif.Prefixes) == 0 {
		return "-"
	}

	s := make([]string, len(netif.Prefixes))
	for i, p := range netif.Prefixes {
		s[i] = p.String()
	}

	return strings.Join(s, " ")
}

// page writes lines to w, through a pager if we're on a terminal.
func page(r *os.File, w io.Writer, lines []string) error {
	eol := "\n"

	if isTerminal(r) && isTerminal(w) {
		oldState, err := term.MakeRaw(int(r.Fd()))
		if err != nil {
			return err
		}
		defer term.Restore(int(r.Fd()), oldState)

		// Raw mode turns off output post-processing.
		eol = "\r\n"
	}

	p := newPager(r, w)
	for _, line := range lines {
		if _, err := io.WriteString(p, line+eol); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}

	return nil
}
