package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/drewfead/arcbox-desktop/internal/cli"
	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/service"
)

func printJSON(v any) error {
	return cli.WriteJSON(os.Stdout, v)
}

func printStatus(r statusReport) {
	fmt.Printf("%s daemon   %s\n", cli.StateDot(r.Daemon == "running"), r.Daemon)
	fmt.Printf("%s control  %s\n", cli.StateDot(r.Control == "ok"), r.Control)
	if len(r.Counts) > 0 {
		var parts []string
		for _, kind := range service.Kinds {
			parts = append(parts, fmt.Sprintf("%d %ss", r.Counts[string(kind)], kind))
		}
		fmt.Println("  " + strings.Join(parts, ", "))
	}
	fmt.Println()
	fmt.Println(cli.Table([]string{"PATH", "LOCATION"}, [][]string{
		{"data dir", r.DataDir},
		{"health socket", r.HealthSocket},
		{"rpc socket", r.RPCSocket},
	}))
}

// inventoryJSON returns the loaded listing for kind.
func inventoryJSON(inv *service.Inventory, kind service.Kind) any {
	switch kind {
	case service.KindContainer:
		return inv.Containers
	case service.KindImage:
		return inv.Images
	case service.KindMachine:
		return inv.Machines
	case service.KindNetwork:
		return inv.Networks
	default:
		return inv.Volumes
	}
}

func printInventory(inv *service.Inventory, kind service.Kind) error {
	if jsonOutput {
		return printJSON(inventoryJSON(inv, kind))
	}
	if inv.Count(kind) == 0 {
		fmt.Printf("No %ss\n", kind)
		return nil
	}

	headers, rows := inventoryTable(inv, kind)
	fmt.Println(cli.Table(headers, rows))
	if kind == service.KindImage {
		stats := control.CalculateImageStats(inv.Images)
		fmt.Printf("\n%d images, %d unused\n", stats.TotalCount, stats.UnusedCount)
	}
	return nil
}

func inventoryTable(inv *service.Inventory, kind service.Kind) ([]string, [][]string) {
	var rows [][]string
	switch kind {
	case service.KindContainer:
		for _, c := range inv.Containers {
			rows = append(rows, []string{
				c.ShortID(), c.Name, c.Image, c.State.Label(), cli.OrDash(c.PortsDisplay()), c.CreatedAgo(),
			})
		}
		return []string{"ID", "NAME", "IMAGE", "STATE", "PORTS", "CREATED"}, rows
	case service.KindImage:
		for _, img := range inv.Images {
			inUse := ""
			if img.InUse {
				inUse = "yes"
			}
			rows = append(rows, []string{
				img.ShortID(), img.FullName(), img.SizeDisplay(), img.CreatedAgo(), cli.OrDash(inUse),
			})
		}
		return []string{"ID", "IMAGE", "SIZE", "CREATED", "IN USE"}, rows
	case service.KindMachine:
		for _, m := range inv.Machines {
			rows = append(rows, []string{
				m.Name, cli.OrDash(m.Distro.DisplayName), string(m.State), m.ResourcesDisplay(), cli.OrDash(m.IPAddress),
			})
		}
		return []string{"NAME", "DISTRO", "STATE", "RESOURCES", "IP"}, rows
	case service.KindNetwork:
		for _, n := range inv.Networks {
			name := n.Name
			if n.IsSystem() {
				name += " (system)"
			}
			rows = append(rows, []string{n.ShortID(), name, n.DriverDisplay(), n.UsageDisplay()})
		}
		return []string{"ID", "NAME", "DRIVER", "USAGE"}, rows
	default:
		for _, v := range inv.Volumes {
			names := append([]string(nil), v.ContainerNames...)
			sort.Strings(names)
			rows = append(rows, []string{v.Name, v.Driver, v.SizeDisplay(), v.UsageDisplay(), cli.OrDash(strings.Join(names, ","))})
		}
		return []string{"NAME", "DRIVER", "SIZE", "USAGE", "CONTAINERS"}, rows
	}
}

func printLogEntry(e control.LogEntry) {
	out := os.Stdout
	if e.Stream == "stderr" {
		out = os.Stderr
	}
	line := strings.TrimSuffix(e.Data, "\n")
	if t := e.Time(); !t.IsZero() && timestamps {
		line = cli.Gray(t.Local().Format("2006-01-02T15:04:05.000")) + " " + line
	}
	fmt.Fprintln(out, line)
}
