// sysmon-ctl is a small command line client for the sysmon-daemon
// D-Bus service.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/nvoss/sysmond/internal/collector"
)

const (
	dbusName  = "dev.sysmond.Monitor1"
	dbusPath  = "/dev/sysmond/Monitor1"
	dbusIface = "dev.sysmond.Monitor1"
)

type client struct {
	conn *godbus.Conn
	obj  godbus.BusObject
}

func newClient() (*client, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	obj := conn.Object(dbusName, dbusPath)
	return &client{conn: conn, obj: obj}, nil
}

func (c *client) latestSnapshot() (*collector.Snapshot, error) {
	var jsonStr string
	if err := c.obj.Call(dbusIface+".GetLatestSnapshot", 0).Store(&jsonStr); err != nil {
		return nil, err
	}
	var snap *collector.Snapshot
	if err := json.Unmarshal([]byte(jsonStr), &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *client) history(from, to time.Time) ([]collector.Snapshot, error) {
	var jsonStr string
	if err := c.obj.Call(dbusIface+".GetHistory", 0, from.Unix(), to.Unix()).Store(&jsonStr); err != nil {
		return nil, err
	}
	var snaps []collector.Snapshot
	if err := json.Unmarshal([]byte(jsonStr), &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

func (c *client) setInterval(seconds int64) error {
	return c.obj.Call(dbusIface+".SetIntervalSeconds", 0, seconds).Err
}

func (c *client) startLogging(path string) error {
	return c.obj.Call(dbusIface+".StartLogging", 0, path).Err
}

func (c *client) stopLogging() error {
	return c.obj.Call(dbusIface+".StopLogging", 0).Err
}

func (c *client) getConfig() (string, error) {
	var jsonStr string
	err := c.obj.Call(dbusIface+".GetConfig", 0).Store(&jsonStr)
	return jsonStr, err
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: sysmon-ctl <command> [args]

commands:
  status                  print the latest snapshot
  history [-since 1h]     print snapshots from the given window
  set-interval <seconds>  change the sampling interval
  log-start <csv-path>    start CSV logging to the given file
  log-stop                stop CSV logging
  config                  print the current runtime settings
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	c, err := newClient()
	if err != nil {
		fatal(err)
	}
	defer c.conn.Close()

	switch flag.Arg(0) {
	case "status":
		snap, err := c.latestSnapshot()
		if err != nil {
			fatal(err)
		}
		if snap == nil {
			fmt.Println("no snapshots recorded yet")
			return
		}
		printSnapshot(*snap)

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		since := fs.Duration("since", time.Hour, "window to fetch, ending now")
		fs.Parse(flag.Args()[1:])

		now := time.Now()
		snaps, err := c.history(now.Add(-*since), now)
		if err != nil {
			fatal(err)
		}
		for _, s := range snaps {
			printSnapshot(s)
		}
		fmt.Fprintf(os.Stderr, "%d snapshots\n", len(snaps))

	case "set-interval":
		if flag.NArg() != 2 {
			usage()
		}
		seconds, err := strconv.ParseInt(flag.Arg(1), 10, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid interval %q: %w", flag.Arg(1), err))
		}
		if err := c.setInterval(seconds); err != nil {
			fatal(err)
		}

	case "log-start":
		if flag.NArg() != 2 {
			usage()
		}
		if err := c.startLogging(flag.Arg(1)); err != nil {
			fatal(err)
		}

	case "log-stop":
		if err := c.stopLogging(); err != nil {
			fatal(err)
		}

	case "config":
		cfgJSON, err := c.getConfig()
		if err != nil {
			fatal(err)
		}
		fmt.Println(cfgJSON)

	default:
		usage()
	}
}

func printSnapshot(s collector.Snapshot) {
	fmt.Printf("%s  cpu %5.1f%%%s  ram %5.1f%% used (%d MB free)  disk r/w %.1f/%.1f MB/s",
		s.TakenAt.Format("2006-01-02 15:04:05"),
		s.CPUUsagePct, tempSuffix(s.CPUTempC),
		s.RAMUsedPct, s.RAMAvailableMB,
		s.DiskReadMBps, s.DiskWriteMBps)
	if s.GPUAvailable {
		fmt.Printf("  gpu %5.1f%%%s", s.GPUUsagePct, tempSuffix(s.GPUTempC))
	}
	fmt.Println()
	for _, p := range s.TopProcesses {
		fmt.Printf("    %6d  %-20s %5.1f%%  %d MB\n", p.PID, p.Name, p.CPUPercent, p.ResidentMB)
	}
	if s.Err != "" {
		fmt.Printf("    warning: %s\n", s.Err)
	}
}

func tempSuffix(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(" (%.0fC)", *v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "sysmon-ctl:", err)
	os.Exit(1)
}
