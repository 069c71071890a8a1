// gxinfo lists the connected Daheng cameras and, optionally, every feature
// each one exposes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/go-daheng/internal/log"
	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/gxi"
)

type deviceReport struct {
	gxi.DeviceInfo
	Features []camctl.FeatureValue `json:"features,omitempty"`
	Error    string                `json:"error,omitempty"`
}

func main() {
	backend := flag.String("backend", "auto", "SDK backend: auto, gxiapi, mock")
	timeout := flag.Duration("timeout", time.Second, "Device discovery timeout")
	asJSON := flag.Bool("json", false, "Print JSON instead of a table")
	features := flag.Bool("features", false, "Open each device and list its features")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	opts := log.Options{Level: "warn", Console: os.Stderr}
	if *debug {
		opts.Level = "debug"
	}
	if err := log.Init(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}

	cfg := gxi.DefaultConfig()
	cfg.Backend = gxi.Backend(*backend)
	cfg.EnumTimeout = *timeout

	if err := run(context.Background(), cfg, *features, *asJSON, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "gxinfo: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg gxi.Config, features, asJSON bool, out io.Writer) error {
	lib, err := gxi.Open(cfg, log.L())
	if err != nil {
		return err
	}
	defer lib.Close()

	devs, err := lib.UpdateDeviceList(ctx, cfg.EnumTimeout)
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}

	reports := make([]deviceReport, len(devs))
	for i, d := range devs {
		reports[i].DeviceInfo = d
		if features {
			reports[i].Features, err = readFeatures(lib, d)
			if err != nil {
				reports[i].Error = err.Error()
			}
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	return printTable(out, reports)
}

// readFeatures opens d briefly and reads every feature.
func readFeatures(lib gxi.Library, d gxi.DeviceInfo) ([]camctl.FeatureValue, error) {
	dev, err := lib.OpenByIndex(d.Index)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	return camctl.NewParams(dev, camctl.NewConsole(nil, log.L())).Snapshot(), nil
}

func printTable(out io.Writer, reports []deviceReport) error {
	if len(reports) == 0 {
		fmt.Fprintln(out, "find no device!")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCLASS\tMODEL\tSERIAL\tADDRESS")
	for i, r := range reports {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, r.DeviceClass, r.ModelName, r.SerialNumber, r.IPAddress)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for i, r := range reports {
		if r.Error != "" {
			fmt.Fprintf(out, "\n[%d] %s: %s\n", i, r.ModelName, r.Error)
			continue
		}
		if len(r.Features) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n[%d] %s\n", i, r.ModelName)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FEATURE\tTYPE\tVALUE")
		for _, f := range r.Features {
			v := f.Value.String()
			if f.Error != "" {
				v = "error: " + f.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.Kind, v)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
