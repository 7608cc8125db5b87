// Package cmd holds the CLI subcommands that run without the API server.
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/uvcnode/internal/camera"
	"github.com/smazurov/uvcnode/internal/cameras"
	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/internal/logging"
)

// DefaultDriver is the backend used when --driver is not given.
const DefaultDriver = "v4l2"

func openDriver(name string) (driver.Driver, error) {
	drv, err := driver.Open(name)
	if err != nil {
		return nil, fmt.Errorf("driver %q (available: %v): %w", name, driver.Names(), err)
	}
	return drv, nil
}

// CreateScanCmd creates the scan command.
func CreateScanCmd() *cobra.Command {
	var (
		driverName string
		open       bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List attached USB video devices",
		Long: `Lists every attached USB video device with the modes it offers. ` +
			`With --open each device is also opened to check that it can be claimed.`,
		Args: cobra.NoArgs,
		// Skip the server setup the root command runs before every command.
		PersistentPreRun: func(*cobra.Command, []string) {},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			drv, err := openDriver(driverName)
			if err != nil {
				return err
			}

			devs, err := cameras.ListDevices(drv)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(devs) == 0 {
				fmt.Fprintln(out, "No devices found")
				return nil
			}
			printDevices(out, devs)

			if open {
				fmt.Fprintln(out)
				printAvailability(out, camera.Scan(drv, camera.WithLogger(logging.GetLogger("scan"))))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&driverName, "driver", DefaultDriver, "Capture backend (v4l2, sim)")
	cmd.Flags().BoolVar(&open, "open", false, "Open each device and report whether it is available")
	return cmd
}

func printDevices(w io.Writer, devs []cameras.Device) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VID:PID\tBUS\tADDR\tSERIAL\tPRODUCT\tMODES")
	for _, d := range devs {
		fmt.Fprintf(tw, "%04x:%04x\t%03d\t%03d\t%s\t%s\t%d\n",
			d.VendorID, d.ProductID, d.BusNumber, d.Address, orDash(d.SerialNumber), orDash(d.Product), len(d.Modes))
	}
	tw.Flush()
}

func printAvailability(w io.Writer, cams []*camera.Camera) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VID:PID\tSERIAL\tAVAILABLE\tERROR")
	for _, c := range cams {
		d, _ := c.Descriptor()
		fmt.Fprintf(tw, "%04x:%04x\t%s\t%t\t%s\n", d.VendorID, d.ProductID, orDash(d.SerialNumber), c.IsAvailable(), orDash(c.Err()))
		c.Close()
		c.Release()
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
