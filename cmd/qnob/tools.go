package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbocsi/qnob/config"
	"github.com/mbocsi/qnob/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports a knob could be attached to",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var scanPort int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the local /24 for knobs accepting TCP connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		port := scanPort
		if port == 0 {
			port = cfg.Device.TCPPort
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		hosts, err := transport.ScanSubnet(ctx, port, cfg.Discovery.ScanTimeout())
		if err != nil {
			return err
		}
		for _, h := range hosts {
			fmt.Fprintln(cmd.OutOrStdout(), h)
		}
		return nil
	},
}

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Browse mDNS for knobs announcing themselves",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		found, err := transport.Discover(cmd.Context(), cfg.Discovery.MDNSService, discoverTimeout)
		if err != nil {
			return err
		}
		for _, d := range found {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s:%d\n", d.Name, d.Host, d.Port)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Print the effective configuration as JSON, writing the defaults first if the file does not exist.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.MQTT.Password != "" {
			cfg.MQTT.Password = "********"
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

func init() {
	scanCmd.Flags().IntVarP(&scanPort, "port", "p", 0, "TCP port to probe (default device.tcp_port)")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "how long to wait for answers")
	rootCmd.AddCommand(portsCmd, scanCmd, discoverCmd, configCmd)
}

func loadConfig() (config.Config, error) {
	cfg, created, err := config.Ensure(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if created {
		fmt.Fprintln(os.Stderr, "Wrote default configuration to", configPath)
	}
	return cfg, nil
}
