package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/mbocsi/qnob/sim"
)

func main() {
	var (
		addr    string
		name    string
		verbose bool
	)
	flag.StringVarP(&addr, "addr", "a", "0.0.0.0:2323", "listen address")
	flag.StringVarP(&name, "name", "n", "QNOB-Sim", "device name reported to getDeviceName")
	flag.BoolVarP(&verbose, "verbose", "v", false, "log every received command")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	knob := sim.NewKnob(addr, name)
	if err := knob.Listen(); err != nil {
		slog.Error("Failed to listen", "addr", addr, "error", err)
		os.Exit(1)
	}
	go knob.Serve()

	// Typed lines drive the knob: a number turns it, "p" presses it, anything
	// else is sent raw.
	go func() {
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			line := strings.TrimSpace(in.Text())
			switch {
			case line == "":
			case line == "p":
				knob.Press()
			default:
				if v, err := strconv.Atoi(line); err == nil {
					if err := knob.Turn(v); err != nil {
						fmt.Fprintln(os.Stderr, err)
					}
					continue
				}
				knob.Broadcast(line)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	knob.Shutdown()
}
