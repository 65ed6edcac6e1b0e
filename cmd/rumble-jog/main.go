package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/rumble/internal/jog"
	"github.com/banshee-data/rumble/internal/rig"
	"github.com/banshee-data/rumble/internal/t4"
)

var (
	devicePath   = flag.String("device", "", "Serial port of the motor controller (overrides -device-serial)")
	deviceSerial = flag.String("device-serial", "440012418", "USB serial number of the motor controller")
	simulate     = flag.Bool("sim", false, "Use a simulated controller wired for the stock configs")
	configDir    = flag.String("config-dir", "config", "Directory holding the axis config files")
	pulseHz      = flag.Float64("pulse-hz", 0, "Pulse rate override in Hz (0 uses the axis configs)")
	homeStep     = flag.Int64("home-step", -10, "Homing probe step in counts (sign sets the direction)")
	homeTries    = flag.Int("home-tries", 0, "Homing probe attempts before giving up (0 uses the default)")
)

func openDevice() (t4.RegisterReadWriter, error) {
	if *simulate {
		sim := t4.NewSimDevice()
		sim.Wire(7, 5, 9)
		sim.Wire(6, 4, 8)
		return sim, nil
	}
	if *devicePath != "" {
		return t4.Open(*devicePath, t4.PortOptions{})
	}
	return t4.OpenBySerialNumber(*deviceSerial, t4.PortOptions{})
}

// Main
func main() {
	flag.Parse()

	if *homeStep == 0 {
		log.Fatal("home-step must be nonzero")
	}

	dev, err := openDevice()
	if err != nil {
		log.Fatalf("Failed to open motor controller: %v", err)
	}

	rg, err := rig.Load(context.Background(), dev, *configDir, rig.Options{PulseHz: *pulseHz})
	if err != nil {
		log.Fatalf("Failed to load rig from %s: %v", *configDir, err)
	}
	defer rg.Close()

	model := jog.New(rg, jog.Options{
		HomeStep:  *homeStep,
		HomeTries: *homeTries,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
