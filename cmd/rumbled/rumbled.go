package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/rumble/internal/api"
	"github.com/banshee-data/rumble/internal/db"
	"github.com/banshee-data/rumble/internal/rig"
	"github.com/banshee-data/rumble/internal/t4"
)

var (
	listen        = flag.String("listen", ":8477", "HTTP listen address")
	devicePath    = flag.String("device", "", "Serial port of the motor controller (overrides -device-serial)")
	deviceSerial  = flag.String("device-serial", "440012418", "USB serial number of the motor controller")
	simulate      = flag.Bool("sim", false, "Use a simulated controller wired for the stock configs")
	configDir     = flag.String("config-dir", "config", "Directory holding the axis config files")
	dbFile        = flag.String("db", "rumble.db", "Path to the SQLite database file")
	pulseHz       = flag.Float64("pulse-hz", 0, "Pulse rate override in Hz (0 uses the axis configs)")
	migrationsDir = flag.String("migrations", "migrations", "Directory holding the schema migration files")
)

// openDevice picks the controller transport from the flags. A simulated
// device carries the stock wiring so the shipped configs move something.
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

// ensureSchema brings a fresh database up to the latest migration and
// warns when an existing one is behind rather than refusing to start.
func ensureSchema(database *db.DB) {
	version, dirty, err := database.MigrateVersion(*migrationsDir)
	if err != nil {
		log.Fatalf("Failed to read database schema version: %v", err)
	}

	if version == 0 && !dirty {
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to initialize database schema: %v", err)
		}
		log.Printf("Initialized database schema from %s", *migrationsDir)
		return
	}

	if _, err := database.CheckAndPromptMigrations(*migrationsDir); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// moveRecord converts a rig event into its persisted form.
func moveRecord(ev rig.MoveEvent) db.MoveRecord {
	return db.MoveRecord{
		ID:          ev.ID,
		Axis:        ev.Axis,
		Kind:        string(ev.Kind),
		Origin:      string(ev.Origin),
		StartCounts: ev.StartCounts,
		EndCounts:   ev.EndCounts,
		StartPos:    ev.StartPos,
		EndPos:      ev.EndPos,
		Units:       ev.Units,
		Requested:   ev.Requested,
		Applied:     ev.Applied,
		Clamped:     ev.Clamped,
		RateHz:      ev.RateHz,
		DurationMS:  ev.Duration.Seconds() * 1000,
		CreatedAt:   ev.Time,
	}
}

// Main
func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	dev, err := openDevice()
	if err != nil {
		log.Fatalf("Failed to open motor controller: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ensureSchema(database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rg, err := rig.Load(ctx, dev, *configDir, rig.Options{PulseHz: *pulseHz})
	if err != nil {
		log.Fatalf("Failed to load rig from %s: %v", *configDir, err)
	}
	// the rig owns the device handle; Close releases both
	defer rg.Close()

	for _, st := range rg.Statuses() {
		log.Printf("Axis %s at %d counts (%g %s), pulse clock %g Hz",
			st.Name, st.Counts, st.Position, st.Units, st.ClockHz)
	}

	// Create a wait group for the HTTP server and move recorder routines
	var wg sync.WaitGroup

	// subscribe to move events and persist them
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := rg.Subscribe()
		defer rg.Unsubscribe(id)
		for {
			select {
			case ev, ok := <-c:
				if !ok {
					log.Printf("recorder routine terminated")
					return
				}
				if err := database.RecordMove(context.Background(), moveRecord(ev)); err != nil {
					log.Printf("failed to record move %s: %v", ev.ID, err)
				}
			case <-ctx.Done():
				log.Printf("recorder routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		s := api.NewServer(rg, database)
		mux := s.ServeMux()

		// mount the admin and debug routes (accessible only from
		// localhost or over Tailscale)
		s.AttachDebugRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
