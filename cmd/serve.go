package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognize"
	"github.com/kozaktomas/face-attendance/internal/storage"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Face Attendance API server.
The server accepts camera frames on /api/v1/recognize, manages enrolled
identities and serves the attendance log.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// primeDebouncer seeds debounce state from persisted attendance events, so a
// restart does not re-log everyone who badged in within the last window.
func primeDebouncer(ctx context.Context, repo *storage.AttendanceRepository, debouncer *recognize.Debouncer) error {
	since := time.Now().Add(-debouncer.Window())
	last, err := repo.LastLogged(ctx, since)
	if err != nil {
		return fmt.Errorf("loading recent attendance events: %w", err)
	}
	for id, at := range last {
		debouncer.Prime(id, at)
	}
	if len(last) > 0 {
		fmt.Printf("Debounce state restored for %d identities\n", len(last))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := storage.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()

	store := gallery.NewStore(cfg.Detector.Dim)
	if cfg.Recognition.HNSWThreshold > 0 {
		store.EnableIndex(cfg.Recognition.HNSWThreshold)
	}
	identityRepo := storage.NewIdentityRepository(pool)
	if err := identityRepo.LoadGallery(ctx, store); err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}
	fmt.Printf("Gallery loaded with %d identities\n", store.Len())

	debouncer := recognize.NewDebouncer(cfg.Recognition.DebounceWindow)
	attendanceRepo := storage.NewAttendanceRepository(pool)
	if err := primeDebouncer(ctx, attendanceRepo, debouncer); err != nil {
		return err
	}

	detector := detect.NewClient(cfg.Detector.URL, cfg.Detector.MaxImageSize)
	session := recognize.NewSession(detector, store, debouncer, recognize.Params{
		Tolerance: cfg.Recognition.Tolerance,
		DetectorOpts: detect.Options{
			Mode:         cfg.Detector.Mode,
			NumJitters:   cfg.Detector.NumJitters,
			EncoderModel: cfg.Detector.EncoderModel,
		},
		MaxConcurrent: cfg.Recognition.MaxConcurrent,
	})

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, session, store, debouncer, detector, pool)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
