package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognize"
	"github.com/kozaktomas/face-attendance/internal/storage"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <photo>",
	Short: "Recognize faces on a single photo",
	Long: `Run one recognition pass on a photo against the enrolled gallery and
print the per-face results. Attendance is not logged unless --log is set.

Examples:
  # Who is on this frame?
  face-attendance recognize frame.jpg

  # Stricter matching
  face-attendance recognize frame.jpg --tolerance 0.5

  # Also log attendance events, same as the API would
  face-attendance recognize frame.jpg --log --camera entrance`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("tolerance", 0, "Match tolerance override (0 = use FACE_TOLERANCE)")
	recognizeCmd.Flags().Bool("log", false, "Persist attendance events for recognized identities")
	recognizeCmd.Flags().String("camera", "cli", "Camera id recorded with logged events")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	tolerance := cfg.Recognition.Tolerance
	if override := mustGetFloat64(cmd, "tolerance"); override > 0 {
		tolerance = override
	}
	logEvents := mustGetBool(cmd, "log")
	cameraID := mustGetString(cmd, "camera")

	imageData, err := os.ReadFile(args[0]) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	pool, err := storage.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()

	store := gallery.NewStore(cfg.Detector.Dim)
	identityRepo := storage.NewIdentityRepository(pool)
	if err := identityRepo.LoadGallery(ctx, store); err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}
	fmt.Printf("Gallery loaded with %d identities\n", store.Len())

	debouncer := recognize.NewDebouncer(cfg.Recognition.DebounceWindow)
	attendanceRepo := storage.NewAttendanceRepository(pool)
	if logEvents {
		if err := primeDebouncer(ctx, attendanceRepo, debouncer); err != nil {
			return err
		}
	}

	detector := detect.NewClient(cfg.Detector.URL, cfg.Detector.MaxImageSize)
	session := recognize.NewSession(detector, store, debouncer, recognize.Params{
		Tolerance: tolerance,
		DetectorOpts: detect.Options{
			Mode:         cfg.Detector.Mode,
			NumJitters:   cfg.Detector.NumJitters,
			EncoderModel: cfg.Detector.EncoderModel,
		},
	})

	outcome, err := session.Recognize(ctx, imageData)
	if err != nil {
		if errors.Is(err, detect.ErrDecode) {
			return fmt.Errorf("%s is not a decodable image", args[0])
		}
		return fmt.Errorf("recognition failed: %w", err)
	}

	fmt.Printf("\nFaces: %d, recognized: %d, unknown: %d\n", outcome.TotalFaces, outcome.Recognized, outcome.Unknown)
	for _, m := range outcome.Matches {
		if m.Recognized {
			fmt.Printf("  face %d: %s (%s) distance=%.3f confidence=%.3f\n",
				m.FaceIndex, m.DisplayName, m.IdentityID, m.Distance, m.Confidence)
		} else {
			fmt.Printf("  face %d: unknown, nearest distance=%.3f\n", m.FaceIndex, m.Distance)
		}
	}

	if !logEvents {
		return nil
	}

	for _, m := range outcome.LoggedMatches() {
		event := &storage.AttendanceEvent{
			IdentityID: m.IdentityID,
			CameraID:   cameraID,
			Confidence: m.Confidence,
		}
		if err := attendanceRepo.Insert(ctx, event); err != nil {
			return fmt.Errorf("persisting attendance event for %s: %w", m.IdentityID, err)
		}
		fmt.Printf("Logged attendance: %s at %s\n", m.DisplayName, event.CreatedAt.Format("15:04:05"))
	}
	if len(outcome.LoggedIdentities) == 0 && outcome.Recognized > 0 {
		fmt.Println("No new attendance events (all within the debounce window)")
	}
	return nil
}
