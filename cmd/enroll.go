package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [photo]",
	Short: "Enroll identities from reference photos",
	Long: `Enroll one person from a reference photo, or a whole directory at once.

Each photo must contain exactly one face. In directory mode the file name
(without extension) becomes the display name: "Jane Doe.jpg" enrolls
"Jane Doe".

Examples:
  # Enroll a single person
  face-attendance enroll photo.jpg --name "Jane Doe"

  # Enroll everyone in a directory (4 concurrent encoder calls)
  face-attendance enroll --dir ./people

  # Use the slower, more accurate CNN detector for enrollment
  DETECTOR_MODE=cnn face-attendance enroll --dir ./people`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Display name for the enrolled person")
	enrollCmd.Flags().String("id", "", "Identity id (defaults to a generated UUID)")
	enrollCmd.Flags().String("dir", "", "Enroll every photo in this directory")
	enrollCmd.Flags().Int("concurrency", 4, "Number of parallel encoder calls in directory mode")
}

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// encodeEnrollment runs the encoder on one photo and enforces the
// exactly-one-face rule.
func encodeEnrollment(ctx context.Context, client *detect.Client, cfg *config.Config, path string) ([]float32, error) {
	imageData, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	opts := detect.Options{
		Mode:         cfg.Detector.Mode,
		NumJitters:   cfg.Detector.NumJitters,
		EncoderModel: cfg.Detector.EncoderModel,
	}
	embedding, faces, err := client.Encode(ctx, imageData, opts)
	if err != nil {
		return nil, err
	}
	if faces == 0 {
		return nil, errors.New("no face found")
	}
	if faces > 1 {
		return nil, fmt.Errorf("found %d faces, need exactly one", faces)
	}
	return embedding, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	if dir == "" && len(args) == 0 {
		return errors.New("provide a photo path or --dir")
	}
	if dir != "" && len(args) > 0 {
		return errors.New("provide either a photo path or --dir, not both")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL...")
	pool, err := storage.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	repo := storage.NewIdentityRepository(pool)
	client := detect.NewClient(cfg.Detector.URL, cfg.Detector.MaxImageSize)
	ctx := context.Background()

	if dir != "" {
		concurrency := mustGetInt(cmd, "concurrency")
		return enrollDirectory(ctx, client, cfg, repo, dir, concurrency)
	}

	path := args[0]
	name := mustGetString(cmd, "name")
	if name == "" {
		return errors.New("--name is required when enrolling a single photo")
	}
	id := mustGetString(cmd, "id")
	if id == "" {
		id = uuid.NewString()
	}

	embedding, err := encodeEnrollment(ctx, client, cfg, path)
	if err != nil {
		return err
	}
	if err := repo.Add(ctx, id, name, embedding); err != nil {
		if errors.Is(err, gallery.ErrDuplicateIdentity) {
			return fmt.Errorf("identity %s is already enrolled", id)
		}
		return fmt.Errorf("persisting identity: %w", err)
	}

	fmt.Printf("Enrolled %s (%s)\n", name, id)
	return nil
}

func enrollDirectory(ctx context.Context, client *detect.Client, cfg *config.Config, repo *storage.IdentityRepository, dir string, concurrency int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	var photos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if photoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			photos = append(photos, entry.Name())
		}
	}
	if len(photos) == 0 {
		fmt.Println("No photos found")
		return nil
	}

	fmt.Printf("Photos to enroll: %d\n\n", len(photos))

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	var successCount int
	failures := make(map[string]error)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, photo := range photos {
		wg.Add(1)
		go func(filename string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			name := strings.TrimSuffix(filename, filepath.Ext(filename))
			embedding, err := encodeEnrollment(ctx, client, cfg, filepath.Join(dir, filename))
			if err != nil {
				mu.Lock()
				failures[filename] = err
				mu.Unlock()
				return
			}

			if err := repo.Add(ctx, uuid.NewString(), name, embedding); err != nil {
				mu.Lock()
				failures[filename] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			successCount++
			mu.Unlock()
		}(photo)
	}
	wg.Wait()

	fmt.Printf("\n\nEnrolled: %d\n", successCount)
	if len(failures) > 0 {
		fmt.Printf("Failed: %d\n", len(failures))
		for filename, err := range failures {
			fmt.Printf("  %s: %v\n", filename, err)
		}
	}
	return nil
}
