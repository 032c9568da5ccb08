package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage enrolled identities",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	RunE:  runGalleryList,
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an enrolled identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryRemove,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the gallery to a YAML file",
	Long: `Export all enrolled identities, embeddings included, to a YAML file.
The file can be imported into another instance with gallery import.`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryExport,
}

var galleryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import identities from a YAML export",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryImport,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryRemoveCmd)
	galleryCmd.AddCommand(galleryExportCmd)
	galleryCmd.AddCommand(galleryImportCmd)

	galleryImportCmd.Flags().Bool("skip-existing", false, "Skip identities that are already enrolled instead of failing")
}

// galleryExport is the YAML document written by export and read by import.
type galleryExport struct {
	Identities []exportedIdentity `yaml:"identities"`
}

type exportedIdentity struct {
	ID          string    `yaml:"id"`
	DisplayName string    `yaml:"display_name"`
	Embedding   []float32 `yaml:"embedding,flow"`
}

func connectIdentityRepo() (*storage.Pool, *storage.IdentityRepository, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := storage.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, storage.NewIdentityRepository(pool), nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	pool, repo, err := connectIdentityRepo()
	if err != nil {
		return err
	}
	defer pool.Close()

	entries, err := repo.All(context.Background())
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}
	fmt.Printf("Enrolled identities: %d\n\n", len(entries))
	for _, entry := range entries {
		fmt.Printf("  %-36s  %s\n", entry.ID, entry.DisplayName)
	}
	return nil
}

func runGalleryRemove(cmd *cobra.Command, args []string) error {
	pool, repo, err := connectIdentityRepo()
	if err != nil {
		return err
	}
	defer pool.Close()

	id := args[0]
	if err := repo.Remove(context.Background(), id); err != nil {
		if errors.Is(err, gallery.ErrNotFound) {
			return fmt.Errorf("identity %s is not enrolled", id)
		}
		return fmt.Errorf("removing identity: %w", err)
	}
	fmt.Printf("Removed %s\n", id)
	return nil
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	pool, repo, err := connectIdentityRepo()
	if err != nil {
		return err
	}
	defer pool.Close()

	entries, err := repo.All(context.Background())
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}

	export := galleryExport{Identities: make([]exportedIdentity, 0, len(entries))}
	for _, entry := range entries {
		export.Identities = append(export.Identities, exportedIdentity{
			ID:          entry.ID,
			DisplayName: entry.DisplayName,
			Embedding:   entry.Embedding,
		})
	}

	data, err := yaml.Marshal(&export)
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	if err := os.WriteFile(args[0], data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", args[0], err)
	}

	fmt.Printf("Exported %d identities to %s\n", len(export.Identities), args[0])
	return nil
}

func runGalleryImport(cmd *cobra.Command, args []string) error {
	skipExisting := mustGetBool(cmd, "skip-existing")

	data, err := os.ReadFile(args[0]) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var export galleryExport
	if err := yaml.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}
	if len(export.Identities) == 0 {
		fmt.Println("Nothing to import")
		return nil
	}

	pool, repo, err := connectIdentityRepo()
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := context.Background()
	var imported, skipped int
	for _, entry := range export.Identities {
		id := entry.ID
		if id == "" {
			id = uuid.NewString()
		}
		err := repo.Add(ctx, id, entry.DisplayName, entry.Embedding)
		if errors.Is(err, gallery.ErrDuplicateIdentity) {
			if skipExisting {
				skipped++
				continue
			}
			return fmt.Errorf("identity %s is already enrolled (use --skip-existing)", id)
		}
		if err != nil {
			return fmt.Errorf("importing %s: %w", id, err)
		}
		imported++
	}

	fmt.Printf("Imported %d identities", imported)
	if skipped > 0 {
		fmt.Printf(", skipped %d existing", skipped)
	}
	fmt.Println()
	return nil
}
