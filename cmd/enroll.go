package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/enroll"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
	"github.com/harhit22/new-auto-attendace/internal/imaging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll DIR",
	Short: "Enrol an identity from a directory of images",
	Long: `Compute descriptors for every image in DIR and store them as one identity.

Images that are too dark, blurry or contain no face are skipped and listed
at the end. With --append the new descriptors are added to the existing ones.

Examples:
  faceverify enroll --id 42 --name "Jan Novák" --org acme ./photos/jan
  faceverify enroll --id 42 --name "Jan Novák" --family heavy --append ./more`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp"}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("id", "", "Identity ID (generated when empty)")
	enrollCmd.Flags().String("name", "", "Display name (required)")
	enrollCmd.Flags().String("org", "", "Organisation code")
	enrollCmd.Flags().String("family", "light", "Descriptor family: light or heavy")
	enrollCmd.Flags().Bool("append", false, "Add to the existing descriptors instead of replacing them")
	_ = enrollCmd.MarkFlagRequired("name")
}

// listImages returns the image files of dir in name order.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	family, err := face.ParseFamily(mustGetString(cmd, "family"))
	if err != nil {
		return err
	}

	paths, err := listImages(args[0])
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images found in %s", args[0])
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	// Undecodable files stay as empty frames so they show up as skipped.
	images := make([]face.Frame, len(paths))
	for i, p := range paths {
		images[i] = face.Frame{Index: i}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if frame, err := imaging.DecodeFrame(i, data, constants.MaxImageSize); err == nil {
			images[i] = frame
		}
	}

	req := enroll.Request{
		IdentityID: mustGetString(cmd, "id"),
		Name:       mustGetString(cmd, "name"),
		Org:        facematch.NormalizeOrgCode(mustGetString(cmd, "org")),
		Family:     family,
		Images:     images,
	}
	if req.IdentityID != "" && mustGetBool(cmd, "append") {
		if existing, ok := a.gallery.Snapshot().Get(req.IdentityID); ok {
			req.Existing = &existing
		}
	}

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	report, err := a.enroller.Enroll(ctx, req, func(done, _ int) {
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	fmt.Println()

	for _, s := range report.Skipped {
		fmt.Printf("  skipped %s: %s\n", filepath.Base(paths[s.Index]), s.Reason)
	}
	if err != nil {
		return err
	}

	id := report.Identity
	fmt.Printf("\nEnrolled %s (%s)\n", id.Name, id.ID)
	fmt.Printf("  Family:      %s\n", id.Family)
	if id.Org != "" {
		fmt.Printf("  Org:         %s\n", id.Org)
	}
	fmt.Printf("  Added:       %d\n", report.Added)
	fmt.Printf("  Descriptors: %d\n", report.Total)
	fmt.Printf("  Skipped:     %d\n", len(report.Skipped))
	return nil
}
