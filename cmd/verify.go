package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/imaging"
	"github.com/harhit22/new-auto-attendace/internal/verify"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify --identity ID [frame files...]",
	Short: "Verify a burst of frames against an enrolled identity",
	Long: `Run the full verification pipeline on local image files.

Frames are used in the given order. With fewer frames than the liveness
minimum, pass a single frame or --still to run single-frame mode.

Examples:
  # Verify a 10 frame burst
  faceverify verify --identity 42 burst/*.jpg

  # Verify one still image
  faceverify verify --identity 42 --still selfie.jpg

  # Blink challenge shown at frame 5
  faceverify verify --identity 42 --challenge 5 burst/*.jpg`,
	RunE: runVerify,
}

var identifyCmd = &cobra.Command{
	Use:   "identify [frame files...]",
	Short: "Identify who is in a burst of frames",
	Long: `Run the pipeline on local image files and search the whole gallery,
optionally restricted to one organisation.

Examples:
  faceverify identify --org acme burst/*.jpg
  faceverify identify --family heavy --still selfie.jpg`,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(identifyCmd)

	verifyCmd.Flags().String("identity", "", "Identity ID to verify against (required)")
	_ = verifyCmd.MarkFlagRequired("identity")

	identifyCmd.Flags().String("org", "", "Only search identities of this organisation")
	identifyCmd.Flags().String("family", "light", "Descriptor family: light or heavy")

	for _, c := range []*cobra.Command{verifyCmd, identifyCmd} {
		c.Flags().String("still", "", "Separately captured still image used for matching")
		c.Flags().Int("challenge", 0, "Frame index at which the user was asked to blink")
	}
}

// loadRequest decodes the frame files and the optional still.
func loadRequest(cmd *cobra.Command, paths []string) (verify.Request, error) {
	if len(paths) > constants.MaxBurstFrames {
		return verify.Request{}, fmt.Errorf("at most %d frames are accepted, got %d", constants.MaxBurstFrames, len(paths))
	}

	req := verify.Request{ChallengeIndex: optionalInt(cmd, "challenge")}
	for i, p := range paths {
		frame, err := readFrame(i, p)
		if err != nil {
			return req, err
		}
		req.Frames = append(req.Frames, frame)
	}

	if still := mustGetString(cmd, "still"); still != "" {
		frame, err := readFrame(-1, still)
		if err != nil {
			return req, err
		}
		req.Still = &frame
	}
	if len(req.Frames) == 0 && req.Still == nil {
		return req, errors.New("provide frame files or --still")
	}
	return req, nil
}

func readFrame(index int, path string) (face.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return face.Frame{}, fmt.Errorf("read %s: %w", path, err)
	}
	frame, err := imaging.DecodeFrame(index, data, constants.MaxImageSize)
	if err != nil {
		return face.Frame{}, fmt.Errorf("%s: %w", path, err)
	}
	return frame, nil
}

// printResult writes the result as indented JSON and turns a rejection into
// a non-nil error so the exit code reflects the outcome.
func printResult(res face.VerificationResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Accepted {
		return fmt.Errorf("rejected at %s gate: %s", res.Gate, res.Reason)
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	req, err := loadRequest(cmd, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	id := mustGetString(cmd, "identity")
	claimed, ok := a.gallery.Snapshot().Get(id)
	if !ok {
		return fmt.Errorf("identity %s is not enrolled", id)
	}
	req.Claimed = &claimed

	return printResult(a.pipeline.Verify(ctx, req))
}

func runIdentify(cmd *cobra.Command, args []string) error {
	req, err := loadRequest(cmd, args)
	if err != nil {
		return err
	}
	family, err := face.ParseFamily(mustGetString(cmd, "family"))
	if err != nil {
		return err
	}
	req.Family = family
	req.Org = mustGetString(cmd, "org")

	ctx := context.Background()
	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	return printResult(a.pipeline.Verify(ctx, req))
}
