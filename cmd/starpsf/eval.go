package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"starpsf/pkg/starpsf"
)

var (
	evalX        float64
	evalY        float64
	evalSnapshot string
	evalGrid     int
)

var evalCmd = &cobra.Command{
	Use:   "eval <model.psfm>",
	Short: "Evaluate a PSF model at a position",
	Long: `Reconstructs the PSF image at (x, y), prints its statistics and
optionally writes a PNG or JPEG snapshot. With --grid N the model is
evaluated on an N x N grid spanning its context range.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().Float64Var(&evalX, "x", 0, "first context coordinate")
	evalCmd.Flags().Float64Var(&evalY, "y", 0, "second context coordinate")
	evalCmd.Flags().StringVar(&evalSnapshot, "snapshot", "", "write a snapshot image (.png or .jpg)")
	evalCmd.Flags().IntVar(&evalGrid, "grid", 0, "evaluate on an N x N grid")
}

func runEval(cmd *cobra.Command, args []string) error {
	model, err := readModel(args[0])
	if err != nil {
		return err
	}

	if evalGrid > 0 {
		return runEvalGrid(cmd, model)
	}

	img, err := model.Evaluate([]float64{evalX, evalY})
	if err != nil {
		return err
	}
	peak, px, py := img.Peak()
	fmt.Printf("=== PSF at (%.2f, %.2f) ===\n", evalX, evalY)
	fmt.Printf("  Size:   %d x %d (origin %d,%d)\n", img.Width, img.Height, img.X0, img.Y0)
	fmt.Printf("  Flux:   %.5f\n", img.Sum())
	fmt.Printf("  Peak:   %.5f at (%d, %d)\n", peak, px+img.X0, py+img.Y0)

	if evalSnapshot != "" {
		if err := writeSnapshot(evalSnapshot, img, fmt.Sprintf("PSF at (%.1f, %.1f)", evalX, evalY)); err != nil {
			return err
		}
		fmt.Printf("  Image:  %s\n", evalSnapshot)
	}
	return nil
}

func runEvalGrid(cmd *cobra.Command, model *starpsf.Model) error {
	norm := model.Context()
	if len(norm) != 2 {
		return fmt.Errorf("%w: grid evaluation needs 2 context dimensions, model has %d", starpsf.ErrConfiguration, len(norm))
	}
	lo := func(n starpsf.ContextNorm) float64 { return n.Offset - n.Scale/2 }
	hi := func(n starpsf.ContextNorm) float64 { return n.Offset + n.Scale/2 }
	positions := starpsf.RegularGrid(lo(norm[0]), hi(norm[0]), lo(norm[1]), hi(norm[1]), evalGrid)
	images, err := starpsf.EvaluateGrid(cmd.Context(), model, positions)
	if err != nil {
		return err
	}
	fmt.Printf("=== PSF grid %dx%d ===\n", evalGrid, evalGrid)
	for i, img := range images {
		peak, _, _ := img.Peak()
		fmt.Printf("  (%9.2f, %9.2f)  flux=%.5f  peak=%.5f\n", positions[i][0], positions[i][1], img.Sum(), peak)
	}
	return nil
}

func writeSnapshot(path string, img *starpsf.Image, label string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") {
		err = starpsf.RenderJPEG(f, img, label)
	} else {
		err = starpsf.RenderPNG(f, img, label)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("render snapshot: %w", err)
	}
	return f.Close()
}
