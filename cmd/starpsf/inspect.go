package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"starpsf/pkg/starpsf"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <model.psfm>",
	Short: "Print the structure of an encoded PSF model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := readModel(args[0])
		if err != nil {
			return err
		}
		printModel(model)
		return nil
	},
}

func printModel(m *starpsf.Model) {
	poly := m.Poly()
	avg := m.AveragePosition()
	fmt.Println("=== PSF Model ===")
	fmt.Printf("  Formats:     %s\n", strings.Join(starpsf.Formats(), ", "))
	fmt.Printf("  Dimensions:  %d (groups %v, degrees %v)\n", poly.NDim(), poly.Group, poly.Degree)
	fmt.Printf("  Terms:       %d\n", poly.NCoeff())
	fmt.Printf("  Basis size:  %v, step %.3f\n", m.Size(), m.PixStep())
	fmt.Printf("  Reference:   (%.3f, %.3f)\n", avg.X, avg.Y)
	for i, c := range m.Context() {
		fmt.Printf("  Context %d:   offset=%.4f scale=%.4f\n", i, c.Offset, c.Scale)
	}
	for t := 0; t < poly.NCoeff(); t++ {
		fmt.Printf("  Term %2d %v  coeff=% .6e  basis=% .6e\n", t, poly.Exponents(t), poly.Coeff[t], poly.Basis[t])
	}
	fmt.Printf("  Checksum:    %08x\n", m.BasisChecksum())
}
