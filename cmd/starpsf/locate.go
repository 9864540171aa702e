package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"starpsf/pkg/starpsf"
)

var locateCmd = &cobra.Command{
	Use:   "locate <catalog.yaml>",
	Short: "Compute the mean position, pixel scale and radius of a field",
	Long: `Reads the extensions of a catalog file and prints the field statistics
derived from their coordinate mappings. Stars in the catalog are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cat catalog
		if err := loadYAML(args[0], &cat); err != nil {
			return err
		}
		field, err := buildField(&cat, starpsf.DefaultNSnap)
		if err != nil {
			return err
		}
		fmt.Printf("=== Field %s ===\n", field.RCatName)
		fmt.Printf("  Extensions:  %d\n", len(field.Extensions))
		fmt.Printf("  Detections:  %d\n", field.NDet)
		fmt.Printf("  Mean pos:    %v\n", field.MeanPos)
		fmt.Printf("  Pixel scale: %v\n", field.MeanScale)
		fmt.Printf("  Max radius:  %.6f\n", field.MaxRadius)
		return nil
	},
}
