package main

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"starpsf/pkg/fitsio"
	"starpsf/pkg/modelstore"
	"starpsf/pkg/starpsf"
)

var (
	fitParamsPath string
	fitOverrides  []string
	fitOutput     string
	fitStorePath  string
	fitExtension  int
)

var fitCmd = &cobra.Command{
	Use:   "fit <vignettes.fits> <catalog.yaml>",
	Short: "Fit a PSF model from a vignette cube and its star catalog",
	Long: `Loads one vignette per plane of the FITS cube, tags each with the
context covariates of the matching catalog star, fits the pixel basis and
writes the encoded model.

Example:
  starpsf fit stars.fits stars.yaml -o field.psfm --set group_degrees=3`,
	Args: cobra.ExactArgs(2),
	RunE: runFit,
}

func init() {
	fitCmd.Flags().StringVarP(&fitParamsPath, "params", "p", "", "YAML parameter file")
	fitCmd.Flags().StringArrayVar(&fitOverrides, "set", nil, "parameter override key=value (repeatable)")
	fitCmd.Flags().StringVarP(&fitOutput, "output", "o", "model.psfm", "encoded model output path")
	fitCmd.Flags().StringVar(&fitStorePath, "store", "", "also archive the model in this SQLite database")
	fitCmd.Flags().IntVar(&fitExtension, "ext", 0, "extension the model describes")
}

func loadParams() (starpsf.Params, error) {
	params := starpsf.NewParams()
	if fitParamsPath != "" {
		var err error
		if params, err = starpsf.LoadParams(fitParamsPath); err != nil {
			return params, err
		}
	}
	if err := params.ApplyOverrides(fitOverrides); err != nil {
		return params, err
	}
	return params, params.Validate()
}

func runFit(cmd *cobra.Command, args []string) error {
	params, err := loadParams()
	if err != nil {
		return err
	}
	spec, err := params.ContextSpec()
	if err != nil {
		return err
	}

	cube, err := fitsio.Read(args[0])
	if err != nil {
		return fmt.Errorf("reading vignettes: %w", err)
	}
	var cat catalog
	if err := loadYAML(args[1], &cat); err != nil {
		return err
	}
	if len(cat.Stars) != cube.Depth() {
		return fmt.Errorf("%w: %d catalog stars but %d vignettes", starpsf.ErrConfiguration, len(cat.Stars), cube.Depth())
	}
	field, err := buildField(&cat, params.ContextNSnap)
	if err != nil {
		return err
	}

	opts := append(params.SetOptions(), starpsf.WithLogger(logger))
	set, err := starpsf.NewSampleSetForContext(spec, params.PSFSize[0], params.PSFSize[1], opts...)
	if err != nil {
		return err
	}
	set.FWHM = cat.FWHM
	if err := loadSamples(set, spec, &cat, cube, params.ProfAccuracy); err != nil {
		return err
	}
	fields := []*starpsf.Field{field}
	if err := starpsf.Count(fields, set, starpsf.CountLoaded|starpsf.CountAccepted); err != nil {
		return err
	}

	poly, err := spec.NewPoly()
	if err != nil {
		return err
	}
	engine := starpsf.NewPixelFitter(params, logger)
	fit, err := engine.Fit(cmd.Context(), set.Builder(), poly)
	if err != nil {
		return fmt.Errorf("fitting PSF: %w", err)
	}
	if err := starpsf.Stats(fields, set); err != nil {
		return err
	}

	model, err := starpsf.NewModel(fit, meanPosition(set))
	if err != nil {
		return err
	}
	if err := writeModel(fitOutput, model); err != nil {
		return err
	}

	fmt.Printf("=== PSF Fit: %s ===\n", field.RCatName)
	fmt.Printf("  Samples:       %d\n", set.Len())
	fmt.Printf("  Rejected:      %d without flux, %d without valid pixels\n", set.Rejected.SN, set.Rejected.Pixels)
	fmt.Printf("  Model:         %s\n", model)
	var chi2 float64
	for _, s := range set.Samples() {
		chi2 += s.Chi2
	}
	fmt.Printf("  Mean chi2:     %.3f\n", chi2/float64(max(1, set.Len())))
	fmt.Printf("  Written:       %s\n", fitOutput)

	if fitStorePath != "" {
		store, err := modelstore.Open(fitStorePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		id, err := store.Save(cmd.Context(), field.RTCatName, fitExtension, model)
		if err != nil {
			return err
		}
		fmt.Printf("  Archived:      %s\n", id)
	}
	return nil
}

// loadSamples fills set from the catalog and cube, normalizing every
// covariate over its observed range. Vignettes are cut to the set's
// vignette size around their center.
func loadSamples(set *starpsf.SampleSet, spec *starpsf.ContextSpec, cat *catalog, cube *fitsio.Image, profAccuracy float32) error {
	names := spec.Names()
	w, h := set.VigSize()
	raw := make([][]float64, len(cat.Stars))
	for i, star := range cat.Stars {
		raw[i] = make([]float64, len(names))
		for c, name := range names {
			v, err := star.rawContext(name)
			if err != nil {
				return err
			}
			raw[i][c] = v
		}
	}
	for c := range names {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := range raw {
			lo = math.Min(lo, raw[i][c])
			hi = math.Max(hi, raw[i][c])
		}
		if err := set.SetContextNorm(c, starpsf.NormFromRange(lo, hi)); err != nil {
			return err
		}
	}

	for i, star := range cat.Stars {
		if star.Norm <= 0 {
			set.Rejected.SN++
			continue
		}
		s, err := set.Append()
		if err != nil {
			return fmt.Errorf("star %d: %w", i, err)
		}
		s.CatIndex = 0
		s.ExtIndex = star.Ext
		s.SetX(star.X)
		s.SetY(star.Y)
		s.Norm = star.Norm
		s.BackNoise2 = star.BackNoise2
		s.Gain = star.Gain
		s.FluxRad = star.FluxRad
		vig, err := starpsf.CropVignette(cube.Planes[i], cube.Width, cube.Height, w, h)
		if err != nil {
			return fmt.Errorf("star %d: %w", i, err)
		}
		if err := s.SetVig(vig); err != nil {
			return fmt.Errorf("star %d: %w", i, err)
		}
		if s.BackNoise2 <= 0 {
			est := starpsf.EstimateBackground(s.Vig, w, h)
			s.BackNoise2 = est.Variance()
			logger.Debug("estimated background noise",
				zap.Int("star", i),
				zap.Float64("sigma", est.Sigma),
				zap.Int("iterations", est.NumIterations))
		}
		for c := range names {
			set.SetContext(s, c, raw[i][c])
		}
		set.FinalizeSample(s, profAccuracy)
		if !hasWeight(s.VigWeight) {
			set.Rejected.Pixels++
			if _, err := set.RemoveAt(set.Len() - 1); err != nil {
				return err
			}
		}
	}
	set.Trim()
	logger.Debug("loaded samples",
		zap.Int("samples", set.Len()),
		zap.Int("capacity", set.Cap()),
		zap.Int("rejected_sn", set.Rejected.SN),
		zap.Int("rejected_pixels", set.Rejected.Pixels))
	return nil
}

func hasWeight(w []float32) bool {
	for _, v := range w {
		if v > 0 {
			return true
		}
	}
	return false
}

func meanPosition(set *starpsf.SampleSet) starpsf.Point2d {
	var p starpsf.Point2d
	if set.Empty() {
		return p
	}
	for _, s := range set.Samples() {
		p.X += s.X
		p.Y += s.Y
	}
	p.X /= float64(set.Len())
	p.Y /= float64(set.Len())
	return p
}

func writeModel(path string, m *starpsf.Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := starpsf.Encode(f, m); err != nil {
		f.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	return f.Close()
}

func readModel(path string) (*starpsf.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	m, err := starpsf.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}
