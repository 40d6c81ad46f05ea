package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/barnettlynn/scanbridge/pkg/scanner"
	"github.com/barnettlynn/scanbridge/pkg/scanproto"
)

// colorModeValue, qualityValue, and paperSizeValue are pflag.Value
// implementations for the scan command's enumerated flags, so an
// invalid choice is rejected at parse time with the flag's own usage
// message rather than as a generic error once the scan has already started.
type colorModeValue struct {
	mode scanproto.ColorMode
	text string
}

func newColorModeValue(def string) *colorModeValue {
	v := &colorModeValue{}
	_ = v.Set(def)
	return v
}

func (v *colorModeValue) String() string { return v.text }
func (v *colorModeValue) Type() string   { return "string" }
func (v *colorModeValue) Set(s string) error {
	mode, err := parseColorMode(s)
	if err != nil {
		return err
	}
	v.mode, v.text = mode, s
	return nil
}

type qualityValue struct {
	quality scanproto.Quality
	text    string
}

func newQualityValue(def string) *qualityValue {
	v := &qualityValue{}
	_ = v.Set(def)
	return v
}

func (v *qualityValue) String() string { return v.text }
func (v *qualityValue) Type() string   { return "string" }
func (v *qualityValue) Set(s string) error {
	q, err := parseQuality(s)
	if err != nil {
		return err
	}
	v.quality, v.text = q, s
	return nil
}

type paperSizeValue struct {
	size scanproto.PaperSize
	text string
}

func newPaperSizeValue(def string) *paperSizeValue {
	v := &paperSizeValue{}
	_ = v.Set(def)
	return v
}

func (v *paperSizeValue) String() string { return v.text }
func (v *paperSizeValue) Type() string   { return "string" }
func (v *paperSizeValue) Set(s string) error {
	ps, err := parsePaperSize(s)
	if err != nil {
		return err
	}
	v.size, v.text = ps, s
	return nil
}

var (
	_ pflag.Value = (*colorModeValue)(nil)
	_ pflag.Value = (*qualityValue)(nil)
	_ pflag.Value = (*paperSizeValue)(nil)
)

func newScanCmd() *cobra.Command {
	var (
		output             string
		color              = newColorModeValue("auto")
		quality            = newQualityValue("auto")
		simplex            bool
		bleedThrough       bool
		paperSize          = newPaperSizeValue("auto")
		bwDensity          int
		multiFeed          bool
		noMultiFeed        bool
		blankPageRemoval   bool
		noBlankPageRemoval bool
		waitButton         bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan job against a paired appliance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyScanDefaults(cmd, &output, color, quality, &simplex, &bleedThrough,
				paperSize, &bwDensity, &multiFeed, &noMultiFeed, &blankPageRemoval,
				&noBlankPageRemoval, &waitButton); err != nil {
				return err
			}

			if noMultiFeed {
				multiFeed = false
			}
			if noBlankPageRemoval {
				blankPageRemoval = false
			}
			if bwDensity < 0 || bwDensity > 10 {
				return fmt.Errorf("--bw-density must be 0..10")
			}

			cfg := scanproto.ScanConfig{
				ColorMode:        color.mode,
				Quality:          quality.quality,
				Duplex:           !simplex,
				BleedThrough:     bleedThrough,
				PaperSize:        paperSize.size,
				BWDensity:        bwDensity,
				MultiFeed:        multiFeed,
				BlankPageRemoval: blankPageRemoval,
			}

			ctx, stop := withSignalCancel(cmd.Context())
			defer stop()

			ip, err := targetIP()
			if err != nil {
				return err
			}

			s, err := scanner.Connect(ctx, ip, flagIdentity, flagTimeout)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer s.Disconnect(ctx)

			paths, err := s.ScanToFiles(ctx, output, cfg, waitButton, flagTimeout)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}

			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", ".", "directory to write scanned pages to")
	cmd.Flags().Var(color, "color", "color mode: auto, color, gray, bw")
	cmd.Flags().Var(quality, "quality", "quality: auto, normal, fine, superfine")
	cmd.Flags().BoolVar(&simplex, "simplex", false, "scan one side per sheet (default is duplex)")
	cmd.Flags().BoolVar(&bleedThrough, "bleed-through", false, "enable bleed-through reduction")
	cmd.Flags().Var(paperSize, "paper-size", "paper size: auto, a4, a5, business-card, postcard")
	cmd.Flags().IntVar(&bwDensity, "bw-density", 0, "black-and-white density, 0-10 (only with --color bw)")
	cmd.Flags().BoolVar(&multiFeed, "multi-feed", false, "enable multi-feed detection")
	cmd.Flags().BoolVar(&noMultiFeed, "no-multi-feed", false, "disable multi-feed detection (overrides --multi-feed)")
	cmd.Flags().BoolVar(&blankPageRemoval, "blank-page-removal", false, "drop blank pages from the result")
	cmd.Flags().BoolVar(&noBlankPageRemoval, "no-blank-page-removal", false, "keep blank pages in the result (overrides --blank-page-removal)")
	cmd.Flags().BoolVar(&waitButton, "wait-button", false, "wait for the physical scan button before starting")

	return cmd
}

// applyScanDefaults fills unset scan flags from the loaded defaults
// file. A flag the user actually typed on the command line always wins
// over the defaults file, which in turn always wins over the flag's
// own built-in zero value.
func applyScanDefaults(cmd *cobra.Command, output *string, color *colorModeValue, quality *qualityValue, simplex, bleedThrough *bool,
	paperSize *paperSizeValue, bwDensity *int, multiFeed, noMultiFeed, blankPageRemoval, noBlankPageRemoval, waitButton *bool) error {
	if defaults == nil {
		return nil
	}
	changed := cmd.Flags().Changed
	sc := defaults.Scan

	if !changed("output") && sc.OutputDir != "" {
		*output = sc.OutputDir
	}
	if !changed("color") && sc.Color != "" {
		if err := color.Set(sc.Color); err != nil {
			return fmt.Errorf("config.scan.color: %w", err)
		}
	}
	if !changed("quality") && sc.Quality != "" {
		if err := quality.Set(sc.Quality); err != nil {
			return fmt.Errorf("config.scan.quality: %w", err)
		}
	}
	if !changed("simplex") && sc.Duplex != nil {
		*simplex = !*sc.Duplex
	}
	if !changed("bleed-through") && sc.BleedThrough != nil {
		*bleedThrough = *sc.BleedThrough
	}
	if !changed("paper-size") && sc.PaperSize != "" {
		if err := paperSize.Set(sc.PaperSize); err != nil {
			return fmt.Errorf("config.scan.paper_size: %w", err)
		}
	}
	if !changed("bw-density") && sc.BWDensity != nil {
		*bwDensity = *sc.BWDensity
	}
	if !changed("multi-feed") && !changed("no-multi-feed") && sc.MultiFeed != nil {
		*multiFeed = *sc.MultiFeed
		*noMultiFeed = false
	}
	if !changed("blank-page-removal") && !changed("no-blank-page-removal") && sc.BlankPageRemoval != nil {
		*blankPageRemoval = *sc.BlankPageRemoval
		*noBlankPageRemoval = false
	}
	if !changed("wait-button") && sc.WaitButton != nil {
		*waitButton = *sc.WaitButton
	}
	return nil
}

func parseColorMode(s string) (scanproto.ColorMode, error) {
	switch s {
	case "auto":
		return scanproto.ColorAuto, nil
	case "color":
		return scanproto.ColorColor, nil
	case "gray", "grey":
		return scanproto.ColorGray, nil
	case "bw":
		return scanproto.ColorBW, nil
	default:
		return 0, fmt.Errorf("must be one of auto, color, gray, bw (got %q)", s)
	}
}

func parseQuality(s string) (scanproto.Quality, error) {
	switch s {
	case "auto":
		return scanproto.QualityAuto, nil
	case "normal":
		return scanproto.QualityNormal, nil
	case "fine":
		return scanproto.QualityFine, nil
	case "superfine":
		return scanproto.QualitySuperfine, nil
	default:
		return 0, fmt.Errorf("must be one of auto, normal, fine, superfine (got %q)", s)
	}
}

func parsePaperSize(s string) (scanproto.PaperSize, error) {
	switch s {
	case "auto":
		return scanproto.PaperAuto, nil
	case "a4":
		return scanproto.PaperA4, nil
	case "a5":
		return scanproto.PaperA5, nil
	case "business-card":
		return scanproto.PaperBusinessCard, nil
	case "postcard":
		return scanproto.PaperPostcard, nil
	default:
		return 0, fmt.Errorf("must be one of auto, a4, a5, business-card, postcard (got %q)", s)
	}
}
