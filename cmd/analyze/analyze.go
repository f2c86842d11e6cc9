// Package analyze implements the analyze command, a one-shot analysis of a
// single image file.
package analyze

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/emotion-go/cmd/app"
	"github.com/tphakala/emotion-go/internal/analysis"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/frame"
	"github.com/tphakala/emotion-go/internal/model"
	"github.com/tphakala/emotion-go/internal/overlay"
)

// Output is what the command prints.
type Output struct {
	Result   *model.AnalysisResult `json:"result"`
	Overlays []overlay.Overlay     `json:"overlays"`
	View     model.Size            `json:"view"`
	Mirrored bool                  `json:"mirrored"`
}

// Command creates the analyze command.
func Command(a *app.App) *cobra.Command {
	var view string
	var mirror bool

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze a single image file",
		Long:  "Send one image to the analysis service without a session and print the normalized result with overlay boxes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseView(view)
			if err != nil {
				return err
			}
			hc := a.ServiceHTTPClient()
			defer hc.Close()
			analyzer := analysis.NewClient(&a.Settings.Service, hc, a.Log())
			return run(cmd.Context(), analyzer, args[0], size, mirror, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&view, "view", "", "Map boxes into a WIDTHxHEIGHT view (default: image size)")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "Mirror boxes horizontally")

	return cmd
}

func run(ctx context.Context, analyzer analysis.Analyzer, path string, view model.Size, mirror bool, w io.Writer) error {
	f, err := frame.Load(path)
	if err != nil {
		return err
	}

	res, err := analyzer.Analyze(ctx, &analysis.Request{Frame: f})
	if err != nil {
		return err
	}

	if view == (model.Size{}) {
		view = res.SourceSize
	}
	out := Output{
		Result:   res,
		Overlays: overlay.MapResult(res, view, mirror),
		View:     view,
		Mirrored: mirror,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parseView parses WIDTHxHEIGHT. An empty string yields the zero size.
func parseView(s string) (model.Size, error) {
	if s == "" {
		return model.Size{}, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if ok {
		w, werr := strconv.ParseFloat(strings.TrimSpace(ws), 64)
		h, herr := strconv.ParseFloat(strings.TrimSpace(hs), 64)
		if werr == nil && herr == nil && w > 0 && h > 0 {
			return model.Size{Width: w, Height: h}, nil
		}
	}
	return model.Size{}, errors.Newf("invalid view %q, want WIDTHxHEIGHT", s).
		Component("cli").
		Category(errors.CategoryValidation).
		Build()
}
