package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logoforge-dev/logoforge"
	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/agents"
	"github.com/logoforge-dev/logoforge/internal/orchestrator"
)

func newGenerateCmd() *cobra.Command {
	var (
		brief  agent.Brief
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a logo package for a brand brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			if brief.BrandName == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			gen, err := logoforge.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := gen.ConnectCache(ctx); err != nil {
				log.Printf("Result cache unavailable, generating fresh: %v", err)
			}

			hooks := logoforge.Hooks{
				OnStageDone: func(done orchestrator.StageDone) {
					status := "ok"
					if !done.Success {
						status = "failed"
					}
					log.Printf("Stage %-12s %-8s (%v)", done.Stage.ID, status, done.Duration.Round(time.Millisecond))
				},
			}

			res, err := gen.Generate(ctx, brief, hooks)
			if err != nil {
				return err
			}
			if !res.Success {
				for _, e := range res.Errors {
					log.Printf("Error: %v", e)
				}
				return fmt.Errorf("generation failed")
			}

			return writeAssets(res, outDir)
		},
	}

	cmd.Flags().StringVar(&brief.BrandName, "name", "", "brand name (required)")
	cmd.Flags().StringVar(&brief.Industry, "industry", "", "industry")
	cmd.Flags().StringVar(&brief.Description, "description", "", "free-form brand description")
	cmd.Flags().StringSliceVar(&brief.Styles, "style", nil, "style keywords")
	cmd.Flags().StringSliceVar(&brief.Colors, "color", nil, "preferred colors (hex)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

// writeAssets unpacks the run's outputs into the output directory.
func writeAssets(res *orchestrator.Result, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	pkg, ok := payload[agents.Package](res.Package)
	if !ok {
		return fmt.Errorf("run produced no package")
	}
	path := filepath.Join(outDir, "logo-package.zip")
	if err := os.WriteFile(path, pkg.Archive, 0o644); err != nil {
		return err
	}

	if logo, ok := payload[agents.ValidatedSVG](res.Logo); ok {
		if err := os.WriteFile(filepath.Join(outDir, "logo.svg"), []byte(logo.Markup), 0o644); err != nil {
			return err
		}
	}

	log.Printf("Wrote %s (%d files, %d bytes)", path, len(pkg.Files), pkg.Size)
	log.Printf("Session %s finished in %v using %d tokens",
		res.SessionID, res.Duration.Round(time.Millisecond), res.Metrics.TokenUsage.Total)
	return nil
}

func payload[T any](out *agent.Output) (T, bool) {
	var zero T
	if out == nil {
		return zero, false
	}
	v, ok := out.Payload.(T)
	return v, ok
}
