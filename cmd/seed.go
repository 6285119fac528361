package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/server"
)

// seedFile is the YAML layout accepted by the seed command.
type seedFile struct {
	Sources []seedSource `yaml:"sources"`
}

type seedSource struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"is_active"`
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upserts job sources from a YAML file",
		Example: `  jobcrawler seed --file sources.yaml

  # sources.yaml
  sources:
    - name: Naukri
      base_url: https://www.naukri.com
    - name: Internshala
      base_url: https://internshala.com
      is_active: false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := readSeedFile(file)
			if err != nil {
				return err
			}
			n, err := seedSources(cmd.Context(), appInstance.Sources(), sources)
			appInstance.Logger().Info("seeded job sources", zap.Int("count", n))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d job sources\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "sources.yaml", "YAML file listing job sources")
	return cmd
}

func readSeedFile(path string) ([]crawler.JobSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var parsed seedFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(parsed.Sources) == 0 {
		return nil, errors.New("seed file lists no sources")
	}
	out := make([]crawler.JobSource, 0, len(parsed.Sources))
	for i, s := range parsed.Sources {
		name, base := strings.TrimSpace(s.Name), strings.TrimSpace(s.BaseURL)
		if name == "" || base == "" {
			return nil, fmt.Errorf("source %d: name and base_url are required", i)
		}
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		out = append(out, crawler.JobSource{Name: name, BaseURL: base, IsActive: active})
	}
	return out, nil
}

func seedSources(ctx context.Context, dst server.SourceStore, sources []crawler.JobSource) (int, error) {
	for i, src := range sources {
		if _, err := dst.UpsertSource(ctx, src); err != nil {
			return i, fmt.Errorf("upsert source %q: %w", src.Name, err)
		}
	}
	return len(sources), nil
}
