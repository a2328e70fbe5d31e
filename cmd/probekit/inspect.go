package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/probekit/pkg/plugins"
)

// inspection is the report of one library
type inspection struct {
	Library string        `json:"library" yaml:"library"`
	Plugin  *plugins.Info `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect LIBRARY...",
		Short: "Validate plugin libraries and print their metadata without initializing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := plugins.NewLoader(a.log)
			reports, err := inspect(loader, args)
			if writeErr := writeReports(cmd.OutOrStdout(), output, reports); writeErr != nil {
				return writeErr
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml or json)")
	return cmd
}

// inspect loads each library, records its metadata and unloads it.
// plugin_init is never called.
func inspect(loader *plugins.Loader, paths []string) ([]inspection, error) {
	reports := make([]inspection, 0, len(paths))
	var errs []error

	for _, path := range paths {
		report := inspection{Library: path}
		d, err := loader.Load(path)
		if err != nil {
			report.Error = err.Error()
			errs = append(errs, err)
			reports = append(reports, report)
			continue
		}

		info := d.Info()
		report.Plugin = &info
		if err := d.Discard(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unload %s: %w", path, err))
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

func writeReports(w io.Writer, format string, reports []inspection) error {
	return encode(w, format, reports)
}

// encode writes v as indented JSON or YAML
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s (must be yaml or json)", format)
	}
}
