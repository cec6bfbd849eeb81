package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/impresso/consolidator/internal/partition"
	"github.com/impresso/consolidator/internal/storage"
)

var planFlags struct {
	pattern   string
	provider  string
	newspaper string
	order     string
	format    string
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the partitions a consolidate run would process",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.InputRoot == "" {
			return eris.New("storage.input_root must be configured")
		}

		order, err := partition.ParseOrder(firstNonEmpty(planFlags.order, cfg.Consolidate.Order))
		if err != nil {
			return err
		}

		inputs := storage.NewFSStore(afero.NewOsFs(), cfg.Storage.InputRoot)
		parts, err := partition.NewPlanner(inputs).Plan(cmd.Context(), partition.Filter{
			Pattern:   planFlags.pattern,
			Provider:  planFlags.provider,
			Newspaper: planFlags.newspaper,
		}, order)
		if err != nil {
			return err
		}

		switch planFlags.format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(parts), "plan: encode json")
		case "yaml":
			return eris.Wrap(yaml.NewEncoder(os.Stdout).Encode(parts), "plan: encode yaml")
		case "text":
			for _, p := range parts {
				fmt.Println(p)
			}
			fmt.Fprintf(os.Stderr, "%d partitions\n", len(parts))
			return nil
		default:
			return eris.Errorf("unknown format %q (want text, json or yaml)", planFlags.format)
		}
	},
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planFlags.pattern, "providers", "", `glob over "provider/newspaper"`)
	f.StringVar(&planFlags.provider, "provider", "", "explicit provider")
	f.StringVar(&planFlags.newspaper, "newspaper", "", "explicit newspaper")
	f.StringVar(&planFlags.order, "order", "", "partition order: random, chrono or reverse")
	f.StringVar(&planFlags.format, "format", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(planCmd)
}
