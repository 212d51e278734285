package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/scanner"
	"github.com/entrhq/autoforge/pkg/types"
)

func (c *cli) scanCmd() *cobra.Command {
	var (
		deep        bool
		noIgnore    bool
		noCache     bool
		concurrency int
		listFiles   bool
		ignore      []string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the repository and refresh .af/cache.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open("scan")
			if err != nil {
				return err
			}
			defer s.close()

			opts := scanner.DefaultOptions(s.root)
			if deep {
				opts.Mode = types.ScanDeep
			}
			opts.RespectIgnore = !noIgnore
			opts.WriteCache = !noCache
			opts.Concurrency = concurrency
			opts.ExtraIgnore = ignore
			opts.Logger = s.logger.With("subsystem", "scanner")
			if !c.jsonOutput() {
				opts.Progress = c.stderr
			}

			res, err := scanner.Scan(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if c.jsonOutput() {
				return c.printJSON(res)
			}
			if listFiles {
				tw := table.NewWriter()
				tw.SetOutputMirror(c.stdout)
				tw.AppendHeader(table.Row{"Path", "Size", "Binary", "SHA-1"})
				for _, f := range res.Files {
					tw.AppendRow(table.Row{f.Path, f.Size, f.IsBinary, f.SHA1})
				}
				tw.Render()
			}
			fmt.Fprintf(c.stdout, "Scanned %d files, %d dirs, %d KiB (%s). Cache: %s\n",
				res.Stats.Files, res.Stats.Dirs, res.Stats.Bytes/1024, res.Mode, cacheLabel(res.CachePath))
			return nil
		},
	}

	cmd.Flags().BoolVar(&deep, "deep", false, "fingerprint file contents with SHA-1")
	cmd.Flags().BoolVar(&noIgnore, "no-ignore", false, "do not apply .afignore patterns")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not write .af/cache.json")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count (default: number of CPUs)")
	cmd.Flags().BoolVar(&listFiles, "files", false, "list scanned files")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "extra gitignore-style pattern (repeatable)")
	return cmd
}

func cacheLabel(path string) string {
	if path == "" {
		return "not written"
	}
	return path
}
