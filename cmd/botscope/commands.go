package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/botscope/botscope/pkg/dataset"
	bserrors "github.com/botscope/botscope/pkg/errors"
	"github.com/botscope/botscope/pkg/export"
	"github.com/botscope/botscope/pkg/table"
	"github.com/botscope/botscope/pkg/tui"
	"github.com/botscope/botscope/pkg/validate"
)

func newFetchCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Make the raw dataset available and print its paths",
		Long: `Resolve the raw dataset for the current environment.

In a hosted notebook the shared drive is mounted and read in place. Anywhere
else the archive is downloaded into the dataset root unless every file is
already there.

Examples:
  botscope fetch
  botscope fetch --force
  BOTSCOPE_ENV=standalone botscope fetch --root ./data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			probe, err := e.probe()
			if err != nil {
				return bserrors.InvalidConfig(err)
			}

			out := cmd.OutOrStdout()
			tui.PrintHeader(out, version)

			start := time.Now()
			paths, err := e.resolver(probe).Resolve(cmd.Context(), force)
			if err != nil {
				return err
			}
			tui.PrintPaths(out, probe.Detect(cmd.Context()).String(), paths)
			tui.PrintDone(out, "dataset ready", time.Since(start))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Delete the local copy and download again")
	return cmd
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var (
		xlsxPath string
		strict   bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every dataset field against its expected type",
		Long: `Load tweets and users, run the field validators over every known column and
print the number of invalid cells per column.

Examples:
  botscope validate
  botscope validate --xlsx report.xlsx
  botscope validate --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			probe, err := e.probe()
			if err != nil {
				return bserrors.InvalidConfig(err)
			}

			tui.PrintHeader(cmd.OutOrStdout(), version)

			loader := dataset.NewLoader(e.resolver(probe), table.DefaultCSVOptions(), e.log)
			tables, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}
			defer tables.Release()

			reports, err := validate.ValidateAll(cmd.Context(), tables, validate.DefaultSchema())
			if err != nil {
				return err
			}
			tui.PrintReport(cmd.OutOrStdout(), reports)

			if xlsxPath != "" {
				if err := export.WriteReportsXLSX(xlsxPath, reports); err != nil {
					return err
				}
				e.log.Info().Str("path", xlsxPath).Msg("report written")
			}

			if strict {
				var invalid int64
				for _, r := range reports {
					invalid += r.InvalidCells()
				}
				if invalid > 0 {
					return fmt.Errorf("validation failed: %d invalid cells", invalid)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the report to an Excel file")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any cell is invalid")
	return cmd
}

func newCacheCmd(g *globalFlags) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and populate the preprocessed artifact cache",
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List steps that have artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			steps, err := e.cache().Steps()
			if err != nil {
				return err
			}
			for _, s := range steps {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <step>",
		Short: "List the artifacts of a step with their shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			c := e.cache()
			tables, err := c.FetchAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			infos := make([]tui.ArtifactInfo, 0, len(tables))
			for name, tbl := range tables {
				info := tui.ArtifactInfo{Name: name, Rows: tbl.NumRows(), Cols: tbl.NumCols()}
				if st, err := os.Stat(filepath.Join(c.StepDir(args[0]), name)); err == nil {
					info.Size = st.Size()
				}
				infos = append(infos, info)
				tbl.Release()
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
			tui.PrintArtifacts(cmd.OutOrStdout(), args[0], infos)
			return nil
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query <step> <sql>",
		Short: "Run SQL over the artifacts of a step",
		Long: `Run a DuckDB SQL statement over the artifacts of a step. Every artifact is
available as a view named after its file, without the extension.

Examples:
  botscope cache query dedup "SELECT count(*) FROM users"
  botscope cache query clean "SELECT lang, count(*) FROM users GROUP BY 1"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			res, err := e.cache().QueryStep(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			tui.PrintTable(cmd.OutOrStdout(), res.Columns, res.Rows)
			return nil
		},
	}

	var artifactName string
	putCmd := &cobra.Command{
		Use:   "put <step> <csv>",
		Short: "Store a CSV file as an artifact of a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			tbl, err := table.ReadCSVFile(cmd.Context(), args[1], table.DefaultCSVOptions())
			if err != nil {
				return err
			}
			defer tbl.Release()

			name := artifactName
			if name == "" {
				base := filepath.Base(args[1])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if err := e.cache().Store(cmd.Context(), args[0], name, tbl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s (%d rows)\n", args[0], name, tbl.NumRows())
			return nil
		},
	}
	putCmd.Flags().StringVar(&artifactName, "name", "", "Artifact name (defaults to the CSV file name)")

	cacheCmd.AddCommand(lsCmd, showCmd, queryCmd, putCmd)
	return cacheCmd
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the effective configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after files, environment and flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(e.cfg)
			if err != nil {
				return bserrors.Wrap(err, bserrors.CodeWriteFailed, "encode config")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to ~/.botscope/config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(g)
			if err != nil {
				return err
			}
			if err := e.mgr.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration saved")
			return nil
		},
	}

	configCmd.AddCommand(showCmd, saveCmd)
	return configCmd
}
