/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cyberapi/internal/storage"
	"cyberapi/internal/version"
)

func newPathsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where the database and settings files resolve to",
		Long:  "Show where the database and settings files resolve to. Resolving copies legacy files into the data directory when needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dirs := a.loc.Dirs()
			db := a.loc.DatabaseFile()
			settings := a.loc.SettingsFile()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Item", "Path", "Mode", "Exists"})
			t.AppendRow(table.Row{"database", db.Path, string(db.Mode), exists(db.Path)})
			t.AppendRow(table.Row{"settings", settings.Path, string(settings.Mode), exists(settings.Path)})
			t.AppendSeparator()
			t.AppendRow(table.Row{"data dir", dirs.Current, "", exists(dirs.Current)})
			legacy := dirs.Legacy
			if legacy == "" {
				legacy = "(disabled)"
			}
			t.AppendRow(table.Row{"legacy dir", legacy, "", exists(dirs.Legacy)})
			if o := a.loc.Override(); o != "" {
				t.AppendRow(table.Row{"db override", o, "", ""})
			}
			t.Render()
			return nil
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and apply schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if err := a.store.InitTables(ctx); err != nil {
				return err
			}
			if _, err := a.store.RecordVersion(ctx, version.String()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s (%s)\n", loc.Path, loc.Mode)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a zip backup of every table next to the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			path, err := a.store.ExportAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Replace every table with the contents of a backup archive",
		Long: "Replace every table with the contents of a backup archive. Existing rows are deleted; " +
			"tables missing from the archive end up empty. A failed import can leave some tables replaced.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("import deletes all existing data; pass --yes to continue")
			}
			archive, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			if err := a.store.ImportAll(cmd.Context(), archive); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", archive)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm that existing data is replaced")
	return cmd
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the managed tables and their row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			counts, err := a.store.TableCounts(cmd.Context())
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Table", "Rows", "Archive entry"})
			total := 0
			for _, tbl := range storage.Tables() {
				n := counts[tbl.Name]
				total += n
				t.AppendRow(table.Row{tbl.Name, n, storage.EntryName(tbl.Name)})
			}
			t.AppendFooter(table.Row{"total", total, ""})
			t.Render()
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}

func exists(p string) string {
	if p == "" {
		return ""
	}
	if _, err := os.Stat(p); err == nil {
		return "yes"
	}
	return "no"
}
