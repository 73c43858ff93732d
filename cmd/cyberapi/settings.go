/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cyberapi/internal/config"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or write the settings document",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the settings document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, found, err := a.loc.LoadSettings()
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.ErrOrStderr(), "no settings saved yet")
				return nil
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, doc, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <json|->",
		Short: `Replace the settings document ("-" reads it from stdin)`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := []byte(args[0])
			if args[0] == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				doc = b
			}
			return a.loc.SaveSettings(doc)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the settings file, including the legacy copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.loc.ClearSettings()
		},
	})
	return cmd
}

func newSetDBPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-db-path <path>",
		Short: `Store a database location override, "" clears it`,
		Long: "Store a database location override in the settings file. Environment references like %APPDATA% " +
			"or $HOME are expanded when the path is resolved. A path ending in .db or .sqlite names the file, " +
			"anything else a directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loc.SaveDatabaseOverride(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.loc.DatabaseFile().Path)
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the application config",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, out)
			for _, k := range []string{"storage.data_dir", "storage.legacy_dir", "storage.db_path",
				"logging.level", "logging.format", "logging.source", "logging.file"} {
				if env, ok := config.EnvOverrideFor(k); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "# %s is overridden by %s\n", k, env)
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one key in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if env, ok := config.EnvOverrideFor(args[0]); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "note: %s is overridden by %s\n", args[0], env)
			}
			return config.Save(cfg)
		},
	})
	return cmd
}
