/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"cyberapi/internal/config"
	"cyberapi/internal/crash"
	applog "cyberapi/internal/log"
	"cyberapi/internal/storage"
)

// app carries what the commands share. setup fills it before any command runs.
type app struct {
	cfg   config.AppConfig
	loc   *storage.Locator
	store *storage.Store
	rep   *crash.Reporter

	dataDir   string
	legacyDir string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cyberapi",
		Short:         "CyberAPI data store manager",
		Long:          "Locate, migrate, initialize, back up and restore the CyberAPI database and settings.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		},
	}
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "portable data directory (default: next to the executable)")
	root.PersistentFlags().StringVar(&a.legacyDir, "legacy-dir", "", `legacy per-user data directory, "-" to disable`)

	root.AddCommand(newPathsCmd(a))
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newTablesCmd(a))
	root.AddCommand(newSettingsCmd(a))
	root.AddCommand(newSetDBPathCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.DataDir = a.dataDir
	}
	if cmd.Flags().Changed("legacy-dir") {
		cfg.Storage.LegacyDir = a.legacyDir
	}
	a.cfg = cfg

	opts := cfg.LogOptions()
	opts.Output = cmd.ErrOrStderr()
	applog.Init(opts)
	l := applog.WithComponent("cli")

	a.loc = storage.NewLocator(cfg.Dirs())
	doc, _, err := a.loc.LoadSettings()
	if err != nil {
		l.Warn("settings unreadable, ignoring dbPath", slog.Any("err", err))
	}
	override := storage.SettingsDBPath(doc)
	if override == "" {
		override = cfg.Storage.DBPath
	}
	a.loc.SetOverride(override)
	a.store = storage.NewStore(a.loc, cfg.PoolOptions())
	l.Debug("setup done", slog.String("cmd", cmd.Name()), slog.String("override", override))
	return nil
}

// openStore opens the shared store and points crash reports at its directory.
func (a *app) openStore(ctx context.Context) (storage.Location, error) {
	loc, err := a.store.Location(ctx)
	if err != nil {
		return storage.Location{}, err
	}
	a.rep.SetDatabase(loc.Path)
	return loc, nil
}
