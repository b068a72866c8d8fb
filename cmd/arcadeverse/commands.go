// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ArcadeVerse/cmd/arcadeverse/config"
	"github.com/AleutianAI/ArcadeVerse/pkg/logging"
	"github.com/AleutianAI/ArcadeVerse/pkg/ux"
	"github.com/AleutianAI/ArcadeVerse/services/api"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	outputMode string

	// appConfig and appLoader are set by the root PersistentPreRunE.
	appConfig config.ArcadeConfig
	appLoader config.Loader

	// Command-specific flags
	watchFor      string
	watchJSON     bool
	serveAddr     string
	saveName      string
	assumeYes     bool
	boardLimit    int
	boardGame     string
	refreshDaily bool

	rootCmd = &cobra.Command{
		Use:   "arcadeverse",
		Short: "A chaos-driven arcade multiverse in your terminal",
		Long: `ArcadeVerse runs a shared chaos session: a stability meter that glitches,
storms and blacks out as it falls, with progress, saves and a leaderboard
kept between runs.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	// --- Sessions ---
	playCmd = &cobra.Command{
		Use:   "play",
		Short: "Open the interactive chaos dashboard",
		Args:  cobra.NoArgs,
		RunE:  runPlay, // Defined in cmd_play.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Stream session snapshots as plain lines",
		Args:  cobra.NoArgs,
		RunE:  runWatch, // Defined in cmd_play.go
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the session over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Saves ---
	savesCmd = &cobra.Command{
		Use:   "saves",
		Short: "Manage the save slots",
		Args:  cobra.NoArgs,
		RunE:  runSavesList, // Defined in cmd_saves.go
	}
	savesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the save slots",
		Args:  cobra.NoArgs,
		RunE:  runSavesList,
	}
	savesCreateCmd = &cobra.Command{
		Use:   "create [slot]",
		Short: "Start a new save in a slot",
		Args:  cobra.ExactArgs(1),
		RunE:  runSavesCreate,
	}
	savesLoadCmd = &cobra.Command{
		Use:   "load [slot]",
		Short: "Make a slot the current save",
		Args:  cobra.ExactArgs(1),
		RunE:  runSavesLoad,
	}
	savesDeleteCmd = &cobra.Command{
		Use:   "delete [slot]",
		Short: "Delete a save",
		Args:  cobra.ExactArgs(1),
		RunE:  runSavesDelete,
	}
	savesExportCmd = &cobra.Command{
		Use:   "export [slot]",
		Short: "Print a save as a portable code",
		Args:  cobra.ExactArgs(1),
		RunE:  runSavesExport,
	}
	savesImportCmd = &cobra.Command{
		Use:   "import [slot] [code]",
		Short: "Import a save code into a slot (reads stdin without a code)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runSavesImport,
	}

	// --- Progress ---
	achievementsCmd = &cobra.Command{
		Use:   "achievements",
		Short: "Show achievement progress",
		Args:  cobra.NoArgs,
		RunE:  runAchievements, // Defined in cmd_progress.go
	}
	challengesCmd = &cobra.Command{
		Use:   "challenges",
		Short: "Show today's challenges",
		Args:  cobra.NoArgs,
		RunE:  runChallenges,
	}
	leaderboardCmd = &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the high score table",
		Args:  cobra.NoArgs,
		RunE:  runLeaderboard,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), api.Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.arcadeverse/arcadeverse.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "", "output style (full, minimal, machine)")

	watchCmd.Flags().StringVar(&watchFor, "for", "", "stop after this long, e.g. 30s (default: until interrupted)")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print snapshots as JSON lines")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")

	savesCreateCmd.Flags().StringVar(&saveName, "name", "", "player name (prompted when interactive)")
	savesDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	leaderboardCmd.Flags().IntVar(&boardLimit, "limit", 10, "number of entries (0 for all)")
	leaderboardCmd.Flags().StringVar(&boardGame, "game", "", "only show one game (snake, breaker, memory)")
	challengesCmd.Flags().BoolVar(&refreshDaily, "refresh", false, "generate a fresh set for today")

	savesCmd.AddCommand(savesListCmd, savesCreateCmd, savesLoadCmd, savesDeleteCmd, savesExportCmd, savesImportCmd)
	rootCmd.AddCommand(playCmd, watchCmd, serveCmd, savesCmd, achievementsCmd, challengesCmd, leaderboardCmd, versionCmd)
}

// loadConfig resolves the output mode and the configuration for every
// command.
func loadConfig(cmd *cobra.Command, args []string) error {
	if outputMode != "" {
		ux.SetMode(ux.ParseMode(outputMode))
	} else {
		ux.InitMode()
	}

	appLoader = config.Loader{Path: configPath, Notice: os.Stderr}
	cfg, err := appLoader.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		if _, err := logging.ParseLevel(logLevel); err != nil {
			return err
		}
		cfg.Logging.Level = logLevel
	}
	appConfig = cfg
	return nil
}
