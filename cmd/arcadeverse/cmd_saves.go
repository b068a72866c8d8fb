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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ArcadeVerse/pkg/ux"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

// maxPlayerName matches the save validation rule.
const maxPlayerName = 32

func parseSlot(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", persist.ErrInvalidSlot, arg)
	}
	return n, nil
}

// withSaves opens a runtime for a short-lived progress command.
func withSaves(fn func(*appRuntime, *ux.Printer) error) error {
	rt, err := newRuntime(appConfig, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt, ux.Stdout())
}

func runSavesList(cmd *cobra.Command, args []string) error {
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		p.Title("Save Slots")
		current := rt.progress.Saves.CurrentSlot()
		var rows [][]string
		for _, s := range rt.progress.Saves.Slots() {
			marker := " "
			if s.Slot == current {
				marker = "*"
			}
			if s.Empty {
				rows = append(rows, []string{marker + strconv.Itoa(s.Slot), "(empty)", "", "", "", ""})
				continue
			}
			rows = append(rows, []string{
				marker + strconv.Itoa(s.Slot),
				s.Save.PlayerName,
				fmt.Sprintf("%.0f%%", s.Save.Stability),
				strconv.Itoa(s.Save.GamesPlayed),
				(time.Duration(s.Save.TotalPlayTime) * time.Second).String(),
				s.Save.Timestamp.Format(time.DateTime),
			})
		}
		p.Table([]string{"SLOT", "PLAYER", "STABILITY", "GAMES", "PLAYED", "SAVED"}, rows)
		return nil
	})
}

func runSavesCreate(cmd *cobra.Command, args []string) error {
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	name, err := playerName()
	if err != nil {
		return err
	}
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		save, err := rt.progress.Saves.Create(slot, name)
		if err != nil {
			return err
		}
		p.Success(fmt.Sprintf("Created slot %d for %s", slot, save.PlayerName))
		return nil
	})
}

// playerName takes --name, then prompts when interactive, then falls back
// to the configured default player.
func playerName() (string, error) {
	name := strings.TrimSpace(saveName)
	if name != "" || !ux.IsInteractive() {
		if name == "" {
			name = appConfig.Session.Player
		}
		return name, nil
	}

	err := huh.NewInput().
		Title("Player name").
		Placeholder(appConfig.Session.Player).
		CharLimit(maxPlayerName).
		Validate(func(s string) error {
			if len(strings.TrimSpace(s)) > maxPlayerName {
				return fmt.Errorf("at most %d characters", maxPlayerName)
			}
			return nil
		}).
		Value(&name).
		Run()
	if err != nil {
		return "", err
	}
	if name = strings.TrimSpace(name); name == "" {
		name = appConfig.Session.Player
	}
	return name, nil
}

func runSavesLoad(cmd *cobra.Command, args []string) error {
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		save, err := rt.progress.Saves.Load(slot)
		if err != nil {
			return err
		}
		p.Success(fmt.Sprintf("Loaded slot %d: %s at %.0f%% stability", slot, save.PlayerName, save.Stability))
		return nil
	})
}

func runSavesDelete(cmd *cobra.Command, args []string) error {
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	if !assumeYes {
		if !ux.IsInteractive() {
			return errors.New("refusing to delete without --yes when not interactive")
		}
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Delete save slot %d?", slot)).
			Affirmative("Delete").
			Negative("Keep").
			Value(&confirmed).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			ux.Stdout().Info("Kept.")
			return nil
		}
	}
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		if err := rt.progress.Saves.Delete(slot); err != nil {
			return err
		}
		p.Success(fmt.Sprintf("Deleted slot %d", slot))
		return nil
	})
}

func runSavesExport(cmd *cobra.Command, args []string) error {
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		code, err := rt.progress.Saves.Export(slot)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	})
}

func runSavesImport(cmd *cobra.Command, args []string) error {
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	var code string
	if len(args) == 2 {
		code = args[1]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read save code: %w", err)
		}
		code = string(data)
	}
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		save, err := rt.progress.Saves.Import(strings.TrimSpace(code), slot)
		if err != nil {
			return err
		}
		p.Success(fmt.Sprintf("Imported %s into slot %d", save.PlayerName, slot))
		return nil
	})
}
