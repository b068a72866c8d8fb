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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ArcadeVerse/pkg/ux"
	"github.com/AleutianAI/ArcadeVerse/services/arcade"
	"github.com/AleutianAI/ArcadeVerse/services/persist"
)

func runAchievements(cmd *cobra.Command, args []string) error {
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		a := rt.progress.Achievements
		p.Title(fmt.Sprintf("Achievements %d/%d", a.UnlockedCount(), a.TotalCount()))
		p.Table([]string{"", "ACHIEVEMENT", "PROGRESS", "REWARD", "DESCRIPTION"}, achievementRows(a.List(), p.Mode))
		return nil
	})
}

func achievementRows(list []persist.Achievement, mode ux.Mode) [][]string {
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		status := statusIcon(a.Unlocked, mode)
		progress := fmt.Sprintf("%d/%d", a.Current, a.Requirement)
		if mode != ux.ModeMachine {
			progress = ux.Meter(float64(a.Current), float64(a.Requirement), 10, ux.ModeMinimal)
		}
		rows = append(rows, []string{status, a.Name, progress, a.Reward, a.Description})
	}
	return rows
}

func statusIcon(done bool, mode ux.Mode) string {
	switch {
	case mode == ux.ModeMachine && done:
		return "done"
	case mode == ux.ModeMachine:
		return "open"
	case done:
		return ux.IconSuccess.Render()
	default:
		return ux.IconPending.Render()
	}
}

func runChallenges(cmd *cobra.Command, args []string) error {
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		c := rt.progress.Challenges
		list := c.List()
		if refreshDaily {
			list = c.Refresh()
		}
		p.Title(fmt.Sprintf("Daily Challenges %d/%d", c.CompletedCount(), len(list)))

		rows := make([][]string, 0, len(list))
		for _, ch := range list {
			rows = append(rows, []string{
				statusIcon(ch.Completed, p.Mode),
				ch.Title,
				fmt.Sprintf("%d/%d", ch.Current, ch.Requirement),
				string(ch.Difficulty),
				ch.Reward,
			})
		}
		p.Table([]string{"", "CHALLENGE", "PROGRESS", "DIFFICULTY", "REWARD"}, rows)
		if len(list) > 0 {
			p.Info(fmt.Sprintf("Reward points earned: %d, resets in %s",
				c.TotalRewardPoints(), time.Until(list[0].ExpiresAt).Round(time.Minute)))
		}
		return nil
	})
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	if boardLimit < 0 {
		return fmt.Errorf("--limit must be non-negative, got %d", boardLimit)
	}
	var title string
	if boardGame != "" {
		g, err := arcade.ParseGame(boardGame)
		if err != nil {
			return err
		}
		title = g.Title()
	}
	return withSaves(func(rt *appRuntime, p *ux.Printer) error {
		entries := rt.progress.Leaderboard.Entries()
		if title != "" {
			entries = filterGame(entries, title)
		}
		if boardLimit > 0 && len(entries) > boardLimit {
			entries = entries[:boardLimit]
		}

		p.Title("High Scores")
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				strconv.Itoa(e.Rank),
				e.PlayerName,
				strconv.Itoa(e.Score),
				e.Game,
				e.Date.Format(time.DateOnly),
			})
		}
		p.Table([]string{"RANK", "PLAYER", "SCORE", "GAME", "DATE"}, rows)
		if title != "" {
			p.Info(bestScoreLine(rt.progress.Leaderboard, title))
		}
		return nil
	})
}

func bestScoreLine(lb *persist.Leaderboard, title string) string {
	best := lb.BestScore(title)
	if best == 0 {
		return fmt.Sprintf("No %s scores yet", title)
	}
	return fmt.Sprintf("Best %s score: %d", title, best)
}

func filterGame(entries []persist.LeaderboardEntry, title string) []persist.LeaderboardEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Game == title {
			out = append(out, e)
		}
	}
	return out
}
