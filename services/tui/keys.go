// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap binds every dashboard action. It implements help.KeyMap.
type keyMap struct {
	Repair      key.Binding
	Damage      key.Binding
	Chaos       key.Binding
	Tornado     key.Binding
	ZeroGravity key.Binding
	Glitch      key.Binding
	Outage      key.Binding
	Universe    key.Binding
	Logout      key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Repair:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repair")),
		Damage:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "damage")),
		Chaos:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "chaos mode")),
		Tornado:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "tornado")),
		ZeroGravity: key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "zero gravity")),
		Glitch:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "glitch storm")),
		Outage:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "power outage")),
		Universe:    key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "universe")),
		Logout:      key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "chaotic logout")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Repair, k.Damage, k.Chaos, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Repair, k.Damage, k.Chaos},
		{k.Tornado, k.ZeroGravity, k.Glitch, k.Outage},
		{k.Universe, k.Logout},
		{k.Help, k.Quit},
	}
}
