// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chaos implements the shared chaos-state engine of ArcadeVerse.
//
// # Description
//
// A single Engine owns one bounded stability value and every derived
// signal (chaos mode, glitch intensity, power outage, tornado,
// zero-gravity, continuous glitch, logout). Subscribers read immutable
// Snapshots from a channel; callers request changes through the Engine's
// trigger methods. Nothing else holds a writable reference.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                         Engine                           │
//	│  ┌────────────┐  ┌──────────────┐  ┌──────────────────┐  │
//	│  │ Stability  │  │ timed signals│  │    Scheduler     │  │
//	│  │  [0,100]   │  │ tornado/out. │  │ tick 1s / 3s     │  │
//	│  └────────────┘  └──────────────┘  └──────────────────┘  │
//	│                 publish(Snapshot)                        │
//	└────────────┬──────────────┬──────────────┬───────────────┘
//	             ▼              ▼              ▼
//	        TUI model      websocket      ChaosWatcher
//
// # Lifecycle
//
//	engine := chaos.New(chaos.DefaultConfig())
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	sub := engine.Subscribe()
//	defer sub.Close()
//	for snap := range sub.Updates() {
//	    render(snap)
//	}
//
// # Thread Safety
//
// Every mutation, timer expiry and scheduler tick runs to completion under
// the engine mutex, so the clamp invariant and tick atomicity hold without
// caller synchronization. Using an Engine after Close panics with
// ErrNoSession.
package chaos
