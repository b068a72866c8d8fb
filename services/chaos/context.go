// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chaos

import "context"

type engineKey struct{}

// WithEngine returns a child context carrying e.
func WithEngine(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, e)
}

// FromContext returns the Engine carried by ctx, if any.
func FromContext(ctx context.Context) (*Engine, bool) {
	e, ok := ctx.Value(engineKey{}).(*Engine)
	return e, ok && e != nil
}

// MustFromContext returns the Engine carried by ctx and panics with
// ErrNoSession when there is none. Consumers are expected to run inside a
// session, so a missing Engine is a programming error.
func MustFromContext(ctx context.Context) *Engine {
	e, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoSession)
	}
	return e
}
