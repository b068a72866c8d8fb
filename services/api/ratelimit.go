// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a client mutates state faster than the
// configured limit allows.
var ErrRateLimited = errors.New("too many state changes, slow down")

// SetMutationLimit caps how often clients may change the shared state.
// perSecond <= 0 removes the cap. Read and stream endpoints are never
// limited.
func (h *Handlers) SetMutationLimit(perSecond float64, burst int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if perSecond <= 0 {
		h.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// limitMutations rejects a request with 429 when the mutation budget is
// spent.
func (h *Handlers) limitMutations(c *gin.Context) {
	h.mu.Lock()
	limiter := h.limiter
	h.mu.Unlock()
	if limiter == nil || limiter.Allow() {
		c.Next()
		return
	}
	retry := limiter.Reserve()
	delay := retry.Delay()
	retry.Cancel()
	seconds := int(delay.Seconds()) + 1
	c.Header("Retry-After", strconv.Itoa(seconds))
	h.logger.Debug("mutation rate limited", "path", c.FullPath(), "remote", c.ClientIP())
	abort(c, http.StatusTooManyRequests, "rate_limited", ErrRateLimited)
}
