/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/friendsincode/smartlists/internal/telemetry"
)

const (
	// MaxRegexLength is the longest accepted pattern, in characters.
	MaxRegexLength = 1000
	// RegexBudget bounds compiling plus the trial match, and every match
	// at evaluation time.
	RegexBudget = 100 * time.Millisecond

	// regexClockPeriod is how often regexp2 advances its timeout clock.
	// A deadline can overshoot by up to two periods.
	regexClockPeriod  = 10 * time.Millisecond
	regexMatchTimeout = RegexBudget - 2*regexClockPeriod
)

func init() {
	regexp2.SetTimeoutCheckPeriod(regexClockPeriod)
}

var (
	ErrRegexTooLong = fmt.Errorf("regex longer than %d characters", MaxRegexLength)
	ErrRegexTimeout = errors.New("regex exceeded time budget")
	ErrRegexInvalid = errors.New("invalid regex")
)

// trialInputs are matched once at compile time to catch patterns that are
// slow even on ordinary titles.
var trialInputs = []string{
	"",
	"The Quick Brown Fox (2021) - Director's Cut",
	"s01e02 episode title.mkv",
}

// RegexCache holds compiled patterns keyed by pattern and case mode.
type RegexCache struct {
	mu      sync.RWMutex
	entries map[string]*regexp2.Regexp
}

// NewRegexCache creates an empty cache.
func NewRegexCache() *RegexCache {
	return &RegexCache{entries: make(map[string]*regexp2.Regexp)}
}

func regexKey(pattern string, caseSensitive bool) string {
	if caseSensitive {
		return "cs:" + pattern
	}
	return "ci:" + pattern
}

// Compile validates and compiles a pattern. Length is checked before any
// compilation work is done.
func (c *RegexCache) Compile(pattern string, caseSensitive bool) (*regexp2.Regexp, error) {
	if utf8.RuneCountInString(pattern) > MaxRegexLength {
		return nil, ErrRegexTooLong
	}
	key := regexKey(pattern, caseSensitive)

	c.mu.RLock()
	re, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}

	opts := regexp2.None
	if !caseSensitive {
		opts = regexp2.IgnoreCase
	}

	start := time.Now()
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegexInvalid, err)
	}
	re.MatchTimeout = regexMatchTimeout
	for _, input := range trialInputs {
		if _, err := re.MatchString(input); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegexTimeout, err)
		}
	}
	if elapsed := time.Since(start); elapsed > RegexBudget {
		return nil, fmt.Errorf("%w: compile and trial took %s", ErrRegexTimeout, elapsed)
	}

	c.mu.Lock()
	c.entries[key] = re
	c.mu.Unlock()
	return re, nil
}

// Len reports the number of cached patterns.
func (c *RegexCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every cached pattern.
func (c *RegexCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*regexp2.Regexp)
	c.mu.Unlock()
}

// matchRegex runs a bounded match. A timeout is a non-match.
func matchRegex(re *regexp2.Regexp, input string) bool {
	ok, err := re.MatchString(input)
	if err != nil {
		if strings.Contains(err.Error(), "timeout") {
			telemetry.RegexTimeouts.Inc()
		}
		return false
	}
	return ok
}
