/*
 * Copyright 2024 The Redline Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sessions

import (
	"fmt"
	"time"
)

// Config is the configuration of synchronization sessions and their
// registry.
type Config struct {
	// SaveDebounce is the quiescence interval after the last update before
	// the session snapshot is durably saved.
	SaveDebounce string `yaml:"SaveDebounce"`

	// SaveTimeout bounds a single snapshot save.
	SaveTimeout string `yaml:"SaveTimeout"`

	// LoadTimeout bounds the snapshot load at session start. A load that
	// times out degrades to an empty document.
	LoadTimeout string `yaml:"LoadTimeout"`

	// IdleGrace is how long a session with no connections stays resident
	// before eviction, so a quick reconnect does not reload from storage.
	IdleGrace string `yaml:"IdleGrace"`

	// SweepInterval is how often the registry looks for idle sessions.
	SweepInterval string `yaml:"SweepInterval"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	for flag, value := range map[string]string{
		"--save-debounce":  c.SaveDebounce,
		"--save-timeout":   c.SaveTimeout,
		"--load-timeout":   c.LoadTimeout,
		"--idle-grace":     c.IdleGrace,
		"--sweep-interval": c.SweepInterval,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf(`invalid argument "%s" for "%s" flag: %w`, value, flag, err)
		}
	}

	return nil
}

// timings is the parsed form of Config.
type timings struct {
	saveDebounce  time.Duration
	saveTimeout   time.Duration
	loadTimeout   time.Duration
	idleGrace     time.Duration
	sweepInterval time.Duration
}

func (c *Config) parse() (timings, error) {
	t := timings{}
	var err error
	if t.saveDebounce, err = time.ParseDuration(c.SaveDebounce); err != nil {
		return t, fmt.Errorf("parse save debounce %q: %w", c.SaveDebounce, err)
	}
	if t.saveTimeout, err = time.ParseDuration(c.SaveTimeout); err != nil {
		return t, fmt.Errorf("parse save timeout %q: %w", c.SaveTimeout, err)
	}
	if t.loadTimeout, err = time.ParseDuration(c.LoadTimeout); err != nil {
		return t, fmt.Errorf("parse load timeout %q: %w", c.LoadTimeout, err)
	}
	if t.idleGrace, err = time.ParseDuration(c.IdleGrace); err != nil {
		return t, fmt.Errorf("parse idle grace %q: %w", c.IdleGrace, err)
	}
	if t.sweepInterval, err = time.ParseDuration(c.SweepInterval); err != nil {
		return t, fmt.Errorf("parse sweep interval %q: %w", c.SweepInterval, err)
	}
	return t, nil
}
