// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/eventsync/internal/validation"
)

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.validatePopulation(); err != nil {
		return err
	}
	return c.validateSource()
}

func (c *Config) validatePopulation() error {
	for scope, mode := range c.Population {
		switch PopulationMode(strings.ToLower(string(mode))) {
		case PopulationLocal, PopulationExternal, PopulationHybrid:
		default:
			return fmt.Errorf("population.%s: unknown mode %q (want local, external or hybrid)", scope, mode)
		}
	}
	return nil
}

// validateSource requires a base URL only when the sync scope actually reaches out.
func (c *Config) validateSource() error {
	if !c.SyncEnabled(c.Sync.Scope) {
		return nil
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required when population.%s is %s", c.Sync.Scope, c.PopulationMode(c.Sync.Scope))
	}
	return nil
}
