// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the server configuration from a single YAML
// file named explicitly by the --config flag or the WFLDB_CONFIG
// environment variable. There are no fallbacks or automatic
// discovery: deterministic, auditable configuration with no hidden
// overrides.
package config
