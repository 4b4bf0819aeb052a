// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads hlsrelay configuration with precedence
// ENV (HLSRELAY_*) > YAML file > defaults, validates it, and supports hot reload.
package config
