// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buildinfo exposes compile-time metadata of the payverify binary.
package buildinfo

import "fmt"

// Overridden via ldflags, e.g. -X github.com/traylinx/payverify/internal/buildinfo.Version=v1.2.0
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String renders the metadata for startup logs and health checks.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
