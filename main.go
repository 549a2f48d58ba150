// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Servolink - LK servo link and control loop tool
//
// Drives LK-protocol servo actuators over serial or WebSocket-bridged links
// and runs multi-axis control loops (bilateral PD mirroring, impedance hold).

package main

import (
	"os"

	"github.com/Thermoquad/servolink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
