// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// knxcoupler - KNX TP-UART bus coupler tool
//
// A CLI tool for monitoring a KNX twisted pair bus and running group
// objects through a TP-UART transceiver.

package main

import (
	"os"

	"github.com/Thermoquad/knxcoupler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
