/*
Copyright (c) 2024-2026 The Zenix Authors

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normalform/zenix/emulator"
	"github.com/normalform/zenix/version"
)

func main() {
	cfg := emulator.Config{}

	rootCmd := &cobra.Command{
		Use:   "zenix",
		Short: "Zenix is a Z80/MSX machine emulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.ROMPath == "" {
				return fmt.Errorf("no ROM image given (see --rom)")
			}
			return emulator.Run(cfg)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.ROMPath, "rom", "", "Path to ROM image")
	flags.IntVar(&cfg.RAMSize, "ram-size", emulator.DefaultRAMSize, "RAM window size in bytes")
	flags.Float64Var(&cfg.ClockHz, "clock", emulator.DefaultClockHz, "CPU clock in Hz (0 = unlimited)")
	flags.StringVar(&cfg.DebugAddr, "debug", "", "Listen address for the wire debugger (e.g. :2323)")
	flags.BoolVar(&cfg.Monitor, "monitor", false, "Open the terminal front panel")
	flags.BoolVar(&cfg.VBlank, "vblank", true, "Simulate the 60Hz VBlank interrupt")
	flags.StringVar(&cfg.TraceFile, "trace", "", "Write a JSON execution trace to this file")
	flags.BoolVar(&cfg.TraceInterrupts, "trace-interrupts", false, "Log every emulated interrupt delivery")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Current.FullString())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
