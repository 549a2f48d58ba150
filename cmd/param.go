// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var paramCmd = &cobra.Command{
	Use:   "param",
	Short: "Read or write actuator parameters",
}

var paramReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Read a parameter from every axis",
	Args:  cobra.ExactArgs(1),
	RunE:  runParamRead,
}

var paramWriteCmd = &cobra.Command{
	Use:   "write <id> <hex>",
	Short: "Write a parameter to every axis",
	Long: `Write a parameter to every configured axis. The value is given as
hex bytes (e.g. "0a0000000000"); short values are zero-padded.

Values go to RAM unless --rom is set.`,
	Args: cobra.ExactArgs(2),
	RunE: runParamWrite,
}

var paramROM bool

func init() {
	rootCmd.AddCommand(paramCmd)
	paramCmd.AddCommand(paramReadCmd)
	paramCmd.AddCommand(paramWriteCmd)
	paramWriteCmd.Flags().BoolVar(&paramROM, "rom", false, "Persist the value to ROM")
}

func parseParamID(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid parameter id %q", s)
	}
	return byte(v), nil
}

func parseParamData(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter data: %w", err)
	}
	if len(data) > lkproto.ParamDataSize {
		return nil, fmt.Errorf("parameter data is %d bytes, max %d", len(data), lkproto.ParamDataSize)
	}
	padded := make([]byte, lkproto.ParamDataSize)
	copy(padded, data)
	return padded, nil
}

func runParamRead(cmd *cobra.Command, args []string) (err error) {
	id, err := parseParamID(args[0])
	if err != nil {
		return err
	}

	set, err := openAxes(appConfig, 1)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, set.Close()) }()

	var errs error
	for _, a := range set.axes {
		p, perr := a.ReadParam(id)
		if perr != nil {
			errs = multierr.Append(errs, fmt.Errorf("axis %d: %w", a.ID(), perr))
			continue
		}
		fmt.Printf("axis %d: %s\n", a.ID(), lkproto.FormatParam(p))
	}
	return errs
}

func runParamWrite(cmd *cobra.Command, args []string) (err error) {
	id, err := parseParamID(args[0])
	if err != nil {
		return err
	}
	data, err := parseParamData(args[1])
	if err != nil {
		return err
	}

	set, err := openAxes(appConfig, 1)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, set.Close()) }()

	var errs error
	for _, a := range set.axes {
		if werr := a.WriteParam(id, data, paramROM); werr != nil {
			errs = multierr.Append(errs, fmt.Errorf("axis %d: %w", a.ID(), werr))
			continue
		}
		fmt.Printf("axis %d: wrote param 0x%02X = %s\n", a.ID(), id, lkproto.FormatHex(data))
	}
	return errs
}
