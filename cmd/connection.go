// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/Thermoquad/servolink/pkg/config"
	"github.com/Thermoquad/servolink/pkg/link"
	"go.uber.org/multierr"
	"golang.org/x/term"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("SERVOLINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// linkOptions returns the channel options, prompting for a bridge password
// when any axis goes through an authenticated WebSocket
func linkOptions(cfg config.Config) (link.Options, error) {
	opts := cfg.Link
	if opts.Username == "" {
		return opts, nil
	}
	for _, a := range cfg.Axes {
		if link.IsWebSocketAddress(a.Address) {
			password, err := GetPassword()
			if err != nil {
				return link.Options{}, err
			}
			opts.Password = password
			break
		}
	}
	return opts, nil
}

// axisSet is the opened axes of one command run
type axisSet struct {
	axes  []*axis.Axis
	infos []string
	stats *link.Statistics
}

// openAxes opens a channel and session per configured axis
func openAxes(cfg config.Config, need int) (*axisSet, error) {
	if len(cfg.Axes) < need {
		return nil, fmt.Errorf("need at least %d axis (use --axis id@address or a config file), have %d", need, len(cfg.Axes))
	}

	opts, err := linkOptions(cfg)
	if err != nil {
		return nil, err
	}

	set := &axisSet{stats: link.NewStatistics()}
	for _, a := range cfg.Axes {
		ch, info, err := link.Open(a.Address, opts)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("axis %d: %w", a.ID, err)
		}

		s, err := link.NewSession(ch, a.ID, opts.Timeout,
			link.WithLogger(logger), link.WithStatistics(set.stats))
		if err != nil {
			ch.Close()
			set.Close()
			return nil, err
		}

		set.axes = append(set.axes, axis.New(s, axis.WithName(a.Name), axis.WithLogger(logger)))
		set.infos = append(set.infos, fmt.Sprintf("axis %d (%s): %s", a.ID, axisLabel(a), info))
	}
	return set, nil
}

func axisLabel(a config.Axis) string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("axis%d", a.ID)
}

// Close closes every axis session
func (s *axisSet) Close() error {
	var err error
	for _, a := range s.axes {
		err = multierr.Append(err, a.Close())
	}
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
