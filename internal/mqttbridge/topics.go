// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Topics builds the topic tree below a prefix. Group addresses keep their
// three levels, so the state of 1/2/3 lives at <prefix>/state/1/2/3.
type Topics struct {
	Prefix string
}

// State returns the retained state topic of a group address
func (t Topics) State(addr uint16) string {
	return fmt.Sprintf("%s/state/%s", t.Prefix, telegram.FormatGroupAddress(addr))
}

// Command returns the command topic of a group address
func (t Topics) Command(addr uint16) string {
	return fmt.Sprintf("%s/command/%s", t.Prefix, telegram.FormatGroupAddress(addr))
}

// AllCommands matches every command topic
func (t Topics) AllCommands() string {
	return t.Prefix + "/command/#"
}

// Status is the retained online/offline topic
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// ParseCommand extracts the group address from a command topic
func (t Topics) ParseCommand(topic string) (uint16, error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}
	return telegram.ParseGroupAddress(rest)
}
