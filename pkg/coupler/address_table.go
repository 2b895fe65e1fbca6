// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"cmp"
	"slices"
)

// ComObject is the view the coupler needs of a communication object
type ComObject interface {
	GroupAddress() uint16
	CommunicationEnabled() bool
}

// Objects converts a typed object slice into the list Attach expects
func Objects[T ComObject](list []T) []ComObject {
	out := make([]ComObject, len(list))
	for i, obj := range list {
		out[i] = obj
	}
	return out
}

type tableEntry struct {
	addr  uint16
	index int
}

// addressTable maps group addresses to object indices, sorted by address
type addressTable []tableEntry

// buildAddressTable indexes the communication-enabled objects.
// When several objects share an address the highest index wins.
func buildAddressTable(objects []ComObject) addressTable {
	latest := make(map[uint16]int, len(objects))
	for i, obj := range objects {
		if obj == nil || !obj.CommunicationEnabled() {
			continue
		}
		latest[obj.GroupAddress()] = i
	}

	table := make(addressTable, 0, len(latest))
	for addr, index := range latest {
		table = append(table, tableEntry{addr: addr, index: index})
	}
	slices.SortFunc(table, func(a, b tableEntry) int {
		return cmp.Compare(a.addr, b.addr)
	})
	return table
}

// find returns the object index assigned to addr
func (t addressTable) find(addr uint16) (int, bool) {
	i, found := slices.BinarySearchFunc(t, addr, func(e tableEntry, target uint16) int {
		return cmp.Compare(e.addr, target)
	})
	if !found {
		return -1, false
	}
	return t[i].index, true
}
