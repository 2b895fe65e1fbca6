// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

// CalculateChecksum computes the KNX checksum of data: the inverted XOR of every byte
func CalculateChecksum(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return ^x
}

// checksumIndex returns the position of the checksum byte
func (t *Telegram) checksumIndex() int {
	i := t.Length() - 1
	if i >= MaxSize {
		i = MaxSize - 1
	}
	return i
}

// Checksum returns the checksum byte stored in the telegram
func (t *Telegram) Checksum() byte {
	return t.buf[t.checksumIndex()]
}

// CalculateChecksum computes the checksum over every byte preceding the checksum byte
func (t *Telegram) CalculateChecksum() byte {
	return CalculateChecksum(t.buf[:t.checksumIndex()])
}

// UpdateChecksum stores the computed checksum
func (t *Telegram) UpdateChecksum() {
	t.buf[t.checksumIndex()] = t.CalculateChecksum()
}

// IsChecksumCorrect reports whether the stored checksum matches the content
func (t *Telegram) IsChecksumCorrect() bool {
	return t.Checksum() == t.CalculateChecksum()
}
