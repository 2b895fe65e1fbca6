// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

// Validity checks the telegram structure and checksum
func (t *Telegram) Validity() Validity {
	ctrl := t.buf[offsetControl]
	if ctrl&controlFieldPatternMask != controlFieldValidPattern {
		return InvalidControlField
	}
	if ctrl&controlFieldFrameFormatMask != controlFieldStandardFormat {
		return UnsupportedFrameFormat
	}
	if t.PayloadLength() == 0 {
		return IncorrectPayloadLength
	}
	if t.buf[offsetCommandH]&commandFieldPatternMask != commandFieldValidPattern {
		return InvalidCommandField
	}
	switch t.Command() {
	case CommandRead, CommandResponse, CommandWrite, CommandMemoryWrite:
	default:
		return UnknownCommand
	}
	if !t.IsChecksumCorrect() {
		return IncorrectChecksum
	}
	return Valid
}

// IsValid reports whether Validity returns Valid
func (t *Telegram) IsValid() bool {
	return t.Validity() == Valid
}

// String returns the name of a validity value
func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case InvalidControlField:
		return "invalid control field"
	case UnsupportedFrameFormat:
		return "unsupported frame format"
	case IncorrectPayloadLength:
		return "incorrect payload length"
	case InvalidCommandField:
		return "invalid command field"
	case UnknownCommand:
		return "unknown command"
	case IncorrectChecksum:
		return "incorrect checksum"
	default:
		return "unknown validity"
	}
}
