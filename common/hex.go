// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexString formats b as upper case hex without separators.
func HexString(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// ParseHex decodes a hex string. Spaces, colons, dashes and a leading "0x"
// are ignored so that both "28AC410E07000074" and "28:ac:41:0e:07:00:00:74"
// are accepted.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-', '\t':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("common: invalid hex string %q: %w", s, err)
	}
	return b, nil
}
