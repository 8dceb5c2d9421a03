/* Compare version strings.

   Copyright (C) 1995 Ian Jackson <iwj10@cus.cam.ac.uk>
   Copyright (C) 2001 Anthony Towns <aj@azure.humbug.org.au>
   Copyright (C) 2008-2025 Free Software Foundation, Inc.

   This file is free software: you can redistribute it and/or modify
   it under the terms of the GNU Lesser General Public License as
   published by the Free Software Foundation, either version 3 of the
   License, or (at your option) any later version.

   This file is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Lesser General Public License for more details.

   You should have received a copy of the GNU Lesser General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.  */

// Package verscmp orders version strings that are not semantic versions,
// such as "curl-8_5_0" or "2.6.32.1", the way GNU sort -V does.
//
// A version is split into alternating non-digit and digit runs. Digit runs
// compare by numeric value with leading zeros ignored. Non-digit runs
// compare character by character where letters sort before other
// characters, and '~' sorts before everything including the end of the
// string, so "1.0~rc1" is older than "1.0". This is a Go port of dpkg's
// verrevcmp as used by gnulib's filevercmp, and keeps its LGPL notice.
package verscmp

// Compare returns -1, 0 or +1 as a is older than, equal to or newer than b.
func Compare(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			if d := weight(a, i) - weight(b, j); d != 0 {
				return sign(d)
			}
			i++
			j++
		}

		for i < len(a) && a[i] == '0' {
			i++
		}
		for j < len(b) && b[j] == '0' {
			j++
		}
		first := 0
		for i < len(a) && j < len(b) && isDigit(a[i]) && isDigit(b[j]) {
			if first == 0 {
				first = int(a[i]) - int(b[j])
			}
			i++
			j++
		}
		if i < len(a) && isDigit(a[i]) {
			return 1
		}
		if j < len(b) && isDigit(b[j]) {
			return -1
		}
		if first != 0 {
			return sign(first)
		}
	}
	return 0
}

// Less reports whether a is older than b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// weight is the sort weight of s[i] inside a non-digit run. Past the end
// of s and at a digit it is zero.
func weight(s string, i int) int {
	if i >= len(s) {
		return 0
	}
	switch c := s[i]; {
	case isDigit(c):
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	default:
		return int(c) + 256
	}
}

func sign(d int) int {
	if d < 0 {
		return -1
	}
	return 1
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isAlpha(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }
