// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package install

func exchange(staged, dest string) (string, error) {
	return renameAside(staged, dest)
}
