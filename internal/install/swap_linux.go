// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package install

import (
	"errors"

	"golang.org/x/sys/unix"
)

// exchange atomically swaps staged and dest with renameat2(RENAME_EXCHANGE).
// Afterwards the previous tree lives at staged. Filesystems without support
// for the flag fall back to renameAside.
func exchange(staged, dest string) (string, error) {
	err := unix.Renameat2(unix.AT_FDCWD, staged, unix.AT_FDCWD, dest, unix.RENAME_EXCHANGE)
	switch {
	case err == nil:
		return staged, nil
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EINVAL), errors.Is(err, unix.EOPNOTSUPP):
		return renameAside(staged, dest)
	}
	return "", err
}
