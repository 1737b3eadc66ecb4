// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package limits

// SetLimits is a no-op on Windows since its socket handles are not bounded by
// a per-process descriptor limit.
func SetLimits() error {
	return nil
}
