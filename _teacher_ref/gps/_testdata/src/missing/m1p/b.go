// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package m1p

import (
	"os"
	"sort"
)

var (
	_ = sort.Strings
	_ = os.PathSeparator
)
