// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import "github.com/ch32-rs/go-wlink/cmd/wlink/cmd"

func main() {
	cmd.Execute()
}
