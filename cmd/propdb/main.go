// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command propdb inspects the tables of a propdb directory and the
// properties their collectors recorded.
package main

func main() {
	Execute()
}
