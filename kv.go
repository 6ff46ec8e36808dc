// Copyright © 2014-2017 Lawrence E. Bakst. All rights reserved.

package cuckoo

// Key and Value live in their own file so a build that needs different
// widths only has to touch this one. The rest of the package treats both
// as opaque 64 bit quantities.
type Key uint64
type Value uint64
