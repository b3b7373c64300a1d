//go:build property
// +build property

package cache

import (
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/metaforge/internal/logging"
)

// TestDiskEntryExpiryProperty checks the 24h disk-tier boundary: an entry
// written hoursAgo < 24 is still a hit, hoursAgo >= 24 is a miss.
func TestDiskEntryExpiryProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("disk entries expire exactly at 24h", prop.ForAll(
		func(hoursAgo int) bool {
			dir, err := os.MkdirTemp("", "cache-expiry-*")
			if err != nil {
				t.Fatal(err)
			}
			defer os.RemoveAll(dir)

			c := New(1, dir, 1, logging.NewTestLogger())
			value := make([]byte, 8) // >= diskThreshold of 1 byte, forces a disk write
			c.Set("k", value)

			path := c.diskPath("k")
			mtime := time.Now().Add(-time.Duration(hoursAgo) * time.Hour)
			if err := os.Chtimes(path, mtime, mtime); err != nil {
				t.Fatal(err)
			}

			// A fresh Cache instance has an empty memory tier, so Get must
			// consult the disk tier and observe the backdated mtime.
			fresh := New(1, dir, 1, logging.NewTestLogger())
			_, hit := fresh.Get("k")
			wantHit := hoursAgo < 24
			return hit == wantHit
		},
		gen.IntRange(0, 48),
	))

	properties.TestingRun(t)
}
