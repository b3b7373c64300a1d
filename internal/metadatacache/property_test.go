//go:build property
// +build property

package metadatacache

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/metaforge/internal/types"
)

// TestNoDowngradeProperty checks that once an entry has been stored as
// extended, an ordinary Set with extended=false never takes hold.
func TestNoDowngradeProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("extended entries never downgrade via Set", prop.ForAll(
		func(path string, firstValue, secondValue string) bool {
			c := New()
			p := types.NewPath(path)

			if err := c.Set(p, types.MetadataValues{"v": {Key: "v", Value: firstValue}}, true); err != nil {
				return false
			}

			err := c.Set(p, types.MetadataValues{"v": {Key: "v", Value: secondValue}}, false)
			if err == nil {
				return false // Set must refuse the downgrade
			}

			entry, ok := c.GetEntry(p)
			return ok && entry.IsExtended && entry.Values["v"].Value == firstValue
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
