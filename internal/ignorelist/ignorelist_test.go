package ignorelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_MandatoryAlwaysIncluded(t *testing.T) {
	l := Parse(HostMandatory, nil)
	for _, name := range HostMandatory {
		assert.True(t, l.Matches(name), "expected %s to be ignored", name)
	}
	assert.False(t, l.Matches("src"))
}

func TestParse_PresetExpands(t *testing.T) {
	l := Parse(ClientMandatory, []string{"unity"})
	assert.True(t, l.Matches("Library"))
	assert.True(t, l.Matches("Temp"))
	assert.True(t, l.Matches(".git")) // still mandatory
}

func TestParse_WildcardSuffix(t *testing.T) {
	l := Parse(ClientMandatory, []string{"*.log"})
	assert.True(t, l.Matches("debug.log"))
	assert.False(t, l.Matches("debug.txt"))
}

func TestParse_LiteralExtra(t *testing.T) {
	l := Parse(ClientMandatory, []string{"vendor"})
	assert.True(t, l.Matches("vendor"))
	assert.False(t, l.Matches("vendored"))
}

func TestParse_DuplicateWildcardsDeduped(t *testing.T) {
	l := Parse(ClientMandatory, []string{"*.log", "*.log"})
	assert.Len(t, l.Wildcards, 1)
}
