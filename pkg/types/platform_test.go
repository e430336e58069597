package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformTag(t *testing.T) {
	cases := []struct {
		platform Platform
		tag      string
		macos    bool
	}{
		{Platform{"x86_64", "linux"}, "x86_64_linux", false},
		{Platform{"arm64", "linux"}, "arm64_linux", false},
		{Platform{"x86_64", "sonoma"}, "sonoma", true},
		{Platform{"arm64", "sonoma"}, "arm64_sonoma", true},
	}

	for _, c := range cases {
		t.Run(c.tag, func(t *testing.T) {
			assert.Equal(t, c.tag, c.platform.Tag())
			assert.Equal(t, c.tag, c.platform.String())
			assert.Equal(t, c.macos, c.platform.IsMacOS())
			assert.Equal(t, c.platform, PlatformFromTag(c.tag))
		})
	}
}

func TestHostPlatform(t *testing.T) {
	p := HostPlatform("sonoma")
	assert.Contains(t, []string{"x86_64", "arm64"}, p.Arch)
	assert.NotEmpty(t, p.OS)
}
