package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Info{Version: "dev", GitSHA: "unknown", BuildTime: "unknown"}, info)
	assert.Equal(t, "crosswalk dev (unknown, built unknown)", info.String())
}
