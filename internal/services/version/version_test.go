package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, BuildTime, info.BuildTime)
	assert.Equal(t, GitCommit, info.GitCommit)
}

func TestString(t *testing.T) {
	info := Info{Version: "1.2.3", BuildTime: "2026-01-01", GitCommit: "abc123"}
	assert.Equal(t, "1.2.3 (build 2026-01-01, commit abc123)", info.String())
}
