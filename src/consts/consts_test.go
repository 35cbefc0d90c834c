package consts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAppInfo(t *testing.T) {
	info := GetAppInfo()
	assert.Equal(t, AppName, info.AppName)
	assert.NotEmpty(t, info.AppVersion)
	assert.NotEmpty(t, info.GoVersion)
	assert.False(t, info.StartedAt.IsZero())
	assert.NotEmpty(t, info.Uptime)
}
