package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"HabitQuest/config"
)

func TestKey(t *testing.T) {
	prev := config.Cfg
	t.Cleanup(func() { config.Cfg = prev })

	config.Cfg.RedisPrefix = ""
	assert.Equal(t, "hq:lock:claim:u1:3", Key("lock:claim", "u1", "", "3"))

	config.Cfg.RedisPrefix = "staging"
	assert.Equal(t, "staging:quest:catalog", Key("quest", "catalog"))
}
