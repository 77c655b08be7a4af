package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	maxConcurrentFetches = 3
	maxRetries           = 3
	retryDelay           = 2 * time.Second
	segments             = 8
	redirectLimit        = 10
	maxBandwidthBPS      = 0 // 0 means unlimited
	cacheMemoryEntries   = 512
)

var (
	stagingDir = filepath.Join(os.TempDir(), configFileName, "staging")
	cacheDir   = filepath.Join(xdg.CacheHome, configFileName)
)
