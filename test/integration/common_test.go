package integration

import "time"

const (
	defaultWait = 2 * time.Second
	defaultTick = 5 * time.Millisecond
)
