package app

import (
	"time"

	"ble-bearing.klederson.com/internal/live"
)

// TickMsg triggers a frame update for animation.
type TickMsg time.Time

// FrameMsg carries one estimation tick from the aggregator.
type FrameMsg live.Frame
