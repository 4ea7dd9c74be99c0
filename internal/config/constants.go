package config

import "time"

const (
	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Task text limits
	MaxTitleLen       = 120
	MaxDescriptionLen = 2000

	// Service area bounding box for task coordinates
	MinLatitude  = 22.0
	MaxLatitude  = 31.5
	MinLongitude = 24.0
	MaxLongitude = 36.0

	// Concurrent payment releases when a task completes
	ReleaseConcurrency = 4

	// A pending hold younger than this may be adopted by a retried hold
	// for the same assignment. ORPHAN_HOLD_AGE must be longer.
	HoldAdoptWindow = 5 * time.Minute

	// Saga replay batch size
	SagaReplayBatch = 50

	// Rate limits (per minute)
	RateLimitRegular = 20

	// Ledger rows shown under /balance
	BalanceHistoryLen = 5

	// Offers per page on the poster's task view
	OffersPerPage = 10

	// Updates slower than this are logged at warn level
	SlowUpdateThreshold = 3 * time.Second

	// Ops HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 15 * time.Second
)
