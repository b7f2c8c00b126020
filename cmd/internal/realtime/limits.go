package realtime

import "time"

// Security/performance limits for the notice stream.
const (
	// Max bytes per websocket frame read (hard limit). Clients only send small control events.
	maxFrameBytes = 4 << 10 // 4 KiB

	// Max notice id length accepted in a dismiss event.
	maxNoticeIDChars = 64
)

const (
	// Heartbeat defaults.
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
