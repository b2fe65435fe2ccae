package models

const (
	StatusReserved  = "reserved"
	StatusCancelled = "cancelled"
)

// ParseModeHTML is the only parse mode the bot sends; user text is escaped before formatting.
const ParseModeHTML = "HTML"

const (
	// DefaultSessionTTL is how long an unfinished booking dialog survives without input.
	DefaultSessionTTL = 30 * 60 // seconds

	// DefaultSessionSweepInterval is the period of the in-memory session sweeper.
	DefaultSessionSweepInterval = 60 // seconds

	// DefaultMaxDaysAhead limits how far in the future a room can be booked.
	DefaultMaxDaysAhead = 365

	// MaxUpcomingEvents caps the events listed on a room card.
	MaxUpcomingEvents = 10

	// RateLimitMessages is the number of bot messages allowed per window.
	RateLimitMessages = 20

	// RateLimitWindow is the bot rate limit window.
	RateLimitWindow = 60 // seconds

	// DefaultExportDays is the export period when none is given.
	DefaultExportDays = 30
)
