package ratelimit

import "time"

// IdentifierType names the dimension a limit applies to.
type IdentifierType string

const (
	// TypeIP limits by source address.
	TypeIP IdentifierType = "ip"
	// TypeUser limits by authenticated subject.
	TypeUser IdentifierType = "user"
	// TypeAPIKey limits by presented API key.
	TypeAPIKey IdentifierType = "api_key"
)

// Identifier is one (type, value) pair a request is counted under.
type Identifier struct {
	Type  IdentifierType
	Value string
}

// IP builds an address identifier.
func IP(addr string) Identifier { return Identifier{Type: TypeIP, Value: addr} }

// User builds a subject identifier.
func User(subject string) Identifier { return Identifier{Type: TypeUser, Value: subject} }

// APIKey builds an API-key identifier.
func APIKey(key string) Identifier { return Identifier{Type: TypeAPIKey, Value: key} }

// Policy is the request budget for one identifier type.
type Policy struct {
	Requests int
	Window   time.Duration
}

// BanPolicy controls the violation-to-ban escalation.
type BanPolicy struct {
	// Threshold is the violation count within Window that triggers a ban.
	// Zero disables automatic bans.
	Threshold int
	Window    time.Duration

	// BaseDuration is the first ban's length; each repeat offense within
	// OffenseMemory multiplies it by EscalationFactor, capped at
	// MaxDuration.
	BaseDuration     time.Duration
	EscalationFactor float64
	MaxDuration      time.Duration
	OffenseMemory    time.Duration
}

// Outcome classifies a Decision.
type Outcome uint8

const (
	// OutcomeAllowed admits the request.
	OutcomeAllowed Outcome = iota
	// OutcomeDenied rejects the request for this window.
	OutcomeDenied
	// OutcomeBanned rejects the request until the ban lifts.
	OutcomeBanned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeDenied:
		return "denied"
	case OutcomeBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Decision is the result of a limit check. Remaining is -1 when the request
// was not counted: either no policy covers the identifier type, or the
// check failed open during a store outage (FailedOpen is set in that case).
type Decision struct {
	Outcome    Outcome
	Identifier Identifier

	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time

	BannedUntil time.Time
	FailedOpen  bool

	// BanIssued marks the denial that tripped the ban threshold. The
	// request itself is Denied; everything after it is Banned.
	BanIssued bool
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }

type banRecord struct {
	BannedUntil time.Time `json:"banned_until"`
	Reason      string    `json:"reason"`
	Offense     int       `json:"offense"`
}
