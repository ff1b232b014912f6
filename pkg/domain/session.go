package domain

import "time"

// SessionStatus is the lifecycle state of a dining session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionClosed  SessionStatus = "closed"
)

// ReasonExcessiveDevices is added to Flags.Reasons when a session reaches
// the device threshold.
const ReasonExcessiveDevices = "EXCESSIVE_DEVICES"

// Session is one dining occasion at one table.
type Session struct {
	SessionID     string        `bson:"sessionId" json:"sessionId"`
	TableID       string        `bson:"tableId,omitempty" json:"tableId,omitempty"`
	TableNumber   int           `bson:"tableNumber" json:"tableNumber"`
	Status        SessionStatus `bson:"status" json:"status"`
	StartTime     time.Time     `bson:"startTime" json:"startTime"`
	ExpiryTime    time.Time     `bson:"expiryTime" json:"expiryTime"`
	LastActivity  time.Time     `bson:"lastActivity" json:"lastActivity"`
	UpdatedAt     time.Time     `bson:"updatedAt" json:"updatedAt"`
	LastOrderTime *time.Time    `bson:"lastOrderTime,omitempty" json:"lastOrderTime,omitempty"`
	Devices       []Device      `bson:"devices" json:"devices"`
	TotalDevices  int           `bson:"totalDevices" json:"totalDevices"`
	OrderCount    int           `bson:"orderCount" json:"orderCount"`
	TotalAmount   float64       `bson:"totalAmount" json:"totalAmount"`
	Flags         Flags         `bson:"flags" json:"flags"`
	ClosedAt      *time.Time    `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
	ClosedBy      string        `bson:"closedBy,omitempty" json:"closedBy,omitempty"`
	ClosedReason  string        `bson:"closedReason,omitempty" json:"closedReason,omitempty"`
}

// Device is a client that joined a session.
type Device struct {
	Fingerprint string    `bson:"fingerprint" json:"fingerprint"`
	IPAddress   string    `bson:"ipAddress" json:"ipAddress"`
	UserAgent   string    `bson:"userAgent" json:"userAgent"`
	DeviceInfo  string    `bson:"deviceInfo,omitempty" json:"deviceInfo,omitempty"`
	FirstSeen   time.Time `bson:"firstSeen" json:"firstSeen"`
	LastSeen    time.Time `bson:"lastSeen" json:"lastSeen"`
	OrderCount  int       `bson:"orderCount" json:"orderCount"`
}

// Flags holds suspicious-activity markers for a session.
type Flags struct {
	IsSuspicious    bool       `bson:"isSuspicious" json:"isSuspicious"`
	ManuallyFlagged bool       `bson:"manuallyFlagged" json:"manuallyFlagged"`
	AutoFlagged     bool       `bson:"autoFlagged" json:"autoFlagged"`
	FlaggedAt       *time.Time `bson:"flaggedAt,omitempty" json:"flaggedAt,omitempty"`
	FlaggedBy       string     `bson:"flaggedBy,omitempty" json:"flaggedBy,omitempty"`
	Reasons         []string   `bson:"reasons" json:"reasons"`
}

// IsExpired reports whether the session deadline has passed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiryTime)
}

// HasDevice reports whether a device with the fingerprint already joined.
func (s *Session) HasDevice(fingerprint string) bool {
	for _, d := range s.Devices {
		if d.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// NewSession returns an active session starting at now.
func NewSession(sessionID, tableID string, tableNumber int, now time.Time, ttl time.Duration) *Session {
	return &Session{
		SessionID:    sessionID,
		TableID:      tableID,
		TableNumber:  tableNumber,
		Status:       SessionActive,
		StartTime:    now,
		ExpiryTime:   now.Add(ttl),
		LastActivity: now,
		UpdatedAt:    now,
		Devices:      []Device{},
		Flags:        Flags{Reasons: []string{}},
	}
}
