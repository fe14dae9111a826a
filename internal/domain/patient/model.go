package patient

import (
	"strings"
	"time"
)

// OnlineWindow is how recent a heartbeat must be for a device to count as
// online.
const OnlineWindow = 90 * time.Second

// Patient is a person whose doses are tracked. It is owned by the user who
// created it and may be co-administered by the users in Caregivers.
type Patient struct {
	ID             string     `json:"_id"`
	UserID         string     `json:"userId"`
	Caregivers     []string   `json:"caregivers"`
	Name           string     `json:"name"`
	Age            *int       `json:"age,omitempty"`
	CaregiverName  string     `json:"caregiverName,omitempty"`
	CaregiverPhone string     `json:"caregiverPhone,omitempty"`
	PatientEmail   *string    `json:"patientEmail"`
	DeviceID       *string    `json:"deviceId"`
	DeviceActive   bool       `json:"deviceActive"`
	DeviceLastSeen *time.Time `json:"deviceLastSeen"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// HasDevice reports whether a device id is linked, active or not.
func (p *Patient) HasDevice() bool {
	return p.DeviceID != nil && *p.DeviceID != ""
}

// Online reports whether the linked device is active and sent a heartbeat
// within OnlineWindow of now.
func (p *Patient) Online(now time.Time) bool {
	if !p.HasDevice() || !p.DeviceActive || p.DeviceLastSeen == nil {
		return false
	}
	return now.Sub(*p.DeviceLastSeen) < OnlineWindow
}

// HasCaregiver reports explicit caregiver membership, ignoring ownership.
func (p *Patient) HasCaregiver(userID string) bool {
	for _, id := range p.Caregivers {
		if id == userID {
			return true
		}
	}
	return false
}

// ManagedBy reports whether userID owns the record or is one of its
// caregivers.
func (p *Patient) ManagedBy(userID string) bool {
	return userID != "" && (p.UserID == userID || p.HasCaregiver(userID))
}

// View is the response shape for a patient, with the derived online flag.
type View struct {
	*Patient
	DeviceOnline bool `json:"deviceOnline"`
}

func NewView(p *Patient, now time.Time) View {
	return View{Patient: p, DeviceOnline: p.Online(now)}
}

// CreateRequest is the body of a patient creation.
type CreateRequest struct {
	Name           string  `json:"name"`
	Age            *int    `json:"age"`
	CaregiverName  string  `json:"caregiverName"`
	CaregiverPhone string  `json:"caregiverPhone"`
	PatientEmail   *string `json:"patientEmail"`
	DeviceID       *string `json:"deviceId"`
}

// UpdateRequest carries profile edits. Nil fields are left unchanged and an
// empty PatientEmail clears the stored one. Device fields are absent: they
// change only through device operations.
type UpdateRequest struct {
	Name           *string `json:"name"`
	Age            *int    `json:"age"`
	CaregiverName  *string `json:"caregiverName"`
	CaregiverPhone *string `json:"caregiverPhone"`
	PatientEmail   *string `json:"patientEmail"`
}

// Empty reports whether the request changes nothing.
func (r UpdateRequest) Empty() bool {
	return r.Name == nil && r.Age == nil && r.CaregiverName == nil &&
		r.CaregiverPhone == nil && r.PatientEmail == nil
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeOptional trims s and maps blank values to nil.
func normalizeOptional(s *string, fn func(string) string) *string {
	if s == nil {
		return nil
	}
	v := fn(*s)
	if v == "" {
		return nil
	}
	return &v
}
