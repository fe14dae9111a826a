package patient

import (
	"encoding/json"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestPatient_Online(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seen := base

	tests := []struct {
		name string
		p    Patient
		now  time.Time
		want bool
	}{
		{"fresh heartbeat", Patient{DeviceID: strPtr("dev-1"), DeviceActive: true, DeviceLastSeen: &seen}, base.Add(89 * time.Second), true},
		{"stale heartbeat", Patient{DeviceID: strPtr("dev-1"), DeviceActive: true, DeviceLastSeen: &seen}, base.Add(91 * time.Second), false},
		{"exactly at window", Patient{DeviceID: strPtr("dev-1"), DeviceActive: true, DeviceLastSeen: &seen}, base.Add(OnlineWindow), false},
		{"disabled device", Patient{DeviceID: strPtr("dev-1"), DeviceActive: false, DeviceLastSeen: &seen}, base.Add(time.Second), false},
		{"never seen", Patient{DeviceID: strPtr("dev-1"), DeviceActive: true}, base, false},
		{"no device", Patient{DeviceActive: true, DeviceLastSeen: &seen}, base, false},
		{"blank device", Patient{DeviceID: strPtr(""), DeviceActive: true, DeviceLastSeen: &seen}, base, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Online(tt.now); got != tt.want {
				t.Errorf("Online() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPatient_ManagedBy(t *testing.T) {
	p := Patient{UserID: "owner", Caregivers: []string{"cg-1", "cg-2"}}
	if !p.ManagedBy("owner") {
		t.Error("owner should manage the patient")
	}
	if !p.ManagedBy("cg-2") {
		t.Error("caregiver should manage the patient")
	}
	if p.ManagedBy("stranger") {
		t.Error("stranger should not manage the patient")
	}
	if p.ManagedBy("") {
		t.Error("empty user id should never match")
	}
	if p.HasCaregiver("owner") {
		t.Error("owner is not an explicit caregiver")
	}
}

func TestView_JSON(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seen := now.Add(-10 * time.Second)
	p := &Patient{ID: "p1", UserID: "u1", Caregivers: []string{}, Name: "Ada", DeviceID: strPtr("dev-1"), DeviceActive: true, DeviceLastSeen: &seen}

	data, err := json.Marshal(NewView(p, now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["_id"] != "p1" {
		t.Errorf("_id = %v, want p1", m["_id"])
	}
	if m["deviceOnline"] != true {
		t.Errorf("deviceOnline = %v, want true", m["deviceOnline"])
	}
	if m["deviceId"] != "dev-1" {
		t.Errorf("deviceId = %v, want dev-1", m["deviceId"])
	}
	if _, ok := m["patientEmail"]; !ok {
		t.Error("patientEmail should be present even when null")
	}
}

func TestUpdateRequest_Empty(t *testing.T) {
	if !(UpdateRequest{}).Empty() {
		t.Error("zero request should be empty")
	}
	if (UpdateRequest{PatientEmail: strPtr("")}).Empty() {
		t.Error("clearing the email is a change")
	}
}

func TestNormalizeOptional(t *testing.T) {
	if normalizeOptional(nil, NormalizeEmail) != nil {
		t.Error("nil should stay nil")
	}
	if normalizeOptional(strPtr("   "), NormalizeEmail) != nil {
		t.Error("blank should become nil")
	}
	got := normalizeOptional(strPtr("  Ada@Example.COM "), NormalizeEmail)
	if got == nil || *got != "ada@example.com" {
		t.Errorf("unexpected %v", got)
	}
}
