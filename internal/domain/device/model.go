package device

// LinkRequest binds a device id to a patient.
type LinkRequest struct {
	PatientID string `json:"patientId"`
	DeviceID  string `json:"deviceId"`
}

// PatientRequest names the patient whose device is unlinked, disabled or
// enabled.
type PatientRequest struct {
	PatientID string `json:"patientId"`
}

// HeartbeatRequest is the liveness ping a device sends.
type HeartbeatRequest struct {
	DeviceID string `json:"deviceId"`
}
