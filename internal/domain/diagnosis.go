package domain

// FixType classifies a diagnosed service failure.
type FixType string

const (
	FixNone            FixType = "none"
	FixMissingSSL      FixType = "missing_ssl"
	FixPortConflict    FixType = "port_conflict"
	FixPermissionError FixType = "permission_error"
)

// ServiceDiagnosis captures the state of a failed service at one moment.
type ServiceDiagnosis struct {
	Service    string  `json:"service"`
	Status     string  `json:"status"`
	Logs       string  `json:"logs"`
	Suggestion string  `json:"suggestion,omitempty"`
	FixType    FixType `json:"fixType"`
	Rule       string  `json:"rule,omitempty"`
}

// Actionable reports whether a classification rule matched.
func (d ServiceDiagnosis) Actionable() bool {
	return d.FixType != FixNone
}
