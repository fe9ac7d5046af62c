package domain

import "time"

// ProjectRecord is the registry entry for one hosted site. The registry map
// key is the project name; Name is filled in when records are read back.
type ProjectRecord struct {
	Name        string    `json:"-"`
	ProjectPath string    `json:"projectPath"`
	DataPath    string    `json:"dataPath"`
	Port        int       `json:"port"`
	Domain      string    `json:"domain,omitempty"`
	WebmailPort int       `json:"webmailPort,omitempty"`
	Template    string    `json:"template,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasDomain reports whether a domain has been linked.
func (p ProjectRecord) HasDomain() bool {
	return p.Domain != ""
}

// WebmailHost is the proxy host name used for the webmail interface.
func (p ProjectRecord) WebmailHost() string {
	if p.Domain == "" {
		return ""
	}
	return "webmail." + p.Domain
}

// LocalConfig mirrors part of the registry entry next to the project sources.
// It is informational; the registry stays authoritative.
type LocalConfig struct {
	Name      string    `json:"name"`
	DataPath  string    `json:"dataPath"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// LocalConfigFile is the mirror file name inside the project directory.
const LocalConfigFile = "peephost.json"

// Mirror builds the local config view of the record.
func (p ProjectRecord) Mirror() LocalConfig {
	return LocalConfig{Name: p.Name, DataPath: p.DataPath, Domain: p.Domain, CreatedAt: p.CreatedAt}
}

// ContainerStat is a point in time resource sample for one container.
type ContainerStat struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryBytes   uint64  `json:"memoryBytes"`
	MemoryLimit   uint64  `json:"memoryLimit"`
	MemoryPercent float64 `json:"memoryPercent"`
}
