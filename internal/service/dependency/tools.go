package dependency

import (
	"fmt"
	"sort"
)

// Tool describes how to detect and install one host binary.
type Tool struct {
	Binary    string
	ProbeArgs []string
	Packages  []string
}

// Tools is the static table of binaries the provisioning steps rely on.
var Tools = map[string]Tool{
	"docker":  {Binary: "docker", Packages: []string{"docker.io", "docker-compose-v2", "docker-buildx"}},
	"nginx":   {Binary: "nginx", ProbeArgs: []string{"-v"}, Packages: []string{"nginx"}},
	"certbot": {Binary: "certbot", Packages: []string{"certbot", "python3-certbot-nginx"}},
	"postfix": {Binary: "postfix", ProbeArgs: []string{"status"}, Packages: []string{"postfix", "libsasl2-modules"}},
	"dovecot": {Binary: "dovecot", Packages: []string{"dovecot-core", "dovecot-imapd", "dovecot-pop3d"}},
	"ufw":     {Binary: "ufw", Packages: []string{"ufw"}},
	"git":     {Binary: "git", Packages: []string{"git"}},
	"npm":     {Binary: "npm", Packages: []string{"npm"}},
}

func (t Tool) probeArgs() []string {
	if len(t.ProbeArgs) == 0 {
		return []string{"--version"}
	}
	return t.ProbeArgs
}

// ToolNames returns the known tool names in sorted order.
func ToolNames() []string {
	names := make([]string, 0, len(Tools))
	for name := range Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PackageManager installs packages non-interactively.
type PackageManager struct {
	Name    string
	Binary  string
	Refresh []string
	Install []string
	Upgrade []string
	Clean   []string
}

var packageManagers = map[string]PackageManager{
	"apt": {
		Name: "apt", Binary: "apt-get",
		Refresh: []string{"update"}, Install: []string{"install", "-y"},
		Upgrade: []string{"upgrade", "-y"}, Clean: []string{"autoremove", "-y"},
	},
	"dnf": {
		Name: "dnf", Binary: "dnf",
		Refresh: []string{"makecache"}, Install: []string{"install", "-y"},
		Upgrade: []string{"upgrade", "-y"}, Clean: []string{"autoremove", "-y"},
	},
	"yum": {
		Name: "yum", Binary: "yum",
		Refresh: []string{"makecache"}, Install: []string{"install", "-y"},
		Upgrade: []string{"update", "-y"}, Clean: []string{"autoremove", "-y"},
	},
}

// LookupPackageManager resolves a configured package manager name.
func LookupPackageManager(name string) (PackageManager, error) {
	if name == "" {
		name = "apt"
	}
	pm, ok := packageManagers[name]
	if !ok {
		return PackageManager{}, fmt.Errorf("unsupported package manager %q", name)
	}
	return pm, nil
}
