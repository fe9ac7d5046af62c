// Package templates renders the configuration files written during
// provisioning. Every function is pure: the same input yields the same text.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"
)

//go:embed files
var files embed.FS

var tmpl = template.Must(template.New("peephost").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(files, "files/*/*.tmpl"))

// ConfigFile is generated content bound for a path.
type ConfigFile struct {
	Path    string
	Content string
}

// render executes a named template. Templates are embedded and checked by
// tests, so an execution failure is a programming error.
func render(name string, data any) string {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		panic(fmt.Sprintf("templates: render %s: %v", name, err))
	}
	return buf.String()
}

// CertificateTargets lists the host names a site certificate covers.
func CertificateTargets(domain string) []string {
	return []string{domain, "www." + domain}
}

// ProxyConfig returns the nginx server block proxying domain and its www
// alias to the local port.
func ProxyConfig(domain string, port int) string {
	return render("proxy.conf.tmpl", struct {
		Hosts []string
		Port  int
	}{Hosts: CertificateTargets(domain), Port: port})
}

// HostProxyConfig proxies a single host name, used for subdomains such as
// the webmail interface.
func HostProxyConfig(host string, port int) string {
	return render("proxy.conf.tmpl", struct {
		Hosts []string
		Port  int
	}{Hosts: []string{host}, Port: port})
}

// MailPaths locates the mail stack configuration on the host.
type MailPaths struct {
	PostfixDir      string
	DovecotDir      string
	VirtualMap      string
	LetsEncryptLive string
}

// DefaultMailPaths are the Debian package locations.
func DefaultMailPaths() MailPaths {
	return MailPaths{
		PostfixDir:      "/etc/postfix",
		DovecotDir:      "/etc/dovecot",
		VirtualMap:      "/etc/postfix/virtual",
		LetsEncryptLive: "/etc/letsencrypt/live",
	}
}

// CertDir is the live certificate directory for domain.
func (p MailPaths) CertDir(domain string) string {
	return path.Join(p.LetsEncryptLive, domain)
}

type mailData struct {
	Domain     string
	CertDir    string
	VirtualMap string
}

func (p MailPaths) data(domain string) mailData {
	return mailData{Domain: domain, CertDir: p.CertDir(domain), VirtualMap: p.VirtualMap}
}

// MailTransferConfig returns the postfix main.cf and master.cf for domain.
func MailTransferConfig(domain string, p MailPaths) []ConfigFile {
	d := p.data(domain)
	return []ConfigFile{
		{Path: path.Join(p.PostfixDir, "main.cf"), Content: render("main.cf.tmpl", d)},
		{Path: path.Join(p.PostfixDir, "master.cf"), Content: render("master.cf.tmpl", d)},
	}
}

// MailDeliveryConfig returns the dovecot configuration set for domain.
func MailDeliveryConfig(domain string, p MailPaths) []ConfigFile {
	d := p.data(domain)
	confD := path.Join(p.DovecotDir, "conf.d")
	return []ConfigFile{
		{Path: path.Join(p.DovecotDir, "dovecot.conf"), Content: render("dovecot.conf.tmpl", d)},
		{Path: path.Join(confD, "10-mail.conf"), Content: render("10-mail.conf.tmpl", d)},
		{Path: path.Join(confD, "10-auth.conf"), Content: render("10-auth.conf.tmpl", d)},
		{Path: path.Join(confD, "10-ssl.conf"), Content: render("10-ssl.conf.tmpl", d)},
		{Path: path.Join(confD, "10-master.conf"), Content: render("10-master.conf.tmpl", d)},
	}
}

// WebmailSecrets are the database credentials baked into the webmail compose.
type WebmailSecrets struct {
	RootPassword string
	DBPassword   string
}

// WebInterfaceCompose returns the docker compose file for the Roundcube
// webmail of project, published on the host port.
func WebInterfaceCompose(project string, port int, secrets WebmailSecrets) string {
	return render("webmail.yml.tmpl", struct {
		Name         string
		Binding      string
		RootPassword string
		DBPassword   string
	}{
		Name:         project,
		Binding:      fmt.Sprintf("%d:80", port),
		RootPassword: secrets.RootPassword,
		DBPassword:   secrets.DBPassword,
	})
}

// WebmailContainers are the container names created by WebInterfaceCompose.
func WebmailContainers(project string) []string {
	return []string{project + "_roundcube", project + "_roundcube_db"}
}
