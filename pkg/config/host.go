package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HostConfig holds the settings for provisioning on this machine.
type HostConfig struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat   string `mapstructure:"log_format" yaml:"log_format"`

	Root         string `mapstructure:"root" yaml:"root"`
	RegistryPath string `mapstructure:"registry_path" yaml:"registry_path"`
	DataRoot     string `mapstructure:"data_root" yaml:"data_root"`
	ProjectsRoot string `mapstructure:"projects_root" yaml:"projects_root"`
	ScratchDir   string `mapstructure:"scratch_dir" yaml:"scratch_dir"`

	BasePort        int `mapstructure:"base_port" yaml:"base_port"`
	WebmailBasePort int `mapstructure:"webmail_base_port" yaml:"webmail_base_port"`

	UseSudo        bool          `mapstructure:"use_sudo" yaml:"use_sudo"`
	PackageManager string        `mapstructure:"package_manager" yaml:"package_manager"`
	ProbeCacheTTL  time.Duration `mapstructure:"probe_cache_ttl" yaml:"probe_cache_ttl"`
	LogTailLines   int           `mapstructure:"log_tail_lines" yaml:"log_tail_lines"`

	NginxSitesAvailable string `mapstructure:"nginx_sites_available" yaml:"nginx_sites_available"`
	NginxSitesEnabled   string `mapstructure:"nginx_sites_enabled" yaml:"nginx_sites_enabled"`
	NginxContainerName  string `mapstructure:"nginx_container_name" yaml:"nginx_container_name"`
	NginxReloadCommand  string `mapstructure:"nginx_reload_command" yaml:"nginx_reload_command"`
	DockerHost          string `mapstructure:"docker_host" yaml:"docker_host"`

	PostfixDir      string `mapstructure:"postfix_dir" yaml:"postfix_dir"`
	DovecotDir      string `mapstructure:"dovecot_dir" yaml:"dovecot_dir"`
	VirtualMapPath  string `mapstructure:"virtual_map_path" yaml:"virtual_map_path"`
	LetsEncryptLive string `mapstructure:"letsencrypt_live" yaml:"letsencrypt_live"`
	CertEmail       string `mapstructure:"cert_email" yaml:"cert_email"`

	DashboardAddr     string        `mapstructure:"dashboard_addr" yaml:"dashboard_addr"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests" yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"`
	RedisAddr         string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword     string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB           int           `mapstructure:"redis_db" yaml:"redis_db"`
}

func setDefaults(v *viper.Viper) {
	root := DefaultRoot()
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("root", root)
	v.SetDefault("registry_path", "")
	v.SetDefault("data_root", "")
	v.SetDefault("projects_root", "")
	v.SetDefault("scratch_dir", os.TempDir())

	v.SetDefault("base_port", 3000)
	v.SetDefault("webmail_base_port", 8000)

	v.SetDefault("use_sudo", true)
	v.SetDefault("package_manager", "apt")
	v.SetDefault("probe_cache_ttl", 10*time.Minute)
	v.SetDefault("log_tail_lines", 50)

	v.SetDefault("nginx_sites_available", "/etc/nginx/sites-available")
	v.SetDefault("nginx_sites_enabled", "/etc/nginx/sites-enabled")
	v.SetDefault("nginx_container_name", "")
	v.SetDefault("nginx_reload_command", "")
	v.SetDefault("docker_host", "")

	v.SetDefault("postfix_dir", "/etc/postfix")
	v.SetDefault("dovecot_dir", "/etc/dovecot")
	v.SetDefault("virtual_map_path", "/etc/postfix/virtual")
	v.SetDefault("letsencrypt_live", "/etc/letsencrypt/live")
	v.SetDefault("cert_email", "")

	v.SetDefault("dashboard_addr", "127.0.0.1:4000")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("rate_limit_requests", 60)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
}

// expand fills the paths derived from Root and resolves a leading ~.
func (c *HostConfig) expand() {
	c.Root = expandHome(c.Root)
	if c.RegistryPath == "" {
		c.RegistryPath = filepath.Join(c.Root, "projects.json")
	}
	if c.DataRoot == "" {
		c.DataRoot = filepath.Join(c.Root, "data")
	}
	if c.ProjectsRoot == "" {
		c.ProjectsRoot = filepath.Join(c.Root, "sites")
	}
	c.RegistryPath = expandHome(c.RegistryPath)
	c.DataRoot = expandHome(c.DataRoot)
	c.ProjectsRoot = expandHome(c.ProjectsRoot)
	c.ScratchDir = expandHome(c.ScratchDir)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
