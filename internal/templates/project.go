package templates

import (
	"fmt"
	"sort"
	"strings"
)

// ProjectData feeds the project scaffolding templates.
type ProjectData struct {
	Name         string
	Port         int
	DataPath     string
	RootPassword string
	DBPassword   string
}

// ProjectTemplate scaffolds the container files for a kind of site.
type ProjectTemplate struct {
	ID          string
	Name        string
	Description string
	dockerfile  string
	compose     string
}

// Files renders the template into files relative to the project directory.
func (t ProjectTemplate) Files(data ProjectData) []ConfigFile {
	data.DataPath = strings.ReplaceAll(data.DataPath, `\`, "/")
	view := struct {
		ProjectData
		URL string
	}{ProjectData: data, URL: fmt.Sprintf("http://localhost:%d", data.Port)}

	var out []ConfigFile
	if t.dockerfile != "" {
		out = append(out, ConfigFile{Path: "Dockerfile", Content: render(t.dockerfile, view)})
	}
	out = append(out, ConfigFile{Path: "docker-compose.yml", Content: render(t.compose, view)})
	return out
}

// NeedsSecrets reports whether the template embeds database credentials.
func (t ProjectTemplate) NeedsSecrets() bool {
	return t.ID == "wordpress"
}

var catalog = map[string]ProjectTemplate{
	"nextjs": {
		ID:          "nextjs",
		Name:        "Next.js App",
		Description: "Next.js application on Node 18",
		dockerfile:  "nextjs.Dockerfile.tmpl",
		compose:     "nextjs.compose.yml.tmpl",
	},
	"wordpress": {
		ID:          "wordpress",
		Name:        "WordPress",
		Description: "WordPress with a MySQL database",
		compose:     "wordpress.compose.yml.tmpl",
	},
	"ghost": {
		ID:          "ghost",
		Name:        "Ghost Blog",
		Description: "Ghost publishing platform",
		compose:     "ghost.compose.yml.tmpl",
	},
}

// Lookup returns the project template registered under id.
func Lookup(id string) (ProjectTemplate, bool) {
	t, ok := catalog[id]
	return t, ok
}

// Catalog lists the available project templates sorted by id.
func Catalog() []ProjectTemplate {
	out := make([]ProjectTemplate, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ProjectContainerPrefix is shared by every container a project template creates.
func ProjectContainerPrefix(project string) string {
	return project + "_"
}
