// Package nginx renders reverse-proxy configuration from a routing snapshot.
// This is part of the functional core: rendering is pure, deterministic, and
// always produces the complete file set. The shell (internal/shell/nginx)
// owns writing, validation, and reloads.
package nginx

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// =============================================================================
// Snapshot Types
// =============================================================================

// Route is the desired routing state for one project.
type Route struct {
	ProjectID string
	Slug      string
	// Upstream is the container name on the shared network.
	Upstream string
	// Port is the container port the application listens on.
	Port    int
	Domains []DomainRoute
}

// DomainRoute is one hostname bound to a route.
type DomainRoute struct {
	Hostname string
	Wildcard bool
	// TLS is true once a certificate is issued and installed.
	TLS bool
}

// Params carries the host paths baked into rendered config.
type Params struct {
	// WebrootDir serves ACME HTTP-01 challenge files.
	WebrootDir string
	// CertDir holds {hostname}.crt / {hostname}.key pairs.
	CertDir string
}

// =============================================================================
// Rendering
// =============================================================================

// DefaultFile is the catch-all config file name.
const DefaultFile = "auraops-default.conf"

// FileName returns the config file name for a project.
func FileName(slug string) string {
	return fmt.Sprintf("auraops-%s.conf", slug)
}

// CertPath returns the certificate path for a hostname.
func CertPath(certDir, hostname string) string {
	return path.Join(certDir, hostname+".crt")
}

// KeyPath returns the private key path for a hostname.
func KeyPath(certDir, hostname string) string {
	return path.Join(certDir, hostname+".key")
}

// Render produces the complete config file set for the snapshot, keyed by
// file name. Routes without domains render no file; the default catch-all
// is always present.
func Render(routes []Route, params Params) map[string]string {
	files := map[string]string{
		DefaultFile: renderDefault(params),
	}

	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slug < sorted[j].Slug })

	for _, r := range sorted {
		if len(r.Domains) == 0 {
			continue
		}
		files[FileName(r.Slug)] = renderRoute(r, params)
	}

	return files
}

func renderRoute(r Route, params Params) string {
	var b strings.Builder

	upstream := fmt.Sprintf("http://%s:%d", r.Upstream, r.Port)

	domains := make([]DomainRoute, len(r.Domains))
	copy(domains, r.Domains)
	sort.Slice(domains, func(i, j int) bool { return domains[i].Hostname < domains[j].Hostname })

	var plainHosts, tlsHosts []DomainRoute
	for _, d := range domains {
		if d.TLS {
			tlsHosts = append(tlsHosts, d)
		} else {
			plainHosts = append(plainHosts, d)
		}
	}

	fmt.Fprintf(&b, "# project %s\n", r.ProjectID)

	// Port 80: ACME challenges always. Hostnames with a certificate redirect
	// to HTTPS; the rest proxy plain. Separate server blocks keep one plain
	// hostname from holding every certified one on HTTP.
	first := true
	if len(plainHosts) > 0 {
		writeHTTPServer(&b, serverNames(plainHosts), params, func(b *strings.Builder) {
			writeProxyPass(b, upstream)
		})
		first = false
	}
	if len(tlsHosts) > 0 {
		if !first {
			b.WriteString("\n")
		}
		writeHTTPServer(&b, serverNames(tlsHosts), params, func(b *strings.Builder) {
			b.WriteString("        return 301 https://$host$request_uri;\n")
		})
	}

	// Port 443: one server block per certified hostname.
	for _, d := range tlsHosts {
		b.WriteString("\n")
		b.WriteString("server {\n")
		b.WriteString("    listen 443 ssl;\n")
		b.WriteString("    http2 on;\n")
		fmt.Fprintf(&b, "    server_name %s;\n", d.Hostname)
		b.WriteString("\n")
		fmt.Fprintf(&b, "    ssl_certificate %s;\n", CertPath(params.CertDir, d.Hostname))
		fmt.Fprintf(&b, "    ssl_certificate_key %s;\n", KeyPath(params.CertDir, d.Hostname))
		b.WriteString("    ssl_protocols TLSv1.2 TLSv1.3;\n")
		b.WriteString("\n")
		b.WriteString("    location / {\n")
		writeProxyPass(&b, upstream)
		b.WriteString("    }\n")
		b.WriteString("}\n")
	}

	return b.String()
}

func renderDefault(params Params) string {
	var b strings.Builder
	b.WriteString("# default catch-all\n")
	b.WriteString("server {\n")
	b.WriteString("    listen 80 default_server;\n")
	b.WriteString("    server_name _;\n")
	b.WriteString("\n")
	b.WriteString("    location /.well-known/acme-challenge/ {\n")
	fmt.Fprintf(&b, "        root %s;\n", params.WebrootDir)
	b.WriteString("    }\n")
	b.WriteString("\n")
	b.WriteString("    location / {\n")
	b.WriteString("        return 404;\n")
	b.WriteString("    }\n")
	b.WriteString("}\n")
	return b.String()
}

func writeHTTPServer(b *strings.Builder, names string, params Params, body func(*strings.Builder)) {
	b.WriteString("server {\n")
	b.WriteString("    listen 80;\n")
	fmt.Fprintf(b, "    server_name %s;\n", names)
	b.WriteString("\n")
	b.WriteString("    location /.well-known/acme-challenge/ {\n")
	fmt.Fprintf(b, "        root %s;\n", params.WebrootDir)
	b.WriteString("    }\n")
	b.WriteString("\n")
	b.WriteString("    location / {\n")
	body(b)
	b.WriteString("    }\n")
	b.WriteString("}\n")
}

func writeProxyPass(b *strings.Builder, upstream string) {
	fmt.Fprintf(b, "        proxy_pass %s;\n", upstream)
	b.WriteString("        proxy_set_header Host $host;\n")
	b.WriteString("        proxy_set_header X-Real-IP $remote_addr;\n")
	b.WriteString("        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
	b.WriteString("        proxy_set_header X-Forwarded-Proto $scheme;\n")
	b.WriteString("        proxy_http_version 1.1;\n")
	b.WriteString("        proxy_set_header Upgrade $http_upgrade;\n")
	b.WriteString("        proxy_set_header Connection \"upgrade\";\n")
}

func serverNames(domains []DomainRoute) string {
	names := make([]string, 0, len(domains))
	for _, d := range domains {
		names = append(names, d.Hostname)
	}
	return strings.Join(names, " ")
}
