package nginx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{
	WebrootDir: "/var/www/acme",
	CertDir:    "/etc/auraops/certs",
}

func TestRenderAlwaysIncludesDefault(t *testing.T) {
	files := Render(nil, testParams)
	require.Contains(t, files, DefaultFile)

	conf := files[DefaultFile]
	assert.Contains(t, conf, "listen 80 default_server;")
	assert.Contains(t, conf, "root /var/www/acme;")
	assert.Contains(t, conf, "return 404;")
}

func TestRenderPlainHTTPRoute(t *testing.T) {
	routes := []Route{{
		ProjectID: "p1",
		Slug:      "blog",
		Upstream:  "auraops_app_p1",
		Port:      8080,
		Domains:   []DomainRoute{{Hostname: "blog.example.com"}},
	}}

	files := Render(routes, testParams)
	require.Contains(t, files, "auraops-blog.conf")

	conf := files["auraops-blog.conf"]
	assert.Contains(t, conf, "server_name blog.example.com;")
	assert.Contains(t, conf, "proxy_pass http://auraops_app_p1:8080;")
	assert.Contains(t, conf, "/.well-known/acme-challenge/")
	assert.NotContains(t, conf, "listen 443")
	assert.NotContains(t, conf, "return 301")
}

func TestRenderTLSRoute(t *testing.T) {
	routes := []Route{{
		ProjectID: "p1",
		Slug:      "shop",
		Upstream:  "auraops_app_p1",
		Port:      3000,
		Domains:   []DomainRoute{{Hostname: "shop.example.com", TLS: true}},
	}}

	conf := Render(routes, testParams)["auraops-shop.conf"]

	// HTTP redirects, challenge location survives.
	assert.Contains(t, conf, "return 301 https://$host$request_uri;")
	assert.Contains(t, conf, "/.well-known/acme-challenge/")

	// HTTPS block proxies.
	assert.Contains(t, conf, "listen 443 ssl;")
	assert.Contains(t, conf, "ssl_certificate /etc/auraops/certs/shop.example.com.crt;")
	assert.Contains(t, conf, "ssl_certificate_key /etc/auraops/certs/shop.example.com.key;")
	assert.Contains(t, conf, "proxy_pass http://auraops_app_p1:3000;")
}

func TestRenderMixedTLSSplitsHTTPBlocks(t *testing.T) {
	routes := []Route{{
		ProjectID: "p1",
		Slug:      "app",
		Upstream:  "auraops_app_p1",
		Port:      8080,
		Domains: []DomainRoute{
			{Hostname: "secure.example.com", TLS: true},
			{Hostname: "plain.example.com"},
		},
	}}

	conf := Render(routes, testParams)["auraops-app.conf"]

	// The plain hostname proxies on 80; the certified one redirects even
	// though its sibling has no certificate.
	plainBlock := serverBlockFor(t, conf, "server_name plain.example.com;")
	assert.Contains(t, plainBlock, "proxy_pass http://auraops_app_p1:8080;")
	assert.NotContains(t, plainBlock, "return 301")

	redirectBlock := serverBlockFor(t, conf, "server_name secure.example.com;\n\n    location /.well-known")
	assert.Contains(t, redirectBlock, "return 301 https://$host$request_uri;")
	assert.NotContains(t, redirectBlock, "proxy_pass")
}

// serverBlockFor returns the server block whose header contains the marker.
func serverBlockFor(t *testing.T, conf, marker string) string {
	t.Helper()
	for _, block := range strings.Split(conf, "server {") {
		if strings.Contains(block, marker) {
			return block
		}
	}
	require.Failf(t, "server block not found", "marker %q in:\n%s", marker, conf)
	return ""
}

func TestRenderSkipsRoutesWithoutDomains(t *testing.T) {
	routes := []Route{{ProjectID: "p1", Slug: "internal", Upstream: "c", Port: 80}}
	files := Render(routes, testParams)
	assert.Len(t, files, 1) // default only
}

func TestRenderDeterministic(t *testing.T) {
	routes := []Route{
		{ProjectID: "p2", Slug: "beta", Upstream: "b", Port: 80, Domains: []DomainRoute{{Hostname: "b.example.com"}}},
		{ProjectID: "p1", Slug: "alpha", Upstream: "a", Port: 80, Domains: []DomainRoute{{Hostname: "a2.example.com"}, {Hostname: "a1.example.com"}}},
	}

	first := Render(routes, testParams)
	// Reversed input order must not change output.
	second := Render([]Route{routes[1], routes[0]}, testParams)
	assert.Equal(t, first, second)

	conf := first["auraops-alpha.conf"]
	assert.Less(t, strings.Index(conf, "a1.example.com"), strings.Index(conf, "a2.example.com"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "auraops-my-app.conf", FileName("my-app"))
}
