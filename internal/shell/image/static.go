package image

import (
	"fmt"
	"strings"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Static Site Dockerfile Synthesis
// =============================================================================

const (
	staticBuildImage = "node:20-alpine"
	staticServeImage = "nginx:alpine"
	staticServeRoot  = "/usr/share/nginx/html"
)

// staticDockerfile synthesizes a Dockerfile that builds a static site and
// serves it with nginx. When the source has no build command the repository
// contents are assumed to be prebuilt and the output directory is copied
// straight into the serve image.
func staticDockerfile(src domain.Source) string {
	outputDir := strings.Trim(src.OutputDir, "/")

	if src.BuildCommand == "" {
		return fmt.Sprintf(`FROM %s
COPY %s %s
EXPOSE 80
`, staticServeImage, outputDir, staticServeRoot)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s AS build\n", staticBuildImage)
	b.WriteString("WORKDIR /app\n")
	b.WriteString("COPY . .\n")
	if src.InstallCommand != "" {
		fmt.Fprintf(&b, "RUN %s\n", src.InstallCommand)
	}
	fmt.Fprintf(&b, "RUN %s\n", src.BuildCommand)
	b.WriteString("\n")
	fmt.Fprintf(&b, "FROM %s\n", staticServeImage)
	fmt.Fprintf(&b, "COPY --from=build /app/%s %s\n", outputDir, staticServeRoot)
	b.WriteString("EXPOSE 80\n")
	return b.String()
}
