package domain

import "github.com/gosimple/slug"

// =============================================================================
// Slug Generation
// =============================================================================

// Slugify converts a project name to a URL-safe slug.
//
// Example:
//
//	Slugify("Hello World")   // returns "hello-world"
//	Slugify("My App 2.0!")   // returns "my-app-2-0"
func Slugify(name string) string {
	return slug.Make(name)
}

// ValidSlug reports whether s is a well-formed slug.
func ValidSlug(s string) bool {
	return s != "" && slug.IsSlug(s)
}
