package tools

import (
	"errors"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/aquilax/truncate"
	"github.com/distribution/reference"
	"k8s.io/apimachinery/pkg/util/validation"
)

// PackageVersion returns the version name was built at, name being the main
// module or one of its dependencies.
func PackageVersion(name string) string {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		if bi.Main.Path == name && bi.Main.Version != "" {
			return bi.Main.Version
		}
		for _, dep := range bi.Deps {
			if dep.Path == name {
				return dep.Version
			}
		}
	}
	return "unknown"
}

var offendingChars = regexp.MustCompile("[^a-z0-9-]+")

// SanitizeHostname turns s into a valid DNS-1123 label, to be used as a
// container hostname.
func SanitizeHostname(s string) string {
	s2 := truncate.Truncate(offendingChars.ReplaceAllString(strings.ToLower(s), "-"), validation.DNS1123LabelMaxLength, "", truncate.PositionEnd)
	// remove leading and trailing dashes
	return strings.Trim(s2, "-")
}

// ValidateHostname returns an error when s is not a valid DNS-1123 label.
func ValidateHostname(s string) error {
	if errs := validation.IsDNS1123Label(s); len(errs) != 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	return nil
}

// NormalizeReference returns ref in the short form the daemon uses in its
// events and repo tags, with the default tag added when ref has none.
// Unparsable references are returned unchanged.
func NormalizeReference(ref string) string {
	n, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return ref
	}
	return reference.FamiliarString(reference.TagNameOnly(n))
}

// SameReference reports whether a and b name the same image.
func SameReference(a, b string) bool {
	return NormalizeReference(a) == NormalizeReference(b)
}
