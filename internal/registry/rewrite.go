package registry

import (
	"fmt"
	"strings"
)

// RenderRewrite records where a locally pushed render function landed: the
// pushed manifest digest and the in-cluster prefix that replaces the
// original source.
type RenderRewrite struct {
	Digest       string
	TargetPrefix string
}

// RewriteRenderDependencyVersions pins dependsOn versions in package
// metadata to the digests of locally pushed render functions. The walk is
// line-based so everything outside the touched version lines survives
// byte-for-byte, comments and quoting included.
func RewriteRenderDependencyVersions(packageYAML string, rewrites map[string]RenderRewrite) (string, bool) {
	if len(rewrites) == 0 {
		return packageYAML, false
	}

	changed := false
	inDependsOn := false
	currentPackage := ""
	lines := strings.Split(packageYAML, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "dependsOn:" {
			inDependsOn = true
			currentPackage = ""
			continue
		}

		// A non-indented line ends the dependsOn block.
		if inDependsOn && trimmed != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			inDependsOn = false
			currentPackage = ""
		}

		if !inDependsOn {
			continue
		}

		if strings.HasPrefix(trimmed, "- ") {
			currentPackage = ""
			item := strings.TrimSpace(strings.TrimPrefix(trimmed, "- "))
			if value, ok := strings.CutPrefix(item, "package:"); ok {
				currentPackage = cleanYAMLScalar(value)
			}
			continue
		}

		if value, ok := strings.CutPrefix(trimmed, "package:"); ok {
			currentPackage = cleanYAMLScalar(value)
			continue
		}

		if strings.HasPrefix(trimmed, "version:") && currentPackage != "" {
			if rewrite, ok := rewrites[currentPackage]; ok {
				indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
				lines[i] = fmt.Sprintf("%sversion: %s", indent, rewrite.Digest)
				changed = true
			}
		}
	}

	return strings.Join(lines, "\n"), changed
}

func cleanYAMLScalar(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.Trim(s, `'`)
}
