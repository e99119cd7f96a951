package runner

import (
	"os"
	"strings"
)

// resolveEnvironment merges the process environment with a hermetic
// override environment, prepending the override's PATH rather than
// replacing it.
func resolveEnvironment(sysEnv, overrideEnv []string) []string {
	envMap := make(map[string]string, len(sysEnv)+len(overrideEnv))
	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}
	for _, entry := range overrideEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if k == "PATH" {
			if sysPath, exists := envMap["PATH"]; exists && sysPath != "" {
				envMap[k] = v + string(os.PathListSeparator) + sysPath
				continue
			}
		}
		envMap[k] = v
	}
	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}
