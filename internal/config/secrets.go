package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads envName using the <NAME>_FILE convention used by
// Docker and Kubernetes secrets. When envName+"_FILE" is set, the trimmed
// file content wins; otherwise the plain variable is returned.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			// The path is safe to report; the content never is.
			return "", fmt.Errorf("read secret %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}
