package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SetYamlConfig persists a key in the project's config.yaml. Existing
// keys are updated in place, even if commented out; new keys append at
// the end.
func SetYamlConfig(key, value string) error {
	dir, err := FindProjectDir()
	if err != nil {
		return err
	}
	return SetYamlConfigIn(dir, key, value)
}

// SetYamlConfigIn is SetYamlConfig against an explicit project directory.
func SetYamlConfigIn(dir, key, value string) error {
	path := filepath.Join(dir, ConfigFileName)

	content, err := os.ReadFile(path) // #nosec G304 -- path derives from the project directory
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	updated := updateYamlKey(string(content), key, value)

	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", ConfigFileName, err)
	}
	return nil
}

// UnsetYamlConfig removes a key from the project's config.yaml.
func UnsetYamlConfig(dir, key string) error {
	path := filepath.Join(dir, ConfigFileName)

	content, err := os.ReadFile(path) // #nosec G304 -- path derives from the project directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	keyPattern := keyLinePattern(key)
	var result []string
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := scanner.Text()
		if keyPattern.MatchString(line) && !strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		result = append(result, line)
	}

	out := strings.Join(result, "\n")
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", ConfigFileName, err)
	}
	return nil
}

// updateYamlKey updates a key in yaml content, handling commented-out
// keys. If the key exists (commented or not) it is replaced in place,
// otherwise appended at the end.
func updateYamlKey(content, key, value string) string {
	newLine := fmt.Sprintf("%s: %s", key, formatYamlValue(value))
	keyPattern := keyLinePattern(key)

	found := false
	var result []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if !found && keyPattern.MatchString(line) {
			matches := keyPattern.FindStringSubmatch(line)
			indent := ""
			if len(matches) > 1 {
				indent = matches[1]
			}
			result = append(result, indent+newLine)
			found = true
		} else {
			result = append(result, line)
		}
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}

	return strings.Join(result, "\n")
}

// keyLinePattern matches "key: value" or "# key: value" with optional
// leading whitespace.
func keyLinePattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)
}

func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) || isDuration(value) {
		return value
	}
	if needsQuoting(value) {
		return fmt.Sprintf("%q", value)
	}
	return value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	suffix := s[len(s)-1]
	if suffix != 's' && suffix != 'm' && suffix != 'h' && suffix != 'd' && suffix != 'w' {
		return false
	}
	return isNumeric(s[:len(s)-1])
}

func needsQuoting(s string) bool {
	special := []string{":", "#", "[", "]", "{", "}", ",", "&", "*", "!", "|", ">", "'", "\"", "%", "@", "`"}
	for _, c := range special {
		if strings.Contains(s, c) {
			return true
		}
	}
	return strings.TrimSpace(s) != s
}
