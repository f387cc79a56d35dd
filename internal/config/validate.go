package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return describeValidationError(err)
	}
	if err := c.validateArtifacts(); err != nil {
		return err
	}
	if err := c.validateServe(); err != nil {
		return err
	}
	return nil
}

// RequireAPIKey reports a configuration error when the direct API transport or
// an authoritative re-query needs a credential that is not configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.API.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("api.api_key is required. Set %s env var or edit %s (create with 'songfactory config init')", envAPIKey, defaultPath)
}

func (c *Config) validateArtifacts() error {
	for _, root := range c.Artifacts.PlaceholderRoots {
		if !strings.HasPrefix(root, "http://") && !strings.HasPrefix(root, "https://") {
			return fmt.Errorf("artifacts.placeholder_roots: %q must be an http(s) URL", root)
		}
	}
	return nil
}

func (c *Config) validateServe() error {
	if c.Serve.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Serve.Schedule); err != nil {
		return fmt.Errorf("serve.schedule: %w", err)
	}
	return nil
}

// describeValidationError converts validator output into the section.key
// vocabulary used in the TOML file.
func describeValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fmt.Sprintf("%s failed %q (value %v)", tomlKey(fe.StructNamespace()), fe.Tag(), fe.Value()))
	}
	return errors.New("invalid config: " + strings.Join(messages, "; "))
}

func tomlKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = snakeCase(part)
	}
	return strings.Join(parts, ".")
}

func snakeCase(value string) string {
	var b strings.Builder
	runes := []rune(value)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			prevLower := i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if i > 0 && (prevLower || (nextLower && runes[i-1] >= 'A' && runes[i-1] <= 'Z')) {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
