package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlugLength = 50
	slugPattern   = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

	// Size limits for the property bag to prevent memory exhaustion.
	maxPropertyKeys   = 100  // Devices can carry many readings
	maxStringValueLen = 1024 // Max length for string values in the bag
	maxNestingDepth   = 10   // Prevents stack overflow on pathological input
)

var slugRegex = regexp.MustCompile(slugPattern)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validProtocols   map[Protocol]struct{}
	validDeviceTypes map[DeviceType]struct{}
)

func init() {
	validProtocols = make(map[Protocol]struct{}, len(AllProtocols()))
	for _, p := range AllProtocols() {
		validProtocols[p] = struct{}{}
	}

	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}
}

// ValidateDevice performs comprehensive validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	// Validate slug if provided (empty slug will be generated)
	if d.Slug != "" {
		if err := ValidateSlug(d.Slug); err != nil {
			return err
		}
	}

	if err := ValidateDeviceType(d.Type); err != nil {
		return err
	}

	if err := ValidateProtocol(d.Protocol); err != nil {
		return err
	}

	if len(d.Properties) > maxPropertyKeys {
		return fmt.Errorf("%w: properties exceed max keys (%d)", ErrInvalidProperties, maxPropertyKeys)
	}
	if err := validateMapSize(d.Properties, 0); err != nil {
		return err
	}

	return nil
}

// validateMapSize recursively validates property values with depth tracking.
func validateMapSize(m map[string]any, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: exceeds maximum nesting depth", ErrInvalidProperties)
	}

	for k, v := range m {
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: key too long", ErrInvalidProperties)
		}
		if err := validateValueSize(v, depth); err != nil {
			return err
		}
	}
	return nil
}

// validateValueSize recursively validates a value's size.
func validateValueSize(v any, depth int) error {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: string value too long", ErrInvalidProperties)
		}
	case map[string]any:
		if len(val) > maxPropertyKeys {
			return fmt.Errorf("%w: nested map too large", ErrInvalidProperties)
		}
		return validateMapSize(val, depth+1)
	case []any:
		if len(val) > maxPropertyKeys {
			return fmt.Errorf("%w: array too large", ErrInvalidProperties)
		}
		for _, elem := range val {
			if err := validateValueSize(elem, depth+1); err != nil {
				return err
			}
		}
	}
	// Primitives (bool, int, float64, etc.) are safe
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks if a slug format is valid.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateProtocol checks if a protocol is valid.
// Uses O(1) map lookup for efficiency.
func ValidateProtocol(protocol Protocol) error {
	if _, ok := validProtocols[protocol]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidProtocol, protocol)
}

// ValidateDeviceType checks if a device type is valid.
// Uses O(1) map lookup for efficiency.
func ValidateDeviceType(deviceType DeviceType) error {
	if _, ok := validDeviceTypes[deviceType]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDeviceType, deviceType)
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)

	// Replace spaces and underscores with hyphens
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	// Remove any characters that aren't alphanumeric or hyphens
	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Remove leading/trailing hyphens and collapse multiple hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	// Truncate if too long
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
