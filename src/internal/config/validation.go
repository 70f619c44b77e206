package config

import (
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IFNAMSIZ minus the trailing NUL.
const maxInterfaceNameLen = 15

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "ip":
		return "must be a valid IP address"
	case "ifname":
		return fmt.Sprintf("must be a valid interface name (1-%d chars, no '/', ':' or whitespace)", maxInterfaceNameLen)
	case "cidr4":
		return "must be an IPv4 subnet in CIDR notation (e.g. 10.0.0.0/24)"
	case "ip4_or_empty":
		return "must be a valid IPv4 address or empty"
	case "mac_prefix_or_empty":
		return "must be 4 octets of a locally administered unicast MAC (e.g. 02:42:0a:00) or empty"
	case "hostname_port":
		return "must be in format 'host:port'"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	FieldPath string // Dot-notation field path (e.g., "pool.size", "routing.local_priority")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	if err := validate.RegisterValidation("ifname", validateInterfaceName); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("cidr4", validateCIDR4); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("ip4_or_empty", validateIP4OrEmpty); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("mac_prefix_or_empty", validateMACPrefixOrEmpty); err != nil {
		panic(err)
	}

	// Register function to get field name from "toml" tag
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateInterfaceName(fl validator.FieldLevel) bool {
	return IsValidInterfaceName(fl.Field().String())
}

// IsValidInterfaceName mirrors the kernel's dev_valid_name().
func IsValidInterfaceName(name string) bool {
	if name == "" || len(name) > maxInterfaceNameLen || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/: \t\n")
}

func validateCIDR4(fl validator.FieldLevel) bool {
	ip, _, err := net.ParseCIDR(fl.Field().String())
	return err == nil && ip.To4() != nil
}

func validateIP4OrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	ip := net.ParseIP(value)
	return ip != nil && ip.To4() != nil
}

func validateMACPrefixOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := ParseMACPrefix(value)
	return err == nil
}

// ParseMACPrefix parses "xx:xx:xx:xx" and checks it is locally administered unicast.
func ParseMACPrefix(value string) ([]byte, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("mac prefix must have 4 octets, got %d", len(parts))
	}
	// Borrow net.ParseMAC for the hex parsing by padding to 6 octets.
	hw, err := net.ParseMAC(value + ":00:00")
	if err != nil {
		return nil, err
	}
	if hw[0]&0x01 != 0 {
		return nil, fmt.Errorf("mac prefix %s is multicast", value)
	}
	if hw[0]&0x02 == 0 {
		return nil, fmt.Errorf("mac prefix %s is not locally administered", value)
	}
	return hw[:4], nil
}

// convertValidatorErrors converts validator.ValidationErrors to our ValidationErrors format
func convertValidatorErrors(err error, prefix string) ValidationErrors {
	var result ValidationErrors

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{FieldPath: prefix, Message: err.Error()}}
	}

	for _, e := range validationErrs {
		fieldPath := e.Field()
		if prefix != "" {
			fieldPath = prefix + "." + fieldPath
		}
		result = append(result, ValidationError{
			FieldPath: fieldPath,
			Message:   getValidationMessage(e),
		})
	}

	return result
}
