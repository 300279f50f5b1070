package shipping

import (
	"regexp"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Address is the shipping contact assembled over the life of a checkout.
type Address = types.ShippingAddress

// Field names a required shipping attribute.
type Field string

const (
	FieldFullName Field = "fullName"
	FieldEmail    Field = "email"
	FieldPhone    Field = "phone"
	FieldAddress  Field = "address"
	FieldCity     Field = "city"
	FieldZipCode  Field = "zipCode"
	FieldCountry  Field = "country"
)

// RequiredFields lists every required field in canonical order.
var RequiredFields = []Field{
	FieldFullName,
	FieldEmail,
	FieldPhone,
	FieldAddress,
	FieldCity,
	FieldZipCode,
	FieldCountry,
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Merge prefers the trimmed user value for each field and falls back to the
// trimmed provider value.
func Merge(user, provider Address) Address {
	return Address{
		FullName: pick(user.FullName, provider.FullName),
		Email:    pick(user.Email, provider.Email),
		Phone:    pick(user.Phone, provider.Phone),
		Address:  pick(user.Address, provider.Address),
		City:     pick(user.City, provider.City),
		ZipCode:  pick(user.ZipCode, provider.ZipCode),
		Country:  pick(user.Country, provider.Country),
	}
}

// Overlay applies the non-empty fields of patch on top of base. Used when the
// user edits or supplies fields after the initial merge.
func Overlay(base, patch Address) Address {
	return Merge(patch, base)
}

// ComputeMissing returns required fields that are empty, plus the email field
// when it does not look like local@domain.tld.
func ComputeMissing(addr Address) []Field {
	missing := make([]Field, 0, len(RequiredFields))
	for _, field := range RequiredFields {
		value := strings.TrimSpace(Value(addr, field))
		if value == "" {
			missing = append(missing, field)
			continue
		}
		if field == FieldEmail && !IsValidEmail(value) {
			missing = append(missing, field)
		}
	}
	return missing
}

// Validate fails with a validation error listing the missing fields.
func Validate(addr Address) error {
	missing := ComputeMissing(addr)
	if len(missing) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "shipping details incomplete").
		WithDetails(map[string]any{"missingFields": missing})
}

// IsValidEmail applies the basic local@domain.tld check.
func IsValidEmail(value string) bool {
	return emailPattern.MatchString(strings.TrimSpace(value))
}

// Value returns the raw value of a field.
func Value(addr Address, field Field) string {
	switch field {
	case FieldFullName:
		return addr.FullName
	case FieldEmail:
		return addr.Email
	case FieldPhone:
		return addr.Phone
	case FieldAddress:
		return addr.Address
	case FieldCity:
		return addr.City
	case FieldZipCode:
		return addr.ZipCode
	case FieldCountry:
		return addr.Country
	default:
		return ""
	}
}

func pick(user, provider string) string {
	if v := strings.TrimSpace(user); v != "" {
		return v
	}
	return strings.TrimSpace(provider)
}
