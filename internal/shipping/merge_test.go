package shipping

import (
	"reflect"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func fullAddress() Address {
	return Address{
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		Phone:    "+44 20 7946 0000",
		Address:  "12 St James's Square",
		City:     "London",
		ZipCode:  "SW1Y 4JH",
		Country:  "GB",
	}
}

func TestMergePrefersUserValues(t *testing.T) {
	user := Address{FullName: "  Grace Hopper ", City: "   "}
	provider := fullAddress()

	merged := Merge(user, provider)
	if merged.FullName != "Grace Hopper" {
		t.Fatalf("expected trimmed user name, got %q", merged.FullName)
	}
	if merged.City != "London" {
		t.Fatalf("expected blank user city to fall back to provider, got %q", merged.City)
	}
	if merged.Email != provider.Email {
		t.Fatalf("expected provider email, got %q", merged.Email)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	cases := []struct {
		name     string
		user     Address
		provider Address
	}{
		{"empty", Address{}, Address{}},
		{"user only", fullAddress(), Address{}},
		{"provider only", Address{}, fullAddress()},
		{"mixed with whitespace", Address{FullName: " A ", ZipCode: "75001 "}, Address{FullName: "B", City: " Paris "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := Merge(tc.user, tc.provider)
			twice := Merge(once, tc.provider)
			if !reflect.DeepEqual(once, twice) {
				t.Fatalf("merge not idempotent: %+v vs %+v", once, twice)
			}
		})
	}
}

func TestComputeMissingAllFieldsWhenEmpty(t *testing.T) {
	missing := ComputeMissing(Merge(Address{}, Address{}))
	if !reflect.DeepEqual(missing, RequiredFields) {
		t.Fatalf("expected all required fields in order, got %v", missing)
	}
	if len(missing) != 7 {
		t.Fatalf("expected 7 missing fields, got %d", len(missing))
	}
}

func TestComputeMissingNoneWhenProviderComplete(t *testing.T) {
	if missing := ComputeMissing(Merge(Address{}, fullAddress())); len(missing) != 0 {
		t.Fatalf("expected no missing fields, got %v", missing)
	}
}

func TestComputeMissingFlagsInvalidEmail(t *testing.T) {
	addr := fullAddress()
	for _, bad := range []string{"ada", "ada@", "@example.com", "ada@example", "a da@example.com"} {
		addr.Email = bad
		missing := ComputeMissing(addr)
		if len(missing) != 1 || missing[0] != FieldEmail {
			t.Fatalf("expected %q to be flagged as missing email, got %v", bad, missing)
		}
	}
}

func TestValidateReturnsMissingFieldDetails(t *testing.T) {
	addr := fullAddress()
	addr.Phone = ""
	addr.Country = " "

	err := Validate(addr)
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	fields, _ := details["missingFields"].([]Field)
	if !reflect.DeepEqual(fields, []Field{FieldPhone, FieldCountry}) {
		t.Fatalf("unexpected missing fields %v", fields)
	}
	if err := Validate(fullAddress()); err != nil {
		t.Fatalf("expected complete address to validate, got %v", err)
	}
}

func TestOverlayKeepsBaseWhenPatchBlank(t *testing.T) {
	base := fullAddress()
	got := Overlay(base, Address{City: "Manchester", Email: " "})
	if got.City != "Manchester" {
		t.Fatalf("expected patched city, got %q", got.City)
	}
	if got.Email != base.Email {
		t.Fatalf("expected base email kept, got %q", got.Email)
	}
}
