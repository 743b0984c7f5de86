package kb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// GuestPrefix starts every guest owner id.
const GuestPrefix = "guest_"

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

	// Owners never contain "-", so "{owner}-" is an unambiguous prefix
	// when listing namespaces.
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9_.@]+$`)

	titleCaser = cases.Title(language.English)
)

// Sanitize replaces every character outside [A-Za-z0-9_-] with "_" and
// lower-cases the result. It is total and idempotent.
func Sanitize(name string) string {
	return strings.ToLower(unsafeNameChars.ReplaceAllString(name, "_"))
}

// DeriveLocator returns the storage locator "{owner}-{sanitized name}".
// Raw and pre-sanitized names map to the same locator.
func DeriveLocator(owner, name string) string {
	return owner + "-" + Sanitize(name)
}

// ValidateOwner checks that owner can prefix a locator.
func ValidateOwner(owner string) error {
	if !ownerPattern.MatchString(owner) || strings.Trim(owner, ".") == "" {
		return cerrors.New(cerrors.ErrCodeInvalidOwner,
			fmt.Sprintf("invalid owner %q: only letters, digits, '_', '.' and '@' are allowed", owner), nil)
	}
	return nil
}

// NewGuestOwner returns a fresh guest owner id.
func NewGuestOwner() string {
	return GuestPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsGuest reports whether owner is a guest id.
func IsGuest(owner string) bool {
	return strings.HasPrefix(owner, GuestPrefix)
}

// DisplayName turns a sanitized name back into a readable title,
// e.g. "my_notes" becomes "My Notes".
func DisplayName(sanitized string) string {
	return titleCaser.String(strings.ReplaceAll(sanitized, "_", " "))
}

func validateName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", cerrors.New(cerrors.ErrCodeInvalidName, "knowledge base name is empty", nil).
			WithSuggestion("Give the knowledge base a name")
	}
	return Sanitize(strings.TrimSpace(name)), nil
}
