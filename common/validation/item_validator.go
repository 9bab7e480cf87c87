package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
)

var (
	sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

	// TYPE/SUBTYPE[+SUFFIX][;PARAMETER=VALUE]
	mimeTypePattern = regexp.MustCompile(`^[-\w]+/[-.\w]+(\+[-\w]*)?(;[-\w]+=[-\w]+)?`)

	// Anything under the /origin/files/sha256 subtree
	originFilesBasePattern = regexp.MustCompile(`^(/content)?/origin/files/sha256/.*$`)

	// The layout all files under that subtree must match
	originFilesPattern = regexp.MustCompile(`^(/content)?/origin/files/sha256/[0-9a-f]{2}/[0-9a-f]{64}/[^/]{1,300}$`)
)

// ItemError is a structural validation error. Items failing structural
// validation are always rejected.
type ItemError struct {
	Message string
}

func (e *ItemError) Error() string {
	return e.Message
}

// PolicyError is raised for items which are structurally valid but
// break an embedded layout policy. Certain trusted callers may be
// permitted to bypass policy errors; structural errors never.
type PolicyError struct {
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

// ItemValidator validates and normalizes publish items.
//
// The validator holds its own copy of the reserved autoindex filename
// rather than reaching into process-wide settings.
type ItemValidator struct {
	autoindexFilename string
	log               *logger.Logger
}

// NewItemValidator creates a new item validator
func NewItemValidator(autoindexFilename string, log *logger.Logger) *ItemValidator {
	return &ItemValidator{
		autoindexFilename: autoindexFilename,
		log:               log,
	}
}

// NormalizePath cleans a CDN-relative path: single leading slash, no
// trailing slash quirks.
func NormalizePath(p string) string {
	if p == "" {
		return p
	}
	p = path.Clean(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Validate checks the structural rules for a single item and
// normalizes its paths in place. Returns *ItemError on violation.
func (v *ItemValidator) Validate(item *models.Item) error {
	if item.WebURI == "" {
		return itemError("no URI: %+v", item)
	}
	item.WebURI = NormalizePath(item.WebURI)

	if item.LinkTo != "" && item.ObjectKey != "" {
		return itemError("both link target and object key present: %+v", item)
	}
	if item.LinkTo != "" && item.ContentType != "" {
		return itemError("content type specified for link: %+v", item)
	}

	switch {
	case item.LinkTo != "":
		item.LinkTo = NormalizePath(item.LinkTo)
	case item.ObjectKey != "":
		if item.ObjectKey == models.ObjectKeyAbsent {
			if item.ContentType != "" {
				return itemError("cannot set content type when object_key is %q: %+v",
					models.ObjectKeyAbsent, item)
			}
		} else if !sha256Pattern.MatchString(item.ObjectKey) {
			return itemError("invalid object key; must be sha256sum: %+v", item)
		}
	default:
		return itemError("no object key or link target: %+v", item)
	}

	if item.ContentType != "" && !mimeTypePattern.MatchString(item.ContentType) {
		return itemError("invalid content type: %+v", item)
	}

	// Writing to the autoindex filename is reserved for the gateway
	// itself. Clients may still delete a previously generated index.
	if v.autoindexFilename != "" &&
		path.Base(item.WebURI) == v.autoindexFilename &&
		item.ObjectKey != models.ObjectKeyAbsent {
		return itemError("invalid URI %s: filename is reserved", item.WebURI)
	}

	return nil
}

// ValidatePolicy checks the item against embedded layout policies.
// Callers decide whether a *PolicyError is fatal; violations are
// always logged.
func (v *ItemValidator) ValidatePolicy(item *models.Item) error {
	return v.validateOriginFiles(item)
}

// validateOriginFiles enforces the content-addressed layout of the
// /origin/files directory:
//
//	/origin/files/sha256/<first two hash chars>/<full sha256sum>/<basename>
func (v *ItemValidator) validateOriginFiles(item *models.Item) error {
	if !originFilesBasePattern.MatchString(item.WebURI) {
		// Not under /origin/files, passes this validation
		return nil
	}

	if !originFilesPattern.MatchString(item.WebURI) {
		return v.policyError("origin path %s does not match regex %s",
			item.WebURI, originFilesPattern.String())
	}

	// The two-character prefix must match the first two characters of
	// the full sha256sum.
	parts := strings.Split(stringAfter(item.WebURI, "/files/sha256/"), "/")
	if !strings.HasPrefix(parts[1], parts[0]) {
		return v.policyError("origin path %s contains mismatched sha256sum (%s, %s)",
			item.WebURI, parts[0], parts[1])
	}

	// Every object_key must be "absent" or equal to the sha256sum in
	// the web_uri.
	if item.ObjectKey != models.ObjectKeyAbsent && item.ObjectKey != parts[1] {
		return v.policyError("invalid object_key %s for web_uri %s",
			item.ObjectKey, item.WebURI)
	}

	return nil
}

func (v *ItemValidator) policyError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	v.log.Warn(msg)
	return &PolicyError{Message: msg}
}

func itemError(format string, args ...any) error {
	return &ItemError{Message: fmt.Sprintf(format, args...)}
}

func stringAfter(s, sep string) string {
	if _, after, found := strings.Cut(s, sep); found {
		return after
	}
	return ""
}
