// Package screenshot captures the screen to an image file and derives the
// reference string used to link an image to its activity event.
package screenshot

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DatePlaceholder is the only placeholder substituted in a name template.
const DatePlaceholder = "{date}"

// DateLayout formats the capture instant (local time) for DatePlaceholder.
const DateLayout = "2006-01-02_15:04:05"

// Capturer writes a screenshot to the path described by template and
// returns the resolved absolute path. Failures are *CaptureError values.
type Capturer interface {
	Capture(template string) (string, error)
	Name() string
	Close() error
}

// CaptureError reports a screenshot that could not be written.
type CaptureError struct {
	Backend string
	Path    string
	Err     error
}

func (e *CaptureError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("capture failed (%s): %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("capture to %s failed (%s): %v", e.Path, e.Backend, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Expand substitutes DatePlaceholder with at formatted in local time. All
// other characters, including unknown placeholders, pass through literally.
func Expand(template string, at time.Time) string {
	return strings.ReplaceAll(template, DatePlaceholder, at.Local().Format(DateLayout))
}

// Reference derives "/{dir}/{file}" from the last two segments of p. Both
// '/' and '\' are treated as separators so the result does not depend on
// the host path convention.
func Reference(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimRight(p, "/")
	return "/" + path.Base(path.Dir(p)) + "/" + path.Base(p)
}

// ValidateTemplate checks that template names a single image file that an
// encoder exists for.
func ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("name template is empty")
	}
	if strings.ContainsAny(template, `/\`) {
		return fmt.Errorf("name template %q must be a file name, not a path", template)
	}
	if template == "." || template == ".." {
		return fmt.Errorf("name template %q is not a file name", template)
	}
	if _, err := formatFor(template); err != nil {
		return err
	}
	return nil
}

func absolute(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}
