package repair

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/ason/pkg/domain"
)

// DefaultDenylist blocks the escape hatches of the Go standard library.
var DefaultDenylist = []string{
	"os/exec",
	`"os"`,
	"syscall",
	"unsafe",
	"reflect",
	"net/http",
	`"net"`,
	"plugin",
	"os.",
	"exec.Command",
	"ioutil",
	"runtime/debug",
}

// KeywordValidator rejects empty scripts and scripts containing a denylisted
// pattern. A pattern that starts like an identifier only matches at the start
// of one, so "os." catches os.Exit but not photos.Items.
type KeywordValidator struct {
	denylist []string
	matchers []*regexp.Regexp
}

// NewKeywordValidator creates a validator. A nil denylist means DefaultDenylist.
func NewKeywordValidator(denylist []string) *KeywordValidator {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	v := &KeywordValidator{denylist: denylist, matchers: make([]*regexp.Regexp, len(denylist))}
	for i, pattern := range denylist {
		expr := regexp.QuoteMeta(pattern)
		if startsWord(pattern) {
			expr = `\b` + expr
		}
		v.matchers[i] = regexp.MustCompile(expr)
	}
	return v
}

func (v *KeywordValidator) Validate(script string) error {
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("%w: Empty script", domain.ErrValidation)
	}
	for i, m := range v.matchers {
		if m.MatchString(script) {
			return fmt.Errorf("%w: Forbidden usage detected: %s", domain.ErrValidation, v.denylist[i])
		}
	}
	return nil
}

func startsWord(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// validationMessage strips the sentinel prefix for prompts and outcomes.
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
}
