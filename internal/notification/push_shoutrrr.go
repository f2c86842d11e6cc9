package notification

import (
	"context"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/emotion-go/internal/errors"
)

// ShoutrrrProvider sends through a single shoutrrr router covering every
// configured URL.
type ShoutrrrProvider struct {
	name    string
	urls    []string
	types   map[Type]bool
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider returns a provider for urls. An empty supportedTypes
// accepts every type.
func NewShoutrrrProvider(name string, urls []string, supportedTypes []Type, timeout time.Duration) *ShoutrrrProvider {
	sp := &ShoutrrrProvider{
		name:    strings.TrimSpace(name),
		urls:    slices.Clone(urls),
		types:   map[Type]bool{},
		timeout: timeout,
	}
	if sp.name == "" {
		sp.name = "shoutrrr"
	}
	for _, t := range supportedTypes {
		sp.types[t] = true
	}
	return sp
}

func (s *ShoutrrrProvider) GetName() string { return s.name }

func (s *ShoutrrrProvider) SupportsType(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// ValidateConfig parses the URLs and builds the router.
func (s *ShoutrrrProvider) ValidateConfig() error {
	if len(s.urls) == 0 {
		return errors.Newf("at least one push URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		// shoutrrr echoes the offending URL, which may carry a token
		return errors.Newf("invalid push URL: %s", scrubURLs(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("provider", s.name).
			Build()
	}
	if s.timeout > 0 {
		sender.Timeout = s.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	s.sender = sender
	return nil
}

// Send delivers n to every URL and returns the first failure.
func (s *ShoutrrrProvider) Send(_ context.Context, n *Notification) error {
	if s.sender == nil {
		return errors.Newf("shoutrrr sender not initialized").
			Component("notification").
			Category(errors.CategoryState).
			Build()
	}

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			return errors.Newf("push delivery failed: %s", scrubURLs(err.Error())).
				Component("notification").
				Category(errors.CategoryNotification).
				Context("provider", s.name).
				Context("type", string(n.Type)).
				Build()
		}
	}
	return nil
}

// scrubURLs drops everything after a scheme separator so credentials in
// service URLs never reach logs.
func scrubURLs(msg string) string {
	fields := strings.Fields(msg)
	for i, f := range fields {
		if idx := strings.Index(f, "://"); idx >= 0 {
			fields[i] = f[:idx+3] + "[redacted]"
		}
	}
	return strings.Join(fields, " ")
}
