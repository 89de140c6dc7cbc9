// Package opencollective reconciles payments made by donating to an Open
// Collective account. The buyer is sent to the collective's donate page and,
// on return, the contribution is looked up, verified against the local
// payment and applied to it.
package opencollective

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	siteURL          = "https://opencollective.com"
	stagingSiteURL   = "https://staging.opencollective.com"
	graphQLURL       = "https://api.opencollective.com/graphql/v2"
	stagingGraphQL   = "https://staging.opencollective.com/graphql/v2"
	legacyURL        = "https://api.opencollective.com/v1"
	stagingLegacyURL = "https://staging.opencollective.com/api/v1"
)

// Config holds Open Collective settings.
type Config struct {
	APIKey string `envconfig:"OC_API_KEY"`

	// CollectiveSlugs are accepted for every event without its own slug.
	CollectiveSlugs []string `envconfig:"OC_COLLECTIVE_SLUG"`
	EventsFile      string   `envconfig:"OC_EVENTS_FILE"`

	UseStaging     bool   `envconfig:"OC_USE_STAGING"`
	RecipientEmail string `envconfig:"OC_RECIPIENT_EMAIL"`

	// RequireDestination rejects lookups when no slug is configured instead
	// of accepting contributions to any account.
	RequireDestination bool `envconfig:"OC_REQUIRE_DESTINATION"`

	Timeout time.Duration `envconfig:"OC_TIMEOUT" default:"15s"`

	SiteURL    string `envconfig:"OC_SITE_URL"`
	GraphQLURL string `envconfig:"OC_GRAPHQL_URL"`
	LegacyURL  string `envconfig:"OC_LEGACY_URL"`

	// EventSlugs maps an event code to its event-level slug.
	EventSlugs map[string]string `ignored:"true"`
}

// Endpoints are the base URLs used for one environment.
type Endpoints struct {
	Site    string
	GraphQL string
	Legacy  string
}

// Endpoints returns production or staging URLs, with explicit overrides applied.
func (c *Config) Endpoints() Endpoints {
	e := Endpoints{Site: siteURL, GraphQL: graphQLURL, Legacy: legacyURL}
	if c.UseStaging {
		e = Endpoints{Site: stagingSiteURL, GraphQL: stagingGraphQL, Legacy: stagingLegacyURL}
	}
	if c.SiteURL != "" {
		e.Site = c.SiteURL
	}
	if c.GraphQLURL != "" {
		e.GraphQL = c.GraphQLURL
	}
	if c.LegacyURL != "" {
		e.Legacy = c.LegacyURL
	}
	e.Site = strings.TrimRight(e.Site, "/")
	e.GraphQL = strings.TrimRight(e.GraphQL, "/")
	e.Legacy = strings.TrimRight(e.Legacy, "/")
	return e
}

// SiteFor returns the public site for a staging flag recorded on a payment.
func SiteFor(staging bool) string {
	if staging {
		return stagingSiteURL
	}
	return siteURL
}

// AcceptedSlugs returns the destination slugs a contribution for the given
// event may be paid to: the event-level slug if set, else the collective slugs.
func (c *Config) AcceptedSlugs(eventCode string) []string {
	if slug := strings.TrimSpace(c.EventSlugs[eventCode]); slug != "" {
		return []string{slug}
	}
	var out []string
	for _, s := range c.CollectiveSlugs {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PrimarySlug is the slug donations for the event are sent to.
func (c *Config) PrimarySlug(eventCode string) string {
	if slugs := c.AcceptedSlugs(eventCode); len(slugs) > 0 {
		return slugs[0]
	}
	return ""
}

type eventsFile struct {
	Events map[string]struct {
		Slug string `yaml:"slug"`
	} `yaml:"events"`
}

// LoadEventSlugs reads event-level slug overrides from a YAML file:
//
//	events:
//	  conf2025:
//	    slug: conf-2025
func LoadEventSlugs(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}

	var f eventsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse events file: %w", err)
	}

	slugs := make(map[string]string, len(f.Events))
	for code, ev := range f.Events {
		if ev.Slug == "" {
			return nil, fmt.Errorf("event %q: slug is required", code)
		}
		slugs[code] = ev.Slug
	}
	return slugs, nil
}
