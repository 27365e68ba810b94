package track

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pagepulse/pagepulse/internal/models"
)

// Element is the engine's view of a DOM node, captured by whatever adapter
// feeds the session (a browser bridge, a headless harness, or a test).
type Element struct {
	Marker       string   // explicit tracking attribute (data-section / data-cta)
	ID           string   // the element's own id
	Heading      string   // nearest heading text, if any
	Classes      []string // class tokens
	Tag          string   // lowercase tag name ("a", "button", ...)
	Href         string   // resolved href for anchors
	Text         string   // trimmed text content
	TypeOverride string   // explicit cta type attribute, wins over heuristics
}

func (e Element) hasClass(name string) bool {
	for _, c := range e.Classes {
		if c == name {
			return true
		}
	}
	return false
}

// SectionResolver derives a stable section id from an element. A false return
// means the element is not trackable and must be skipped.
type SectionResolver interface {
	ResolveSection(el Element) (string, bool)
}

// CTAResolver decides whether a clicked element is a call to action and
// classifies it. A false return means the click is not tracked.
type CTAResolver interface {
	ResolveCTA(el Element, pageOrigin string) (ctaType, ctaID string, ok bool)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// HeuristicSectionResolver implements the default fallback order:
// marker attribute, element id, heading-derived slug, recognizable class
// token. Elements resolving to nothing are not tracked.
type HeuristicSectionResolver struct{}

func (HeuristicSectionResolver) ResolveSection(el Element) (string, bool) {
	if el.Marker != "" {
		return el.Marker, true
	}
	if el.ID != "" {
		return el.ID, true
	}
	if el.Heading != "" {
		slug := strings.ToLower(strings.TrimSpace(el.Heading))
		slug = whitespaceRun.ReplaceAllString(slug, "-")
		if len(slug) > 30 {
			slug = slug[:30]
		}
		if slug != "" {
			return slug, true
		}
	}
	for _, cls := range el.Classes {
		if strings.Contains(cls, "hero") || strings.Contains(cls, "section") || strings.Contains(cls, "cta") {
			return cls, true
		}
	}
	return "", false
}

// HeuristicCTAResolver recognizes explicit markers, primary/secondary button
// styling, and outbound anchors.
type HeuristicCTAResolver struct{}

func (HeuristicCTAResolver) ResolveCTA(el Element, pageOrigin string) (string, string, bool) {
	isAnchor := el.Tag == "a" && strings.HasPrefix(el.Href, "http")
	if el.Marker == "" && !el.hasClass("btn-primary") && !el.hasClass("btn-secondary") && !isAnchor {
		return "", "", false
	}

	ctaType := models.CTASecondary
	if el.hasClass("btn-primary") {
		ctaType = models.CTAPrimary
	} else if el.Tag == "a" && isExternalHref(el.Href, pageOrigin) {
		ctaType = models.CTAExternal
	}
	if t := el.TypeOverride; t == models.CTAPrimary || t == models.CTASecondary || t == models.CTAExternal {
		ctaType = t
	}

	ctaID := el.Marker
	if ctaID == "" {
		ctaID = normalizeCTAText(el.Text)
	}
	if ctaID == "" {
		ctaID = "unknown"
	}
	return ctaType, ctaID, true
}

// isExternalHref reports whether href points outside the page origin.
// Relative and unparseable hrefs are treated as same-origin.
func isExternalHref(href, pageOrigin string) bool {
	if href == "" || pageOrigin == "" {
		return false
	}
	target, err := url.Parse(href)
	if err != nil || !target.IsAbs() {
		return false
	}
	origin, err := url.Parse(pageOrigin)
	if err != nil {
		return false
	}
	return target.Scheme != origin.Scheme || target.Host != origin.Host
}

// normalizeCTAText collapses whitespace and truncates to 30 characters, the
// fallback id for CTAs without an explicit marker.
func normalizeCTAText(text string) string {
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if len(text) > 30 {
		text = text[:30]
	}
	return text
}
