package track

import (
	"github.com/pagepulse/pagepulse/internal/models"
)

// CTATracker classifies call-to-action clicks and deduplicates them on the
// composite cta_type + cta_id key.
type CTATracker struct {
	registry   *dedupeRegistry
	resolver   CTAResolver
	pageOrigin string
	emit       func(models.Payload)
}

func newCTATracker(registry *dedupeRegistry, resolver CTAResolver, pageOrigin string, emit func(models.Payload)) *CTATracker {
	return &CTATracker{
		registry:   registry,
		resolver:   resolver,
		pageOrigin: pageOrigin,
		emit:       emit,
	}
}

// Click handles a click whose nearest CTA-candidate ancestor has been
// captured as el. Non-CTA elements and repeat clicks on the same composite
// key are ignored.
func (c *CTATracker) Click(el Element) {
	ctaType, ctaID, ok := c.resolver.ResolveCTA(el, c.pageOrigin)
	if !ok {
		return
	}
	if !c.registry.markCTA(ctaType + "_" + ctaID) {
		return
	}
	c.emit(models.CTAClick{CTAType: ctaType, CTAID: ctaID})
}
