package track

// dedupeRegistry holds the process-lifetime fire-once guards. Each
// (kind, discriminator) pair emits at most once per session. The registry is
// never persisted; a reload starts a fresh session with empty guards.
type dedupeRegistry struct {
	exposedSections  map[string]bool
	exposedOrder     []string
	scrollMilestones map[int]bool
	firedThresholds  map[string]map[int]bool
	ctaClicks        map[string]bool
}

func newDedupeRegistry() *dedupeRegistry {
	return &dedupeRegistry{
		exposedSections:  map[string]bool{},
		scrollMilestones: map[int]bool{},
		firedThresholds:  map[string]map[int]bool{},
		ctaClicks:        map[string]bool{},
	}
}

// markExposed records a section exposure. Returns false if it already fired.
func (r *dedupeRegistry) markExposed(sectionID string) bool {
	if r.exposedSections[sectionID] {
		return false
	}
	r.exposedSections[sectionID] = true
	r.exposedOrder = append(r.exposedOrder, sectionID)
	return true
}

func (r *dedupeRegistry) exposed(sectionID string) bool {
	return r.exposedSections[sectionID]
}

// lastExposed returns the most recently exposed section, or the sentinel
// "unknown" when nothing was exposed this session.
func (r *dedupeRegistry) lastExposed() string {
	if len(r.exposedOrder) == 0 {
		return "unknown"
	}
	return r.exposedOrder[len(r.exposedOrder)-1]
}

// markScroll records a milestone. Returns false if it already fired.
func (r *dedupeRegistry) markScroll(percentage int) bool {
	if r.scrollMilestones[percentage] {
		return false
	}
	r.scrollMilestones[percentage] = true
	return true
}

// markThreshold records a dwell threshold for a section. Returns false if it
// already fired.
func (r *dedupeRegistry) markThreshold(sectionID string, threshold int) bool {
	fired := r.firedThresholds[sectionID]
	if fired == nil {
		fired = map[int]bool{}
		r.firedThresholds[sectionID] = fired
	}
	if fired[threshold] {
		return false
	}
	fired[threshold] = true
	return true
}

// markCTA records a composite cta_type + cta_id key. Returns false if it
// already fired.
func (r *dedupeRegistry) markCTA(key string) bool {
	if r.ctaClicks[key] {
		return false
	}
	r.ctaClicks[key] = true
	return true
}
