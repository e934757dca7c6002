package track

// scrollThresholds are the depth marks reported once each per page load.
var scrollThresholds = []int{25, 50, 75, 90, 100}

// ScrollTracker reports scroll-depth thresholds. Each threshold fires at
// most once no matter how the scroll position oscillates.
type ScrollTracker struct {
	client *Client
	page   string

	maxScroll int
	fired     map[int]struct{}
}

func NewScrollTracker(client *Client, page string) *ScrollTracker {
	return &ScrollTracker{
		client: client,
		page:   page,
		fired:  make(map[int]struct{}),
	}
}

// Observe takes the current scroll depth as a percentage. Depths that do not
// beat the running maximum are ignored, so scrolling back up never re-arms a
// threshold.
func (s *ScrollTracker) Observe(percent int) {
	if percent <= s.maxScroll {
		return
	}
	s.maxScroll = percent

	for _, threshold := range scrollThresholds {
		if percent < threshold {
			continue
		}
		if _, done := s.fired[threshold]; done {
			continue
		}
		s.fired[threshold] = struct{}{}
		s.client.trackScrollDepth(threshold, s.page)
	}
}

// Fired reports whether a threshold has already been sent.
func (s *ScrollTracker) Fired(threshold int) bool {
	_, ok := s.fired[threshold]
	return ok
}
