package identity

// Limits are the spending limits of a verified principal. Zero means unlimited.
type Limits struct {
	Daily       int64
	Transaction int64
	Monthly     int64
}

// Unlimited reports whether no limit applies.
func (l Limits) Unlimited() bool {
	return l.Daily <= 0 && l.Transaction <= 0 && l.Monthly <= 0
}

// MaxBudget returns the largest single budget allowed given what was already
// issued today and this month. Returns -1 when nothing caps it.
func (l Limits) MaxBudget(issuedToday, issuedThisMonth int64) int64 {
	allowed := int64(-1)
	capAt := func(v int64) {
		if v < 0 {
			v = 0
		}
		if allowed < 0 || v < allowed {
			allowed = v
		}
	}

	if l.Transaction > 0 {
		capAt(l.Transaction)
	}
	if l.Daily > 0 {
		capAt(l.Daily - issuedToday)
	}
	if l.Monthly > 0 {
		capAt(l.Monthly - issuedThisMonth)
	}
	return allowed
}
