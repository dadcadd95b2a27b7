package listener

// MatchKey returns a predicate matching events for any of keys.
func MatchKey(keys ...string) func(Event) bool {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Key]
		return ok
	}
}

// MatchType returns a predicate matching events of typ, optionally
// restricted to states.
func MatchType(typ Type, states ...State) func(Event) bool {
	return func(e Event) bool {
		if e.Type != typ {
			return false
		}
		if len(states) == 0 {
			return true
		}
		for _, s := range states {
			if e.State == s {
				return true
			}
		}
		return false
	}
}

// All combines predicates; an event matches when every predicate does.
func All(preds ...func(Event) bool) func(Event) bool {
	return func(e Event) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}
}
