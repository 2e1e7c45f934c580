package ir

import "strings"

// resolveEventPath implements the dotted-path resolution rules of spec §4.1:
// $name, $timestamp, $distinct_id are well-known aliases; "properties.a.b.c"
// walks nested properties; anything else is looked up in properties[key]
// only. The event's own top-level fields are reachable only through the $
// aliases.
func resolveEventPath(ev *Event, key string) (any, bool) {
	if ev == nil {
		return nil, false
	}
	switch key {
	case "$name":
		return ev.Name, true
	case "$timestamp":
		return ev.Timestamp, true
	case "$distinct_id":
		return ev.DistinctID, true
	}

	if strings.HasPrefix(key, "properties.") {
		return walkPath(ev.Properties, strings.Split(strings.TrimPrefix(key, "properties."), "."))
	}

	if ev.Properties != nil {
		if v, ok := ev.Properties[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func walkPath(m map[string]any, segments []string) (any, bool) {
	var cur any = m
	for _, seg := range segments {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := asMap[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
