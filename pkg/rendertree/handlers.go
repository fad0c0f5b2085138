// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rendertree

import "sort"

// handler attribute name -> native event name. Anything else is a plain
// attribute, even when its name starts with "on".
var handlerEvents = map[string]string{
	"onclick":    "click",
	"ondblclick": "dblclick",
	"onkeydown":  "keydown",
	"onkeyup":    "keyup",
	"onkeypress": "keypress",
}

func IsHandlerAttrName(name string) bool {
	_, ok := handlerEvents[name]
	return ok
}

// HandlerEventName maps "onclick" to "click"; ok is false outside the fixed set.
func HandlerEventName(attrName string) (string, bool) {
	eventName, ok := handlerEvents[attrName]
	return eventName, ok
}

func HandlerAttrNames() []string {
	names := make([]string, 0, len(handlerEvents))
	for name := range handlerEvents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
