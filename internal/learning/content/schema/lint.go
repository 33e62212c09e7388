package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Lint checks a schema against the strict structured-output subset: no
// unions, every object closed with additionalProperties=false, and every
// property listed in required. All problems are reported together.
func Lint(name string, schema map[string]any) error {
	if schema == nil {
		return fmt.Errorf("schema is nil")
	}
	root := strings.TrimSpace(name)
	if root == "" {
		root = "$"
	}
	var problems []string
	lintNode(schema, root, &problems)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

func lintNode(node any, path string, problems *[]string) {
	m, ok := node.(map[string]any)
	if !ok || m == nil {
		return
	}
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if _, ok := m[key]; ok {
			*problems = append(*problems, fmt.Sprintf("%s: %s is not permitted", path, key))
		}
	}
	if items, ok := m["items"]; ok {
		lintNode(items, path+".items", problems)
	}

	rawProps, ok := m["properties"]
	if !ok || rawProps == nil {
		return
	}
	props, ok := rawProps.(map[string]any)
	if !ok {
		*problems = append(*problems, path+": properties must be an object")
		return
	}
	if ap, ok := m["additionalProperties"]; !ok || ap != false {
		*problems = append(*problems, path+": additionalProperties must be false")
	}

	required := map[string]bool{}
	if rawReq, ok := m["required"].([]any); ok {
		for _, v := range rawReq {
			if k := strings.TrimSpace(fmt.Sprint(v)); k != "" {
				required[k] = true
			}
		}
	}
	for _, k := range sortedKeys(props) {
		if !required[k] {
			*problems = append(*problems, fmt.Sprintf("%s: %q missing from required", path, k))
		}
		lintNode(props[k], path+".properties."+k, problems)
	}
	for _, k := range sortedKeys(required) {
		if _, ok := props[k]; !ok {
			*problems = append(*problems, fmt.Sprintf("%s: required lists unknown key %q", path, k))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
