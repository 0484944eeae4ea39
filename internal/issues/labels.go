package issues

import "github.com/gosimple/slug"

// NormalizeLabel turns free text into a label slug ("Needs Triage" -> "needs-triage").
func NormalizeLabel(label string) string {
	return slug.Make(label)
}

// NormalizeLabels slugs every label, dropping empties and duplicates while
// keeping first-seen order.
func NormalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		n := NormalizeLabel(l)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
