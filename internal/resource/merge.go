// Where: internal/resource/merge.go
// What: Identity resolution and property merging across conversation turns.
// Why: Keep one resource per (type, name) no matter how many turns mention it.
package resource

import "strings"

// metadataFields are mirrored into Tags at ingestion so tag policies can
// validate them uniformly.
var metadataFields = []string{"Environment", "Project", "Owner", "CostCenter"}

// Merge folds incoming resources into the existing list. Identity is equal
// normalized type plus case-insensitive name; on a match the incoming
// properties overwrite the stored ones, except Tags which union-merge with
// incoming keys winning. Unmatched incoming resources append in order, so
// insertion order preserves first mention.
func Merge(existing, incoming []Resource) []Resource {
	merged := make([]Resource, len(existing))
	copy(merged, existing)
	for i := range merged {
		merged[i].Normalize()
	}

	index := map[string]int{}
	for i := range merged {
		index[merged[i].Identity()] = i
	}

	for _, in := range incoming {
		in.Normalize()
		if at, ok := index[in.Identity()]; ok {
			mergeInto(&merged[at], in)
			continue
		}
		index[in.Identity()] = len(merged)
		merged = append(merged, in)
	}
	return merged
}

func mergeInto(dst *Resource, src Resource) {
	oldTags := dst.Tags()
	newTags := src.Tags()

	for k, v := range src.Properties {
		if k == "Tags" {
			continue
		}
		dst.Properties[k] = v
	}
	dst.Properties["Tags"] = MergeTags(oldTags, newTags)

	if dst.Name == "" {
		dst.Name = src.Name
	}
	if src.Platform != "" {
		dst.Platform = src.Platform
	}
	dst.Type = NormalizeType(dst.Type, dst.Platform)
}

// MergeTags unions two tag maps; keys from next override prior, compared
// case-insensitively so Project and project never coexist.
func MergeTags(prior, next map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range prior {
		out[k] = v
	}
	lower := map[string]string{}
	for k := range out {
		lower[strings.ToLower(k)] = k
	}
	for k, v := range next {
		if existing, ok := lower[strings.ToLower(k)]; ok && existing != k {
			delete(out, existing)
		}
		out[k] = v
		lower[strings.ToLower(k)] = k
	}
	return out
}

// MirrorMetadataTags copies Environment/Project/Owner/CostCenter property
// values into Tags unless an equivalent tag key (case-insensitive) already
// exists. Runs at both spreadsheet ingestion and LLM extraction.
func MirrorMetadataTags(props map[string]any) {
	if props == nil {
		return
	}
	tags, _ := props["Tags"].(map[string]any)
	if tags == nil {
		tags = map[string]any{}
	}
	lower := map[string]struct{}{}
	for k := range tags {
		lower[strings.ToLower(k)] = struct{}{}
	}
	for _, field := range metadataFields {
		v, ok := props[field]
		if !ok || v == nil || v == "" {
			continue
		}
		if _, dup := lower[strings.ToLower(field)]; dup {
			continue
		}
		tags[field] = v
		lower[strings.ToLower(field)] = struct{}{}
	}
	props["Tags"] = tags
}
